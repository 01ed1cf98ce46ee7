package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Email    EmailConfig
	Payments PaymentsConfig
	Admin    AdminConfig
}

type ServerConfig struct {
	Port         string
	PublicURL    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

func (c DatabaseConfig) DSN() string {
	return "postgres://" + c.Username + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Database + "?sslmode=disable"
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
	QRSecret     string
}

type PaymentsConfig struct {
	Currency string
	Stripe   StripeConfig
	PayPal   PayPalConfig
	Mpesa    MpesaConfig
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

type MpesaConfig struct {
	ConsumerKey     string
	ConsumerSecret  string
	Shortcode       string
	Passkey         string
	AuthURL         string
	STKPushURL      string
	STKQueryURL     string
	CallbackURL     string
	TransactionType string
	TransactionDesc string
}

type AdminConfig struct {
	JWTSecret string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			PublicURL:    getEnv("PUBLIC_URL", "http://localhost:8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "hotel_user"),
			Password:     getEnv("DB_PASSWORD", "hotel_pass"),
			Database:     getEnv("DB_NAME", "hotel_booking"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromAddress:  getEnv("EMAIL_FROM", "reservations@royalhotel.example"),
			QRSecret:     getEnv("CHECKIN_QR_SECRET", "royal-hotel-checkin"),
		},
		Payments: PaymentsConfig{
			Currency: getEnv("DEFAULT_CURRENCY", "KES"),
			Stripe: StripeConfig{
				SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
				WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			},
			PayPal: PayPalConfig{
				ClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
				ClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),
				BaseURL:      getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			},
			Mpesa: MpesaConfig{
				ConsumerKey:     getEnv("MPESA_CONSUMER_KEY", ""),
				ConsumerSecret:  getEnv("MPESA_CONSUMER_SECRET", ""),
				Shortcode:       getEnv("MPESA_SHORTCODE", ""),
				Passkey:         getEnv("MPESA_PASSKEY", ""),
				AuthURL:         getEnv("MPESA_AUTH_URL", "https://sandbox.safaricom.co.ke/oauth/v1/generate?grant_type=client_credentials"),
				STKPushURL:      getEnv("MPESA_STK_URL", "https://sandbox.safaricom.co.ke/mpesa/stkpush/v1/processrequest"),
				STKQueryURL:     getEnv("MPESA_STK_QUERY_URL", "https://sandbox.safaricom.co.ke/mpesa/stkpushquery/v1/query"),
				CallbackURL:     getEnv("MPESA_CALLBACK_URL", ""),
				TransactionType: getEnv("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline"),
				TransactionDesc: getEnv("MPESA_TRANSACTION_DESC", "Hotel Booking Payment"),
			},
		},
		Admin: AdminConfig{
			JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
