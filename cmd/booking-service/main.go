package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"hotel-booking/internal/availability"
	"hotel-booking/internal/booking"
	"hotel-booking/internal/booking/api"
	"hotel-booking/internal/booking/db"
	rediswrap "hotel-booking/internal/booking/redis"
	"hotel-booking/internal/config"
	"hotel-booking/internal/kafka"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/notifier"
	"hotel-booking/internal/payment"
	paymentapi "hotel-booking/internal/payment/handler"
	"hotel-booking/internal/payment/providers"
	"hotel-booking/internal/payment/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	appLog := logger.NewLogger()
	defer appLog.Close()

	// --- PostgreSQL Setup ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN()))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatalf("❌ Failed to connect to Postgres: %v", err)
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	db.Migrate(bunDB)

	// --- Redis Setup ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	log.Println("🔗 Connecting to Redis...")
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	confirmLock := rediswrap.NewConfirmLock(redisClient, appLog)

	// --- Kafka Setup ---
	var bookingEvents booking.EventPublisher
	var paymentEvents payment.EventPublisher
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{kafka.TopicBookingEvents, kafka.TopicPaymentEvents}); err != nil {
			appLog.Warn("KAFKA", "Could not ensure topics: "+err.Error())
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		bookingEvents = producer
		paymentEvents = producer
	} else {
		appLog.Info("KAFKA", "Kafka disabled, events will not be published")
	}

	// --- Core Services ---
	dbLayer := &db.DB{Bun: bunDB}
	engine := availability.NewEngine(dbLayer, availability.RealClock{}, appLog)
	mailer := notifier.NewEmailNotifier(cfg.Email, appLog)
	bookingSvc := booking.NewService(dbLayer, engine, mailer, bookingEvents, appLog)

	paymentStore, err := storage.NewPostgreSQLStoreWithDB(bunDB.DB, appLog)
	if err != nil {
		log.Fatalf("❌ Failed to initialize payment storage: %v", err)
	}

	clients := []providers.Client{
		providers.NewStripeClient(cfg.Payments.Stripe, appLog),
		providers.NewPayPalClient(cfg.Payments.PayPal, cfg.Server.PublicURL, appLog),
		providers.NewMpesaClient(cfg.Payments.Mpesa, nil, appLog),
	}
	paymentSvc := payment.NewService(paymentStore, dbLayer, engine, clients, cfg.Payments.Currency, paymentEvents, appLog)
	reconciler := payment.NewReconciler(paymentStore, bookingSvc, clients, confirmLock, paymentEvents, cfg.Payments.Stripe.WebhookSecret, appLog)

	bookingHandler := api.NewHandler(bookingSvc, appLog)
	paymentHandler := paymentapi.NewHandler(paymentSvc, reconciler, appLog)

	// --- Setup Router ---
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		bookingHandler.Routes(r)
		paymentHandler.Routes(r)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := paymentStore.HealthCheck(); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("🚀 Booking Service running on %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server error: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("📦 Shutdown signal received. Cleaning up...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server exited gracefully")
}
