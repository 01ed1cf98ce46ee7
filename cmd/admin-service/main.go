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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"hotel-booking/internal/admin"
	"hotel-booking/internal/auth"
	"hotel-booking/internal/availability"
	"hotel-booking/internal/booking"
	"hotel-booking/internal/booking/db"
	"hotel-booking/internal/config"
	"hotel-booking/internal/logger"
	"hotel-booking/internal/notifier"
	"hotel-booking/internal/payment"
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

	// --- Core Services ---
	// The admin service shares the booking-service tables; no migration
	// runs here.
	dbLayer := &db.DB{Bun: bunDB}
	engine := availability.NewEngine(dbLayer, availability.RealClock{}, appLog)
	mailer := notifier.NewEmailNotifier(cfg.Email, appLog)
	bookingSvc := booking.NewService(dbLayer, engine, mailer, nil, appLog)

	paymentStore, err := storage.NewPostgreSQLStoreWithDB(bunDB.DB, appLog)
	if err != nil {
		log.Fatalf("❌ Failed to initialize payment storage: %v", err)
	}

	clients := []providers.Client{
		providers.NewStripeClient(cfg.Payments.Stripe, appLog),
		providers.NewPayPalClient(cfg.Payments.PayPal, cfg.Server.PublicURL, appLog),
		providers.NewMpesaClient(cfg.Payments.Mpesa, nil, appLog),
	}
	reconciler := payment.NewReconciler(paymentStore, bookingSvc, clients, nil, nil, cfg.Payments.Stripe.WebhookSecret, appLog)

	adminHandler := admin.NewHandler(paymentStore, reconciler, bookingSvc, appLog)

	// --- Setup Router ---
	router := gin.Default()
	v1 := router.Group("/admin/v1")
	v1.Use(auth.AdminOnly(cfg.Admin.JWTSecret, appLog))
	adminHandler.Routes(v1)

	router.GET("/health", func(c *gin.Context) {
		if err := paymentStore.HealthCheck(); err != nil {
			c.String(http.StatusServiceUnavailable, "database unreachable")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	port := os.Getenv("ADMIN_PORT")
	if port == "" {
		port = ":8081"
	}

	server := &http.Server{
		Addr:         port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("🚀 Admin Service running on %s", port)
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
