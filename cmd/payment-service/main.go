package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"parlomo-ticketing/internal/config"
	handlers "parlomo-ticketing/internal/payment/handler"
	"parlomo-ticketing/internal/payment/storage"
	"parlomo-ticketing/internal/payments"

	"parlomo-ticketing/internal/logger"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Parlomo payment gateway")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}
	if cfg.Stripe.SecretKey == "" {
		log.Fatal("CONFIG", "STRIPE_SECRET_KEY not set")
	}

	store, err := storage.NewPostgreSQLStore(cfg.Database.DSN, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Payment storage setup failed: %v", err))
	}
	defer store.Close()

	provider := payments.NewStripeProvider(cfg.Stripe.SecretKey, log)
	handler := handlers.NewStripeHandler(provider, store, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	handler.RegisterRoutes(r)

	port := os.Getenv("PAYMENT_PORT")
	if port == "" {
		port = ":8085"
	}

	server := &http.Server{
		Addr:         port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Payment gateway running on %s", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Payment gateway shutdown complete")
	}
}
