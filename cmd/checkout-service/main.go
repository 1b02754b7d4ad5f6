package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"parlomo-ticketing/internal/analytics"
	analyticsapi "parlomo-ticketing/internal/analytics/api"
	"parlomo-ticketing/internal/auth"
	"parlomo-ticketing/internal/checkout"
	"parlomo-ticketing/internal/checkout/checkout_api"
	"parlomo-ticketing/internal/checkout/session"
	"parlomo-ticketing/internal/config"
	"parlomo-ticketing/internal/fees"
	"parlomo-ticketing/internal/kafka"
	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
	"parlomo-ticketing/internal/orders"
	ordersdb "parlomo-ticketing/internal/orders/db"
	"parlomo-ticketing/internal/orders/orders_api"
	"parlomo-ticketing/internal/payments"
	"parlomo-ticketing/internal/promo"
	"parlomo-ticketing/internal/sse"
	"parlomo-ticketing/internal/tickets"
	ticketsdb "parlomo-ticketing/internal/tickets/db"
	"parlomo-ticketing/internal/tickets/qr"
	"parlomo-ticketing/internal/tickets/ticket_api"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Parlomo ticketing service")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	httpClient := &http.Client{Timeout: 10 * time.Second}

	// --- Kafka ---
	producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
	defer producer.Close()
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.AllTopics(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
	}

	// --- Promo lookups ---
	fetcher := promo.NewFetcher(httpClient, cfg.Promo.ServiceURL, log)
	if cfg.Auth.ClientID != "" {
		tokenCache := auth.NewRedisTokenCache(redisClient)
		fetcher.WithTokenProvider(auth.NewM2MClient(cfg.Auth.Issuer, cfg.Auth.ClientID, cfg.Auth.ClientSecret, httpClient, tokenCache, log))
		log.Info("AUTH", "M2M client credentials configured for promo service calls")
	}
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, kafka.TopicPromoUpdated, "parlomo-ticketing", log)
		defer consumer.Close()
		go consumer.Start(ctx, func(event kafka.PromoUpdatedEvent) {
			fetcher.Invalidate(event.Code)
		})
	}

	// --- Core services ---
	qrGen, err := qr.NewGenerator(cfg.QRSigningKey)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("QR generator setup failed: %v", err))
	}

	sessionStore := session.NewStore(redisClient, log)
	stripeProvider := payments.NewStripeProvider(cfg.Stripe.SecretKey, log)
	ticketService := tickets.NewService(&ticketsdb.DB{Bun: bunDB}, qrGen, producer, log)
	orderService := orders.NewService(&ordersdb.DB{Bun: bunDB}, sessionStore, stripeProvider, ticketService, producer, log)

	emitter := sse.NewCheckoutEventEmitter()
	registry := checkout.NewRegistry(orderService, log)
	defer registry.Shutdown()
	registry.SetExpiryHandler(func(sess models.CheckoutSession, snap checkout.Snapshot) {
		if err := orderService.ExpireSession(context.Background(), sess.SessionID); err != nil {
			log.Error("CHECKOUT", fmt.Sprintf("Failed to expire session %s: %v", sess.SessionID, err))
		}
		emitter.EmitSnapshot(sess.SessionID, sess.EventID, snap)
	})

	calculator := fees.NewCalculator(cfg.Fees)

	checkoutHandler := checkout_api.NewHandler(registry, sessionStore, calculator, fetcher, emitter, cfg.Checkout.SessionTTL)
	ticketHandler := ticket_api.NewHandler(ticketService)
	orderHandler := orders_api.NewHandler(orderService)
	analyticsHandler := analyticsapi.NewHandler(analytics.NewService(bunDB))
	webhookHandler := payments.NewWebhookHandler(cfg.Stripe.WebhookSecret, orderService, log)

	// --- Router ---
	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// Stripe calls this unauthenticated; the payload signature is the
	// authentication.
	r.Post("/api/v1/webhooks/stripe", func(w http.ResponseWriter, req *http.Request) {
		if err := webhookHandler.Handle(req); err != nil {
			if whErr, ok := err.(*payments.WebhookError); ok {
				http.Error(w, whErr.PublicError, whErr.StatusCode)
				return
			}
			http.Error(w, "Webhook processing error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mountAPI := func(r chi.Router) {
		r.Route("/api/v1", func(r chi.Router) {
			checkoutHandler.Routes(r)
			ticketHandler.Routes(r)
			orderHandler.Routes(r)
			analyticsHandler.Routes(r)
		})
	}

	if cfg.Auth.Issuer != "" {
		authMiddleware, err := auth.Middleware(cfg.Auth.Issuer)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("OIDC setup failed: %v", err))
		}
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			mountAPI(r)
		})
		log.Info("AUTH", "JWT middleware applied to API routes")
	} else {
		log.Warn("AUTH", "OIDC_ISSUER not set, API routes are unauthenticated")
		mountAPI(r)
	}

	// No write timeout: SSE checkout streams stay open for the whole
	// session countdown.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Ticketing service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Ticketing service shutdown complete")
	}
}
