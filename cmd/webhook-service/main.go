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
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"petzi-tickets/internal/audit"
	"petzi-tickets/internal/config"
	"petzi-tickets/internal/kafka"
	"petzi-tickets/internal/logger"
	"petzi-tickets/internal/tickets/db"
	tickets "petzi-tickets/internal/tickets/service"
	"petzi-tickets/internal/webhook/webhook_api"
)

func main() {
	_ = godotenv.Load() // Loads .env file if present

	cfg := config.Load()
	appLogger := logger.NewLogger()
	defer appLogger.Close()

	// The webhook secret has no fallback: starting without one would make
	// every signature check pass against a publicly known value.
	if cfg.Webhook.Secret == "" {
		appLogger.Fatal("CONFIG", "PETZI_SECRET is not set, refusing to start")
	}

	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		appLogger.Fatal("STORE", fmt.Sprintf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err))
	}
	defer client.Close()
	appLogger.Info("STORE", fmt.Sprintf("Connected to Redis at %s", cfg.Redis.Addr))

	store := &db.DB{Client: client}
	service := tickets.NewTicketService(store)
	service.Logger = appLogger

	if cfg.Audit.Enabled {
		sqldb, err := sql.Open("sqlite", cfg.Audit.DBPath)
		if err != nil {
			appLogger.Fatal("AUDIT", fmt.Sprintf("Failed to open audit database: %v", err))
		}
		bunDB := bun.NewDB(sqldb, sqlitedialect.New())
		defer bunDB.Close()

		auditLog := &audit.Log{Bun: bunDB}
		if err := auditLog.Init(ctx); err != nil {
			appLogger.Fatal("AUDIT", fmt.Sprintf("Failed to initialize audit log: %v", err))
		}
		service.Auditor = auditLog
		appLogger.Info("AUDIT", fmt.Sprintf("Delivery audit log at %s", cfg.Audit.DBPath))
	}

	if cfg.Kafka.Enabled {
		if err := kafka.CreateTopicIfNotExists(cfg.Kafka.Brokers, cfg.Kafka.Topics.TicketEvents); err != nil {
			appLogger.Warn("KAFKA", fmt.Sprintf("Topic bootstrap failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.TicketEvents)
		defer producer.Close()
		service.Producer = producer
		appLogger.LogKafka("INIT", cfg.Kafka.Topics.TicketEvents, "ticket event fan-out enabled")
	}

	handler := webhook_api.NewHandler(service, cfg.Webhook.Secret, appLogger)

	r := chi.NewRouter()
	r.HandleFunc(cfg.Webhook.Path, handler.HandlePetziWebhook)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("SERVER", fmt.Sprintf("🚀 Petzi webhook service on %s (endpoint %s)", cfg.Server.Port, cfg.Webhook.Path))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("SERVER", fmt.Sprintf("HTTP error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	appLogger.Info("SERVER", "✅ Webhook service shutdown complete")
}
