package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"till/internal/audit"
	"till/internal/checkout/handler"
	checkoutmetrics "till/internal/checkout/metrics"
	"till/internal/checkout/ports"
	"till/internal/checkout/service"
	"till/internal/customer"
	"till/internal/order"
	"till/internal/order/local"
	orderstore "till/internal/order/store"
	"till/internal/platform/config"
	"till/internal/platform/httpserver"
	"till/internal/platform/logger"
	platformredis "till/internal/platform/redis"
	"till/internal/registertoken"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Customer directory and loyalty ledger.
	var custStore customer.Store
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("customer store connect failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		pg := customer.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("customer schema migration failed", "error", err)
			os.Exit(1)
		}
		custStore = pg
	} else {
		custStore = customer.NewMemoryStore()
	}
	directory, err := customer.NewService(custStore, customer.WithLogger(log))
	if err != nil {
		log.Error("customer service init failed", "error", err)
		os.Exit(1)
	}

	var ledger customer.LoyaltyLedger = customer.NewMemoryLedger()
	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			log.Error("redis connect failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		ledger = customer.NewCachedLedger(ledger, redisClient, config.LoyaltyCacheTTL, log)
		log.Info("loyalty balance cache enabled", "ttl", config.LoyaltyCacheTTL)
	}

	// Order backend: remote service when configured, embedded otherwise.
	var backend ports.SaleBackend
	if cfg.OrderBackend != "" {
		client, err := order.NewClient(cfg.OrderBackend)
		if err != nil {
			log.Error("order client init failed", "error", err)
			os.Exit(1)
		}
		backend = client
		log.Info("using remote order backend", "url", cfg.OrderBackend)
	} else {
		var saleStore orderstore.SaleStore
		if cfg.PostgresDSN != "" {
			db, err := sql.Open("postgres", cfg.PostgresDSN)
			if err != nil {
				log.Error("sale store connect failed", "error", err)
				os.Exit(1)
			}
			defer db.Close()
			pg := orderstore.NewPostgres(db)
			if err := pg.EnsureSchema(ctx); err != nil {
				log.Error("sale schema migration failed", "error", err)
				os.Exit(1)
			}
			saleStore = pg
		} else {
			saleStore = orderstore.NewMemoryStore()
			log.Warn("using in-memory sale store; sales are lost on restart")
		}
		embedded, err := local.New(saleStore,
			local.WithLogger(log),
			local.WithLoyalty(ledger),
			local.WithCustomers(directory),
			local.WithAllowBalanceDue(cfg.AllowBalanceDue),
		)
		if err != nil {
			log.Error("embedded order backend init failed", "error", err)
			os.Exit(1)
		}
		backend = embedded
	}

	// Audit trail: events flow through a buffered channel so a slow sink never
	// stalls a checkout.
	var sink audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("kafka audit sink init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("audit events publishing to kafka", "topic", cfg.AuditTopic)
	} else {
		sink = audit.NewMemorySink()
	}
	auditInbox := make(chan audit.Event, 1024)
	worker := audit.NewWorker(sink, auditInbox, log)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()
	publisher := audit.NewPublisher(audit.NewChannelSink(auditInbox, log))

	checkout, err := service.New(backend,
		service.WithLogger(log),
		service.WithLoyalty(ledger),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(checkoutmetrics.New()),
		service.WithAllowBalanceDue(cfg.AllowBalanceDue),
	)
	if err != nil {
		log.Error("checkout service init failed", "error", err)
		os.Exit(1)
	}

	registers := registertoken.NewService(cfg.JWTSigningKey, cfg.TokenIssuer, bootstrapOperators(log), 12*time.Hour)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	handler.New(checkout, directory, ledger, registers, registers, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("till checkout listening", "addr", cfg.Addr, "location_id", cfg.LocationID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// bootstrapOperators seeds the operator store from the environment. Real
// deployments replace this with a provisioning flow; the defaults exist so a
// fresh dev instance has a working register.
func bootstrapOperators(log *slog.Logger) *registertoken.MemoryOperatorStore {
	operatorID := envOr("CHECKOUT_BOOTSTRAP_OPERATOR", "operator-1")
	pin := envOr("CHECKOUT_BOOTSTRAP_PIN", "1234")
	if pin == "1234" {
		log.Warn("bootstrap operator is using the default PIN; set CHECKOUT_BOOTSTRAP_PIN")
	}

	hash, err := registertoken.HashPIN(pin)
	if err != nil {
		log.Error("hash bootstrap PIN failed", "error", err)
		os.Exit(1)
	}
	return registertoken.NewMemoryOperatorStore(&registertoken.Operator{
		ID:          operatorID,
		DisplayName: "Bootstrap Operator",
		PINHash:     hash,
		CanFinalize: true,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
