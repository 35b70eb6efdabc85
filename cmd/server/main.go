package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"datamarket/internal/platform/config"
	"datamarket/internal/platform/httpserver"
	"datamarket/internal/platform/kafka"
	"datamarket/internal/platform/logger"
	"datamarket/internal/registry"
	"datamarket/internal/registry/cache"
	registrymetrics "datamarket/internal/registry/metrics"
	"datamarket/internal/registry/service"
	"datamarket/internal/registry/store"
	id "datamarket/pkg/domain"
	"datamarket/pkg/platform/middleware/auth"
	"datamarket/pkg/platform/middleware/requestid"
	"datamarket/pkg/platform/middleware/requesttime"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Ledger rules live in internal/registry/service.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledgerStore, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		log.Error("store init failed", "error", err.Error())
		os.Exit(1)
	}
	defer cleanup()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(registrymetrics.New()),
	}

	recordCache, err := cache.New(cfg.Redis, log)
	if err != nil {
		log.Error("redis init failed", "error", err.Error())
		os.Exit(1)
	}
	if recordCache != nil {
		opts = append(opts, service.WithCache(recordCache))
	}

	producer, err := kafka.NewProducer(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
	if err != nil {
		log.Error("kafka init failed", "error", err.Error())
		os.Exit(1)
	}
	if producer != nil {
		defer producer.Close()
		opts = append(opts, service.WithAuditPublisher(producer))
	}

	ledger, err := registry.NewService(ledgerStore, id.AccountID(cfg.AdminAccount), opts...)
	if err != nil {
		log.Error("ledger init failed", "error", err.Error())
		os.Exit(1)
	}

	verifier := auth.NewHMACVerifier(cfg.JWTSigningKey)
	registryHandler := registry.NewHandler(ledger, verifier, log)

	router := chi.NewRouter()
	router.Use(requestid.Middleware)
	router.Use(requesttime.Middleware)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/v1", registryHandler.Register)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting datamarket registry", "addr", cfg.Addr, "admin", cfg.AdminAccount)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err.Error())
		os.Exit(1)
	}
}

// buildStore picks Postgres when DATABASE_URL is set, otherwise the
// in-memory ledger for development.
func buildStore(ctx context.Context, cfg config.Server) (service.LedgerStore, func(), error) {
	if cfg.PostgresURL == "" {
		return store.NewInMemory(cfg.DefaultFee), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	pg := store.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx, cfg.DefaultFee); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pg, pool.Close, nil
}
