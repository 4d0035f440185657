package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aivisualpro/planzo-audit/internal/api"
	"github.com/aivisualpro/planzo-audit/internal/audit"
	"github.com/aivisualpro/planzo-audit/internal/auth"
	"github.com/aivisualpro/planzo-audit/internal/config"
	"github.com/aivisualpro/planzo-audit/internal/persistence/postgres"
	"github.com/aivisualpro/planzo-audit/internal/platform/logger"
	"github.com/aivisualpro/planzo-audit/internal/report"
	"github.com/aivisualpro/planzo-audit/internal/timer"
	httptransport "github.com/aivisualpro/planzo-audit/internal/transport/http"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		zlog.Fatal("failed to connect to postgres", "error", err)
	}
	defer pool.Close()

	eventStore := postgres.NewEventStore(pool)
	trackingStore := postgres.NewTrackingStore(pool)

	recorder := audit.NewRecorder(eventStore, zlog.With("component", "recorder"), cfg.RecorderQueueSize)
	go recorder.Start(ctx)

	queryService := audit.NewQueryService(eventStore)
	engine := report.NewEngine(trackingStore, trackingStore, report.WithConcurrency(cfg.ReportConcurrency))
	timerService := timer.NewService(trackingStore, trackingStore, recorder)

	handler := api.NewHandler(recorder, queryService, engine, timerService)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	requestLog := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			zlog.Debug("request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		func(r *http.Request) bool {
			return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
		},
	)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(requestLog(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		zlog.Info("audit-service listening", "address", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server error", "error", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("graceful shutdown failed", "error", err)
	}

	// Let the recorder flush whatever is still queued.
	recorder.Wait()
}
