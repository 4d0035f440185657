// The relay binary drains the audit outbox and publishes recorded events to
// Kafka. It runs separately from the API so a broker outage never slows the
// write path.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aivisualpro/planzo-audit/internal/config"
	"github.com/aivisualpro/planzo-audit/internal/outbox"
	"github.com/aivisualpro/planzo-audit/internal/platform/logger"
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

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	dispatcher := outbox.NewDispatcher(pool, producer, zlog.With("component", "dispatcher"),
		cfg.AuditTopic, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	go dispatcher.Start(ctx)
	zlog.Info("audit relay started", "topic", cfg.AuditTopic, "poll_interval", cfg.OutboxPollInterval.String())

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownCh

	cancel()
	dispatcher.Wait()
}
