package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bankcore/ledger-service/internal/config"
	"github.com/bankcore/ledger-service/internal/db"
	"github.com/bankcore/ledger-service/internal/domain"
	"github.com/bankcore/ledger-service/internal/events"
	"github.com/bankcore/ledger-service/internal/messaging"
	"github.com/bankcore/ledger-service/pkg/logger"
	"github.com/bankcore/ledger-service/pkg/metrics"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create database pool")
	}
	defer pool.Close()
	log.Info().Msg("database connection pool initialized")

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	accountRepo := db.NewAccountRepository(pool.Pool)
	operationRepo := db.NewOperationRepository(pool.Pool)
	txManager := db.NewTransactionManager(pool.Pool)

	publisher, err := events.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}
	defer publisher.Close()
	log.Info().Str("exchange", cfg.RabbitMQ.Exchange).Msg("event publisher initialized")

	collector := metrics.NewCollector(log)
	metricsServer := collector.StartServer(cfg.MetricsAddr)

	ledger := domain.NewLedgerService(accountRepo, operationRepo, txManager, publisher, collector, log)
	log.Info().Msg("ledger service initialized")

	consumer, err := messaging.NewConsumer(messaging.Config{
		URL:        cfg.RabbitMQ.URL,
		Queue:      cfg.RabbitMQ.CommandQueue,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.CommandRoutingKey,
	}, ledger, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create command consumer")
	}
	defer consumer.Close()

	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("command consumer stopped")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := collector.Shutdown(shutdownCtx, metricsServer); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown failed")
	}
	log.Info().Msg("stopped")
}
