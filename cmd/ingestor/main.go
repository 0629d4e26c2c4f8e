package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/slinky-software/devicevault/internal/events"
	"github.com/slinky-software/devicevault/internal/ingest"
	"github.com/slinky-software/devicevault/internal/queue"
	"github.com/slinky-software/devicevault/internal/repository"
	"github.com/slinky-software/devicevault/internal/stream"
	"github.com/slinky-software/devicevault/pkg/config"
	"github.com/slinky-software/devicevault/pkg/logger"
)

func main() {
	cfg := config.Load()

	appLogger := logger.NewLogger(logger.ParseLevel(cfg.LogLevel), os.Stdout, cfg.LogJSON)
	logger.SetDefault(appLogger)

	logger.Info("Starting ingestor", map[string]interface{}{
		"app":      cfg.AppName,
		"pid":      os.Getpid(),
		"consumer": cfg.ConsumerName,
	})

	if err := repository.InitDB(cfg); err != nil {
		logger.Fatal("Failed to initialize database", err, nil)
	}
	db := repository.GetDB()

	closeEvents := events.ConfigureStorage(cfg, db)
	defer closeEvents()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Invalid Redis URL", err, nil)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	broker, err := queue.Dial(cfg.BrokerURL, cfg.QueuePrefetch, cfg.QueueMaxRetries)
	if err != nil {
		logger.Fatal("Failed to connect to broker", err, nil)
	}
	defer broker.Close()

	devices := repository.NewDeviceRepository(db)
	results := repository.NewResultRepository(db)

	deviceIngestor := ingest.NewDeviceResultIngestor(
		stream.NewConsumer(rdb, cfg.ResultsStream, cfg.ResultsGroup, cfg.ConsumerName),
		devices,
		results,
		broker,
	)
	storageIngestor := ingest.NewStorageResultIngestor(
		stream.NewConsumer(rdb, cfg.StorageResultsStream, cfg.StorageResultsGroup, cfg.ConsumerName),
		results,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := deviceIngestor.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Device result ingestor stopped", err, nil)
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := storageIngestor.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Storage result ingestor stopped", err, nil)
			stop()
		}
	}()

	wg.Wait()
	logger.Info("Ingestor shut down", nil)
}
