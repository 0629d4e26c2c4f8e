package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/slinky-software/devicevault/internal/collector"
	"github.com/slinky-software/devicevault/internal/lock"
	"github.com/slinky-software/devicevault/internal/plugins"
	"github.com/slinky-software/devicevault/internal/queue"
	"github.com/slinky-software/devicevault/internal/stream"
	"github.com/slinky-software/devicevault/pkg/config"
	"github.com/slinky-software/devicevault/pkg/logger"
)

func main() {
	cfg := config.Load()

	appLogger := logger.NewLogger(logger.ParseLevel(cfg.LogLevel), os.Stdout, cfg.LogJSON)
	logger.SetDefault(appLogger)

	queues := append([]string{cfg.DefaultCollectionQueue}, cfg.CollectorQueues...)

	logger.Info("Starting collection worker", map[string]interface{}{
		"app":    cfg.AppName,
		"pid":    os.Getpid(),
		"queues": queues,
	})

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

	registry := plugins.Builtin()
	locker := lock.NewClient(rdb)
	results := stream.NewPublisher(rdb, cfg.ResultsStream)

	worker := collector.NewWorker(registry, locker, results, cfg.HardTimeoutGraceSeconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, queueName := range queues {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := broker.Consume(ctx, name, worker.Handle); err != nil && ctx.Err() == nil {
				logger.Error("Queue consumer stopped", err, map[string]interface{}{
					"queue": name,
				})
				stop()
			}
		}(queueName)
	}

	wg.Wait()
	logger.Info("Collection worker shut down", nil)
}
