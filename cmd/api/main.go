package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/slinky-software/devicevault/internal/api"
	"github.com/slinky-software/devicevault/internal/dispatch"
	"github.com/slinky-software/devicevault/internal/events"
	"github.com/slinky-software/devicevault/internal/lock"
	"github.com/slinky-software/devicevault/internal/plugins"
	"github.com/slinky-software/devicevault/internal/queue"
	"github.com/slinky-software/devicevault/internal/repository"
	"github.com/slinky-software/devicevault/pkg/config"
	"github.com/slinky-software/devicevault/pkg/logger"
)

func main() {
	cfg := config.Load()

	appLogger := logger.NewLogger(logger.ParseLevel(cfg.LogLevel), os.Stdout, cfg.LogJSON)
	logger.SetDefault(appLogger)

	logger.Info("Starting API", map[string]interface{}{
		"app":   cfg.AppName,
		"debug": cfg.Debug,
		"port":  cfg.Port,
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
	states := repository.NewSchedulerStateRepository(db)

	dispatcher := dispatch.NewDispatcher(broker, cfg.CollectTimeoutSeconds)
	locker := lock.NewClient(rdb)
	registry := plugins.Builtin()

	router := api.SetupRouter(
		api.NewHealthHandler(db),
		api.NewPrometheusHandler(),
		api.NewBackupHandler(devices, results, dispatcher),
		api.NewSchedulerHandler(states, locker, cfg),
		api.NewPluginHandler(registry),
		api.NewEventsHandler(),
		cfg,
	)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gracefully...", nil)
		closeEvents()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info("Server starting", map[string]interface{}{
		"address":      addr,
		"health_check": fmt.Sprintf("http://localhost%s/health", addr),
	})

	if err := router.Run(addr); err != nil {
		logger.Fatal("Failed to start server", err, nil)
	}
}
