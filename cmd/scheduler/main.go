package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/slinky-software/devicevault/internal/dispatch"
	"github.com/slinky-software/devicevault/internal/events"
	"github.com/slinky-software/devicevault/internal/lock"
	"github.com/slinky-software/devicevault/internal/queue"
	"github.com/slinky-software/devicevault/internal/repository"
	"github.com/slinky-software/devicevault/internal/scheduler"
	"github.com/slinky-software/devicevault/pkg/config"
	"github.com/slinky-software/devicevault/pkg/logger"
	"github.com/slinky-software/devicevault/pkg/timeutil"
)

func main() {
	checkLock := flag.Bool("check-lock", false, "print the current leadership lock holder and exit")
	clearLock := flag.Bool("clear-lock", false, "force-clear the leadership lock and exit")
	flag.Parse()

	cfg := config.Load()

	appLogger := logger.NewLogger(logger.ParseLevel(cfg.LogLevel), os.Stdout, cfg.LogJSON)
	logger.SetDefault(appLogger)

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Invalid Redis URL", err, nil)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	locker := lock.NewClient(rdb)

	if *checkLock || *clearLock {
		runLockCommand(locker, cfg, *clearLock)
		return
	}

	if !cfg.SchedulerEnabled {
		logger.Info("Scheduler disabled by configuration, exiting", nil)
		return
	}

	logger.Info("Starting scheduler", map[string]interface{}{
		"app": cfg.AppName,
		"pid": os.Getpid(),
	})

	if err := repository.InitDB(cfg); err != nil {
		logger.Fatal("Failed to initialize database", err, nil)
	}
	db := repository.GetDB()

	closeEvents := events.ConfigureStorage(cfg, db)
	defer closeEvents()

	broker, err := queue.Dial(cfg.BrokerURL, cfg.QueuePrefetch, cfg.QueueMaxRetries)
	if err != nil {
		logger.Fatal("Failed to connect to broker", err, nil)
	}
	defer broker.Close()

	loc := timeutil.LoadDisplayLocation(cfg.DisplayTimezone)
	calc := scheduler.NewCalculator(loc)
	dispatcher := dispatch.NewDispatcher(broker, cfg.CollectTimeoutSeconds)

	daemon := scheduler.NewDaemon(
		cfg,
		locker,
		repository.NewSchedulerStateRepository(db),
		repository.NewScheduleRepository(db),
		repository.NewDeviceRepository(db),
		repository.NewResultRepository(db),
		dispatcher,
		calc,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx); err != nil {
		logger.Fatal("Scheduler exited with error", err, nil)
	}

	logger.Info("Scheduler shut down", nil)
}

// runLockCommand implements the --check-lock and --clear-lock flags
func runLockCommand(locker *lock.Client, cfg *config.Config, clear bool) {
	ctx := context.Background()

	holder, err := locker.CurrentHolder(ctx, cfg.SchedulerLockKey)
	if err != nil {
		logger.Fatal("Failed to inspect lock", err, nil)
	}

	if holder == "" {
		fmt.Printf("lock %s is not held\n", cfg.SchedulerLockKey)
		return
	}

	fmt.Printf("lock %s held by %s (alive: %t)\n", cfg.SchedulerLockKey, holder, lock.HolderAlive(holder))

	if clear {
		if _, err := locker.ForceClear(ctx, cfg.SchedulerLockKey); err != nil {
			logger.Fatal("Failed to clear lock", err, nil)
		}
		fmt.Printf("lock %s cleared\n", cfg.SchedulerLockKey)
	}
}
