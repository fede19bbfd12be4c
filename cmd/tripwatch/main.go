package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tripwatch-data/internal/api"
	"github.com/tripwatch-data/internal/common/config"
	"github.com/tripwatch-data/internal/common/db"
	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/internal/common/maintenance"
	"github.com/tripwatch-data/internal/common/metrics"
	gtfs_realtime "github.com/tripwatch-data/internal/gtfs-realtime"
	"github.com/tripwatch-data/internal/publisher"
	"github.com/tripwatch-data/internal/recorder"
	"github.com/tripwatch-data/internal/schedule"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(
		logger.ParseLevel(cfg.Logging.Level),
		logger.ConsoleWriter(),
		logger.FileWriter(cfg.Logging.FilePath),
	)

	log.Info("Tripwatch data service starting",
		"dataset", cfg.Dataset,
		"log_level", cfg.Logging.Level,
		"feed_url", cfg.Feed.URL,
	)

	database, err := db.New(cfg.Database.ConnectionString(), log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	collector := metrics.NewCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	// Realtime polling, only when a feed is configured.
	var rtStore *gtfs_realtime.Store
	if cfg.Feed.URL != "" {
		rtManager := gtfs_realtime.NewManager(cfg.Feed, database, cfg.Dataset, collector, log)
		if err := rtManager.Start(ctx); err != nil {
			log.Fatal("Failed to start realtime manager", "error", err)
		}
		defer rtManager.Stop()
		rtStore = rtManager.Store()
	} else {
		log.Info("Realtime polling disabled (no feed URL configured)")
		rtStore = gtfs_realtime.NewStore(database, cfg.Dataset, log)
	}

	storage := schedule.NewStorage(database.DB(), cfg.Dataset)

	// Delay recorder, with optional NATS fan-out.
	var pub recorder.Publisher
	if cfg.NATS.URL != "" {
		natsPub, err := publisher.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectBase, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", "error", err)
		}
		defer natsPub.Close()
		pub = natsPub
	}
	sink := recorder.NewPostgresSink(database, cfg.Dataset, log)
	rec := recorder.New(storage, rtStore, sink, pub, cfg.Recorder, collector, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec.Run(ctx)
	}()

	// Retention cleanup.
	cleanup := maintenance.NewCleanupScheduler(database, log, maintenance.DefaultSchedulerConfig())
	if err := cleanup.Start(ctx); err != nil {
		log.Fatal("Failed to start cleanup scheduler", "error", err)
	}
	defer cleanup.Stop()

	// HTTP API.
	reconciler := schedule.NewReconciler(rtStore, log)
	server := api.NewServer(cfg.API, storage, reconciler, collector, func(ctx context.Context) error {
		return database.DB().PingContext(ctx)
	}, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			log.Error("API server error", "error", err)
		}
	}()

	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("API shutdown error", "error", err)
	}

	cancel()
	wg.Wait()

	log.Info("Tripwatch data service stopped")
}
