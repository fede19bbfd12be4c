package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tripwatch-data/internal/common/config"
	"github.com/tripwatch-data/internal/common/db"
	"github.com/tripwatch-data/internal/common/discord"
	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/internal/gtfs-static/importer"
)

func main() {
	dir := flag.String("dir", "", "directory containing the extracted GTFS .txt files")
	dataset := flag.String("dataset", "", "dataset name to load into (defaults to GTFS_DATASET)")
	webhook := flag.String("webhook", os.Getenv("DISCORD_WEBHOOK_URL"), "Discord webhook for import notifications (optional)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	if *dataset == "" {
		*dataset = cfg.Dataset
	}

	log := logger.New(
		logger.ParseLevel(cfg.Logging.Level),
		logger.ConsoleWriter(),
		logger.FileWriter(cfg.Logging.FilePath),
	)

	if *dir == "" {
		log.Fatal("Missing required -dir flag")
	}
	if info, err := os.Stat(*dir); err != nil || !info.IsDir() {
		log.Fatal("GTFS directory not found", "dir", *dir)
	}

	database, err := db.New(cfg.Database.ConnectionString(), log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	// A second SIGINT kills the process; the first cancels the import so
	// in-flight batches can stop cleanly.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn("Interrupt received, cancelling import")
		cancel()
	}()

	notifier := discord.NewClient(*webhook)

	log.Info("Starting GTFS import", "dir", *dir, "dataset", *dataset)
	start := time.Now()

	writer := importer.NewPostgresWriter(database.DB(), log)
	im := importer.New(writer, *dataset, log)

	counts, err := im.ImportDir(ctx, *dir)
	if err != nil {
		if notifyErr := notifier.SendImportFailure(*dataset, err); notifyErr != nil {
			log.Warn("Failed to send import failure notification", "error", notifyErr)
		}
		log.Fatal("Import failed", "error", err)
	}
	duration := time.Since(start)

	var total int64
	report := make(map[string]int64, len(counts))
	for kind, n := range counts {
		report[kind.String()] = n
		total += n
	}
	log.Info("Import completed", "rows", total, "duration", duration.Round(time.Millisecond))

	// Cross-check the dataset's stored row counts against what we wrote.
	inspector := db.NewDatasetInspector(database)
	stored, err := inspector.RowCounts(ctx, *dataset)
	if err != nil {
		log.Warn("Failed to verify stored row counts", "error", err)
	} else {
		for entity, n := range stored {
			if written, ok := report[entity]; ok && written != n {
				log.Warn("Stored row count differs from rows written",
					"entity", entity, "written", written, "stored", n)
			}
		}
	}

	if err := notifier.SendImportReport(*dataset, report, duration); err != nil {
		log.Warn("Failed to send import notification", "error", err)
	}
}
