package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"piano/internal/amqp"
	"piano/internal/config"
	"piano/internal/engine"
	"piano/internal/export/sheets"
	"piano/internal/log"
	"piano/internal/services"
	"piano/internal/storage"
	"piano/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentWorker})
	logger.Info("starting piano-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger)
	if err != nil {
		logger.Error("failed to initialize storage", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	eng := engine.New(logger)
	projectionWorker := worker.NewProjectionWorker(repo, repo, eng, logger)

	// The worker computes projections offloaded by the API; the exporter
	// additionally pushes a monthly outlook to Google Sheets when configured.
	var exporter *sheets.Exporter
	if cfg.SheetsExportEnabled() {
		exporter, err = sheets.NewFromEnv(context.Background(), logger)
		if err != nil {
			logger.Error("failed to initialize sheets exporter", log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("sheets export disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := amqpClient.ConsumeProjectionJobs(ctx, cfg.WorkerPrefetch, projectionWorker.HandleProjectionJob)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if exporter != nil {
		planner := services.NewPlanner(repo, repo, nil, eng, services.PlannerConfig{
			CacheCapacity:        cfg.CacheCapacity,
			CacheTTL:             cfg.CacheTTL,
			InlineProjectionDays: cfg.InlineProjectionDays,
		}, logger)

		g.Go(func() error {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()

			exportOutlook(ctx, planner, exporter, logger)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					exportOutlook(ctx, planner, exporter, logger)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("worker failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("worker stopped gracefully")
}

// exportOutlook pushes the current month's outlook to the spreadsheet.
// Export failures are logged and retried on the next tick.
func exportOutlook(ctx context.Context, planner *services.Planner, exporter *sheets.Exporter, logger *log.Logger) {
	now := time.Now()
	outlook, err := planner.MonthOutlook(ctx, now.Year(), now.Month())
	if err != nil {
		logger.Error("outlook computation failed", log.FieldError, err)
		return
	}
	if err := exporter.ExportOutlook(ctx, outlook); err != nil {
		logger.Error("outlook export failed", log.FieldError, err)
	}
}
