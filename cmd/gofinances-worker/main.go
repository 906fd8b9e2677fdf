package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gofinances/internal/amqp"
	"gofinances/internal/cli"
	applog "gofinances/internal/log"
	"gofinances/internal/sheets"
	gsheet "gofinances/internal/sheets/google"
	mem "gofinances/internal/sheets/memory"
	"gofinances/internal/worker"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "export to an in-memory sheet instead of Google Sheets")
	flag.Parse()

	bootstrap := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	cli.LoadEnvFile(bootstrap)

	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)
	logger.Info("Starting gofinances-worker", "dry_run", *dryRun)

	if *dryRun {
		if !cfg.JournalEnabled() || cfg.AMQPURL == "" {
			logger.Error("SQLITE_DB_PATH and AMQP_URL are required")
			os.Exit(1)
		}
	} else if err := cfg.ValidateExport(); err != nil {
		logger.Error("Export configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	formatter, err := cfg.Formatter()
	if err != nil {
		logger.Error("Failed to build formatter", applog.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	var exporter sheets.SnapshotExporter
	if *dryRun {
		exporter = mem.New()
		logger.Info("Using in-memory export sheet")
	} else {
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		if err := client.EnsureHeader(ctx); err != nil {
			logger.Error("Failed to prepare export sheet", applog.FieldError, err, "sheet", cfg.GoogleSheetName)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, exporter, formatter, cfg.SyncBatchSize)

	logger.Info("Performing startup sync check...", applog.FieldOperation, applog.OpStartup)
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeSnapshots(gctx, syncWorker.HandleSnapshotMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return syncWorker.Run(gctx, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if _, _, err := syncWorker.ProcessPending(shutdownCtx); err != nil {
		logger.Warn("Final sync pass failed", applog.FieldError, err)
	}
	logger.Info("Worker shutdown complete")
}
