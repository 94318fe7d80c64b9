package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mfriedrich/ocrtrack/internal/config"
	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/logger"
	"github.com/mfriedrich/ocrtrack/internal/paperless"
	"github.com/mfriedrich/ocrtrack/internal/repository"
	"github.com/mfriedrich/ocrtrack/internal/service"
	"github.com/mfriedrich/ocrtrack/internal/storage"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "ocrtrack-cli",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	doSync := flag.Bool("sync", false, "Refresh the snapshot store before selecting")
	doPrune := flag.Bool("prune", false, "Delete snapshots of documents gone from the remote")
	idsFlag := flag.String("ids", "", "Comma-separated document IDs to run")
	missingArchive := flag.Bool("missing-archive", false, "Select documents without an archive artifact")
	lowContent := flag.Int64("low-content", 0, "Select documents with content shorter than this (0 disables)")
	sample := flag.Int("sample", 0, "Select this many random documents (0 disables)")
	seed := flag.Int64("seed", 0, "Seed for reproducible sampling (0 means unseeded)")
	force := flag.Bool("force", false, "Re-run documents even with a newer successful run")
	engineFlag := flag.String("engine", "", "Engine to run: internal or llm_compatible")
	doExport := flag.Bool("export", false, "Export post-run texts after the batch")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	snapshotRepo := repository.NewSnapshotRepository(db)
	ledgerRepo := repository.NewRunLedgerRepository(db)
	exportRepo := repository.NewExportRepository(db)
	syncRunRepo := repository.NewSyncRunRepository(db)

	client := paperless.New(&paperless.Config{
		BaseURL:  cfg.Paperless.BaseURL,
		Token:    cfg.Paperless.Token,
		PageSize: cfg.Paperless.PageSize,
		Timeout:  cfg.Paperless.Timeout,
	})

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	syncService := service.NewSyncService(client, snapshotRepo, syncRunRepo, appLogger)

	if *doSync {
		run, err := syncService.Sync(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Sync failed")
		}
		appLogger.WithFields(logger.Fields{
			"new":       run.NewCount,
			"changed":   run.ChangedCount,
			"unchanged": run.UnchangedCount,
			"missing":   run.MissingCount,
		}).Info("Sync completed")
	}

	if *doPrune {
		pruned, err := syncService.Prune(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Prune failed")
		}
		appLogger.WithField(logger.FieldCount, pruned).Info("Prune completed")
	}

	if *engineFlag == "" {
		// Sync-only invocation
		return
	}

	engineKind := domain.EngineKind(*engineFlag)
	if !engineKind.Valid() {
		appLogger.WithField(logger.FieldEngine, *engineFlag).Fatal("Unknown engine")
	}

	ids, err := parseIDs(*idsFlag)
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid -ids value")
	}

	criteria := service.SelectCriteria{
		ExplicitIDs:         ids,
		MissingArchive:      *missingArchive,
		LowContentThreshold: *lowContent,
		SampleSize:          *sample,
		Engine:              engineKind,
		Force:               *force,
	}
	if *seed != 0 {
		criteria.Seed = seed
	}

	selector := service.NewSelector(snapshotRepo, ledgerRepo, appLogger)
	candidates, err := selector.Select(ctx, criteria)
	if err != nil {
		appLogger.WithError(err).Fatal("Selection failed")
	}
	if len(candidates) == 0 {
		appLogger.Info("No candidates selected, nothing to do")
		return
	}

	llmService := service.NewLLMService(&service.LLMConfig{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		Mode:         cfg.LLM.Mode,
		Timeout:      cfg.LLM.Timeout,
		RetryCount:   cfg.LLM.RetryCount,
		RetryBackoff: cfg.LLM.RetryBackoff,
	})
	engines := []service.Engine{
		service.NewInternalEngine(client, &service.InternalEngineConfig{
			PollInterval:       cfg.Run.PollInterval,
			NoTaskPollInterval: cfg.Run.NoTaskPollInterval,
			Timeout:            cfg.Run.Timeout,
		}, appLogger),
		service.NewLLMEngine(client, llmService, cfg.LLM.WriteBack, appLogger),
	}

	executor := service.NewExecutor(snapshotRepo, ledgerRepo, client, engines, appLogger, &service.ExecutorConfig{
		Workers:        cfg.Run.Workers,
		Timeout:        cfg.Run.Timeout,
		SnapshotMaxAge: cfg.Run.SnapshotMaxAge,
	})

	var formats []domain.ExportFormat
	if *doExport {
		var mirror storage.ObjectStorage
		if cfg.Export.Mirror.Enabled {
			mirror, err = storage.NewStorage(&storage.S3Config{
				Type:      storage.StorageType(cfg.Export.Mirror.Type),
				Endpoint:  cfg.Export.Mirror.Endpoint,
				AccessKey: cfg.Export.Mirror.AccessKey,
				SecretKey: cfg.Export.Mirror.SecretKey,
				UseSSL:    cfg.Export.Mirror.UseSSL,
				Bucket:    cfg.Export.Mirror.Bucket,
				Region:    cfg.Export.Mirror.Region,
				PublicURL: cfg.Export.Mirror.PublicURL,
			})
			if err != nil {
				appLogger.WithError(err).Fatal("Failed to initialize export mirror")
			}
		}
		executor.AttachExporter(service.NewExporter(exportRepo, client, mirror, cfg.Export.Root, appLogger))
		formats = []domain.ExportFormat{domain.ExportFormatMarkdown, domain.ExportFormatJSON}
	}

	result, err := executor.RunBatch(ctx, candidates, engineKind, formats)
	if err != nil {
		appLogger.WithError(err).Fatal("Run batch failed")
	}

	if *doExport {
		exported := 0
		for _, ev := range result.Events {
			if len(ev.ExportedPaths) > 0 {
				exported++
			}
		}
		appLogger.WithField(logger.FieldCount, exported).Info("Export completed")
	}

	reporter := service.NewReporter(snapshotRepo, cfg.Export.ReportsDir, appLogger)
	reportPath, err := reporter.WriteCSV(ctx, result)
	if err != nil {
		appLogger.WithError(err).Error("Failed to write run report")
	} else {
		appLogger.WithField("report", reportPath).Info("Report written")
	}

	appLogger.WithFields(logger.Fields{
		"candidates":                            len(candidates),
		string(domain.OutcomeSuccess):           result.Counts[domain.OutcomeSuccess],
		string(domain.OutcomeFailPartialOutput): result.Counts[domain.OutcomeFailPartialOutput],
		string(domain.OutcomeFailNoChange):      result.Counts[domain.OutcomeFailNoChange],
		string(domain.OutcomeFailError):         result.Counts[domain.OutcomeFailError],
	}).Info("Run completed")
}

// parseIDs splits a comma-separated ID list.
func parseIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
