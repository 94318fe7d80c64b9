package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfriedrich/ocrtrack/internal/api"
	"github.com/mfriedrich/ocrtrack/internal/config"
	"github.com/mfriedrich/ocrtrack/internal/logger"
	"github.com/mfriedrich/ocrtrack/internal/paperless"
	"github.com/mfriedrich/ocrtrack/internal/repository"
	"github.com/mfriedrich/ocrtrack/internal/service"
	"github.com/mfriedrich/ocrtrack/internal/storage"
)

func main() {
	// Initialize logger from environment (rotation, multi-output)
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	configPath := flag.String("config", "", "Path to config file")
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

	// Initialize repositories
	snapshotRepo := repository.NewSnapshotRepository(db)
	ledgerRepo := repository.NewRunLedgerRepository(db)
	exportRepo := repository.NewExportRepository(db)
	syncRunRepo := repository.NewSyncRunRepository(db)

	// Management API client
	client := paperless.New(&paperless.Config{
		BaseURL:  cfg.Paperless.BaseURL,
		Token:    cfg.Paperless.Token,
		PageSize: cfg.Paperless.PageSize,
		Timeout:  cfg.Paperless.Timeout,
	})

	// Optional export mirror
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

	// Initialize services
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
	exporter := service.NewExporter(exportRepo, client, mirror, cfg.Export.Root, appLogger)
	executor.AttachExporter(exporter)

	svcs := &api.Services{
		Sync:     service.NewSyncService(client, snapshotRepo, syncRunRepo, appLogger),
		Selector: service.NewSelector(snapshotRepo, ledgerRepo, appLogger),
		Executor: executor,
		Exporter: exporter,
		Reporter: service.NewReporter(snapshotRepo, cfg.Export.ReportsDir, appLogger),

		Snapshots: snapshotRepo,
		Ledger:    ledgerRepo,
		Exports:   exportRepo,
		SyncRuns:  syncRunRepo,
	}

	router := api.SetupRouter(svcs, &cfg.Server, &cfg.Select, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Serve in background so shutdown signals can drain in-flight requests
	go func() {
		appLogger.WithField("port", cfg.Server.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.WithError(err).Error("Forced shutdown")
	}
	appLogger.Info("Server stopped")
}
