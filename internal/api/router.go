package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mfriedrich/ocrtrack/internal/api/handler"
	"github.com/mfriedrich/ocrtrack/internal/api/middleware"
	"github.com/mfriedrich/ocrtrack/internal/config"
	"github.com/mfriedrich/ocrtrack/internal/logger"
	"github.com/mfriedrich/ocrtrack/internal/repository"
	"github.com/mfriedrich/ocrtrack/internal/service"
)

// Services bundles everything the router needs wired in.
type Services struct {
	Sync     *service.SyncService
	Selector *service.Selector
	Executor *service.Executor
	Exporter *service.Exporter
	Reporter *service.Reporter

	Snapshots *repository.SnapshotRepository
	Ledger    *repository.RunLedgerRepository
	Exports   *repository.ExportRepository
	SyncRuns  *repository.SyncRunRepository
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svcs *Services, serverCfg *config.ServerConfig, selectCfg *config.SelectConfig, log *logger.Logger) *gin.Engine {
	// Set Gin mode
	switch serverCfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  serverCfg.CORS.AllowedOrigins,
		AllowAllOrigins: serverCfg.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	syncHandler := handler.NewSyncHandler(svcs.Sync, svcs.SyncRuns)
	runHandler := handler.NewRunHandler(svcs.Selector, svcs.Executor, svcs.Reporter, selectCfg)
	exportHandler := handler.NewExportHandler(svcs.Exporter)
	documentHandler := handler.NewDocumentHandler(svcs.Ledger, svcs.Snapshots, svcs.Exports)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Snapshot sync
		v1.POST("/sync", syncHandler.Sync)
		v1.GET("/sync/runs", syncHandler.ListSyncRuns)
		v1.GET("/sync/latest", syncHandler.LatestSyncRun)

		// Candidate selection and run batches
		v1.POST("/select", runHandler.Select)
		v1.POST("/runs", runHandler.Run)

		// Exports
		v1.POST("/exports", exportHandler.Export)

		// Document history
		v1.GET("/documents/:id/history", documentHandler.GetHistory)

		// Stats
		v1.GET("/stats", documentHandler.GetStats)
	}

	return r
}
