package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/service"
)

// syncRunReader is the audit-row surface the handler reads.
type syncRunReader interface {
	GetLatest(ctx context.Context) (*domain.SyncRun, error)
	List(ctx context.Context, limit int) ([]domain.SyncRun, error)
}

// SyncHandler handles snapshot sync endpoints.
type SyncHandler struct {
	syncService *service.SyncService
	syncRuns    syncRunReader
}

// NewSyncHandler creates a new sync handler.
// Parameters:
//   - syncService: sync service instance.
//   - syncRuns: sync run audit store.
// Returns:
//   - *SyncHandler: initialized handler.
func NewSyncHandler(syncService *service.SyncService, syncRuns syncRunReader) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		syncRuns:    syncRuns,
	}
}

// Sync handles POST /api/v1/sync. The pass runs synchronously; large
// installations should call this from a scheduler, not a request path with a
// short client timeout.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SyncHandler) Sync(c *gin.Context) {
	run, err := h.syncService.Sync(c.Request.Context())
	if err != nil {
		status := statusFor(err)
		c.JSON(status, gin.H{
			"error": "Sync failed: " + err.Error(),
			"run":   run,
		})
		return
	}

	c.JSON(http.StatusOK, run)
}

// ListSyncRuns handles GET /api/v1/sync/runs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SyncHandler) ListSyncRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.syncRuns.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list sync runs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// LatestSyncRun handles GET /api/v1/sync/latest.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SyncHandler) LatestSyncRun(c *gin.Context) {
	run, err := h.syncRuns.GetLatest(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load latest sync run: " + err.Error(),
		})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No sync run recorded yet",
		})
		return
	}

	c.JSON(http.StatusOK, run)
}
