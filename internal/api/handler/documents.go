package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/repository"
)

// documentHistory is the store surface the document endpoints read.
type documentHistory interface {
	ListByDocument(ctx context.Context, documentID int64, limit int) ([]domain.RunEvent, error)
	CountByOutcome(ctx context.Context) (map[domain.Outcome]int64, error)
}

// snapshotStats answers snapshot lookups and counts.
type snapshotStats interface {
	GetByID(ctx context.Context, id int64) (*domain.DocumentSnapshot, error)
	CountActive(ctx context.Context) (int64, error)
}

// exportHistory lists export records per document.
type exportHistory interface {
	ListByDocument(ctx context.Context, documentID int64) ([]domain.ExportRecord, error)
}

// DocumentHandler handles document history and stats endpoints.
type DocumentHandler struct {
	ledger    documentHistory
	snapshots snapshotStats
	exports   exportHistory
}

// NewDocumentHandler creates a new document handler.
// Parameters:
//   - ledger: run event history.
//   - snapshots: snapshot store.
//   - exports: export record store.
// Returns:
//   - *DocumentHandler: initialized handler.
func NewDocumentHandler(ledger documentHistory, snapshots snapshotStats, exports exportHistory) *DocumentHandler {
	return &DocumentHandler{
		ledger:    ledger,
		snapshots: snapshots,
		exports:   exports,
	}
}

// GetHistory handles GET /api/v1/documents/:id/history.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DocumentHandler) GetHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid document id",
		})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	ctx := c.Request.Context()

	snap, err := h.snapshots.GetByID(ctx, id)
	if err != nil && !repository.IsNotFound(err) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load snapshot: " + err.Error(),
		})
		return
	}

	events, err := h.ledger.ListByDocument(ctx, id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load run history: " + err.Error(),
		})
		return
	}

	records, err := h.exports.ListByDocument(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load export history: " + err.Error(),
		})
		return
	}

	if snap == nil && len(events) == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown document",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"document": snap,
		"runs":     events,
		"exports":  records,
	})
}

// GetStats handles GET /api/v1/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DocumentHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	active, err := h.snapshots.CountActive(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to count snapshots: " + err.Error(),
		})
		return
	}

	outcomes, err := h.ledger.CountByOutcome(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to count outcomes: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active_documents": active,
		"outcomes":         outcomes,
	})
}
