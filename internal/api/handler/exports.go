package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/service"
)

// ExportRequest is the JSON body of standalone export requests.
type ExportRequest struct {
	IDs     []int64  `json:"ids"`
	Engine  string   `json:"engine"`
	Formats []string `json:"formats"`
}

// ExportHandler handles standalone export endpoints.
type ExportHandler struct {
	exporter *service.Exporter
}

// NewExportHandler creates a new export handler.
// Parameters:
//   - exporter: export writer.
// Returns:
//   - *ExportHandler: initialized handler.
func NewExportHandler(exporter *service.Exporter) *ExportHandler {
	return &ExportHandler{
		exporter: exporter,
	}
}

// Export handles POST /api/v1/exports. Each document exports independently;
// one failing does not stop the rest.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ExportHandler) Export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Field 'ids' is required",
		})
		return
	}
	engine := domain.EngineKind(req.Engine)
	if !engine.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown engine: " + req.Engine,
		})
		return
	}

	formats := parseFormats(req.Formats)

	var records []domain.ExportRecord
	failures := make(map[int64]string)
	for _, id := range req.IDs {
		recs, err := h.exporter.ExportByID(c.Request.Context(), id, engine, formats)
		records = append(records, recs...)
		if err != nil {
			failures[id] = err.Error()
		}
	}

	status := http.StatusOK
	if len(failures) == len(req.IDs) {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"records":  records,
		"failures": failures,
	})
}
