package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mfriedrich/ocrtrack/internal/config"
	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/logger"
	"github.com/mfriedrich/ocrtrack/internal/service"
)

// SelectRequest is the JSON body of candidate selection requests. The
// threshold and sample-size fields are tri-state: absent disables the
// criterion, zero asks for the configured default, positive is explicit.
type SelectRequest struct {
	IDs                 []int64 `json:"ids"`
	MissingArchive      bool    `json:"missing_archive"`
	LowContentThreshold *int64  `json:"low_content_threshold"`
	SampleSize          *int    `json:"sample_size"`
	Seed                *int64  `json:"seed"`
	Engine              string  `json:"engine"`
	Force               bool    `json:"force"`
}

func (r *SelectRequest) toCriteria(defaults *config.SelectConfig) (service.SelectCriteria, error) {
	engine := domain.EngineKind(r.Engine)
	if r.Engine != "" && !engine.Valid() {
		return service.SelectCriteria{}, errUnknownEngine(r.Engine)
	}

	var lowContent int64
	if r.LowContentThreshold != nil {
		lowContent = *r.LowContentThreshold
		if lowContent <= 0 {
			lowContent = defaults.LowContentThreshold
		}
	}
	var sample int
	if r.SampleSize != nil {
		sample = *r.SampleSize
		if sample <= 0 {
			sample = defaults.SampleSize
		}
	}

	return service.SelectCriteria{
		ExplicitIDs:         r.IDs,
		MissingArchive:      r.MissingArchive,
		LowContentThreshold: lowContent,
		SampleSize:          sample,
		Seed:                r.Seed,
		Engine:              engine,
		Force:               r.Force,
	}, nil
}

type unknownEngineError struct{ name string }

func (e unknownEngineError) Error() string { return "unknown engine: " + e.name }

func errUnknownEngine(name string) error { return unknownEngineError{name: name} }

// RunRequest is the JSON body of run batch requests.
type RunRequest struct {
	SelectRequest
	Export  bool     `json:"export"`
	Formats []string `json:"formats"`
}

// RunHandler handles candidate selection and run batch endpoints.
type RunHandler struct {
	selector *service.Selector
	executor *service.Executor
	reporter *service.Reporter
	defaults *config.SelectConfig
}

// NewRunHandler creates a new run handler.
// Parameters:
//   - selector: candidate selector.
//   - executor: batch executor (with the exporter attached when exports
//     are enabled).
//   - reporter: CSV report writer.
//   - defaults: selection defaults applied to unparameterized criteria.
// Returns:
//   - *RunHandler: initialized handler.
func NewRunHandler(
	selector *service.Selector,
	executor *service.Executor,
	reporter *service.Reporter,
	defaults *config.SelectConfig,
) *RunHandler {
	return &RunHandler{
		selector: selector,
		executor: executor,
		reporter: reporter,
		defaults: defaults,
	}
}

// Select handles POST /api/v1/select. It resolves criteria into candidates
// without running anything, so operators can preview a batch.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *RunHandler) Select(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	criteria, err := req.toCriteria(h.defaults)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candidates, err := h.selector.Select(c.Request.Context(), criteria)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Selection failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"candidates": candidates,
		"total":      len(candidates),
	})
}

// Run handles POST /api/v1/runs. It selects candidates, executes the batch
// (exporting post-run texts in-flow when requested), and writes a CSV report.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *RunHandler) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if req.Engine == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Field 'engine' is required",
		})
		return
	}

	criteria, err := req.toCriteria(h.defaults)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	candidates, err := h.selector.Select(ctx, criteria)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Selection failed: " + err.Error(),
		})
		return
	}
	if len(candidates) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"candidates": 0,
			"events":     []domain.RunEvent{},
		})
		return
	}

	var formats []domain.ExportFormat
	if req.Export {
		formats = parseFormats(req.Formats)
		if len(formats) == 0 {
			formats = []domain.ExportFormat{domain.ExportFormatMarkdown, domain.ExportFormatJSON}
		}
	}

	result, err := h.executor.RunBatch(ctx, candidates, criteria.Engine, formats)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Run failed: " + err.Error(),
		})
		return
	}

	response := gin.H{
		"batch_id":   result.BatchID,
		"engine":     result.Engine,
		"candidates": len(candidates),
		"counts":     result.Counts,
		"events":     result.Events,
	}

	if req.Export {
		exported := 0
		for _, ev := range result.Events {
			if len(ev.ExportedPaths) > 0 {
				exported++
			}
		}
		response["exported"] = exported
	}

	reportPath, err := h.reporter.WriteCSV(ctx, result)
	if err != nil {
		logger.CtxError(ctx, "Failed to write run report: %v", err)
	} else {
		response["report_path"] = reportPath
	}

	c.JSON(http.StatusOK, response)
}

func parseFormats(raw []string) []domain.ExportFormat {
	var formats []domain.ExportFormat
	for _, f := range raw {
		format := domain.ExportFormat(f)
		if format.Valid() {
			formats = append(formats, format)
		}
	}
	return formats
}
