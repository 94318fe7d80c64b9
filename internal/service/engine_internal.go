package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/logger"
	"github.com/mfriedrich/ocrtrack/internal/paperless"
)

// InternalEngine triggers the document management system's own OCR pipeline
// and waits for it to finish. Servers that hand back a task ID are tracked
// through the tasks endpoint; servers that merely accept the request are
// observed by diffing the document metadata until something changes or the
// wait window closes.
type InternalEngine struct {
	api                documentAPI
	pollInterval       time.Duration
	noTaskPollInterval time.Duration
	timeout            time.Duration
	logger             *logger.Logger
}

// InternalEngineConfig holds polling settings for the internal engine.
type InternalEngineConfig struct {
	PollInterval       time.Duration
	NoTaskPollInterval time.Duration
	Timeout            time.Duration
}

// NewInternalEngine creates a new internal reprocess engine.
// Parameters:
//   - api: management API client.
//   - cfg: polling settings.
//   - log: base logger.
// Returns:
//   - *InternalEngine: initialized engine.
func NewInternalEngine(api documentAPI, cfg *InternalEngineConfig, log *logger.Logger) *InternalEngine {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	noTaskPollInterval := cfg.NoTaskPollInterval
	if noTaskPollInterval <= 0 {
		noTaskPollInterval = 5 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &InternalEngine{
		api:                api,
		pollInterval:       pollInterval,
		noTaskPollInterval: noTaskPollInterval,
		timeout:            timeout,
		logger:             log,
	}
}

// Name returns the engine identifier.
func (e *InternalEngine) Name() domain.EngineKind {
	return domain.EngineInternal
}

func (e *InternalEngine) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return e.logger
}

// Execute triggers a reprocess for the document and blocks until the server
// finishes, fails, or the wait window closes.
// Parameters:
//   - ctx: context for cancellation; the engine adds its own overall timeout.
//   - doc: snapshot of the document to reprocess.
// Returns:
//   - *ExecResult: state observed after the server finished.
//   - error: non-nil if the trigger or the wait failed.
func (e *InternalEngine) Execute(ctx context.Context, doc *domain.DocumentSnapshot) (*ExecResult, error) {
	baseline, err := e.api.GetDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("baseline read: %w", err)
	}

	taskIDs, err := e.api.Reprocess(ctx, []int64{doc.ID})
	if err != nil {
		return nil, fmt.Errorf("trigger reprocess: %w", err)
	}

	deadline := time.Now().Add(e.timeout)
	var detail string

	if len(taskIDs) == 0 {
		// Paperless 2.20.x commonly accepts bulk reprocess without
		// returning a task ID.
		detail, err = e.pollForDiff(ctx, doc.ID, baseline, deadline)
		if err != nil {
			return nil, err
		}
	} else {
		if len(taskIDs) > 1 {
			e.log(ctx).WithField(logger.FieldDocumentID, doc.ID).
				Warnf("Server returned multiple task IDs, tracking first only: %s", strings.Join(taskIDs, ","))
		}
		detail, err = e.pollTask(ctx, taskIDs[0], deadline)
		if err != nil {
			return nil, err
		}
	}

	after, err := e.api.GetDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("after read: %w", err)
	}

	return &ExecResult{
		ContentLength:   after.ContentLength,
		ArchiveFilename: after.ArchiveFilename,
		Text:            after.Content,
		Attempts:        1,
		Detail:          detail,
	}, nil
}

// pollTask polls the tasks endpoint until the task reaches a terminal state
// or the deadline passes.
func (e *InternalEngine) pollTask(ctx context.Context, taskID string, deadline time.Time) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: task %s still pending", domain.ErrTimeout, taskID)
		}

		state, detail, err := e.api.TaskStatus(ctx, taskID)
		if err != nil {
			return "", fmt.Errorf("task status: %w", err)
		}
		switch state {
		case paperless.TaskStateSuccess:
			return "task_id=" + taskID, nil
		case paperless.TaskStateFailure:
			return "", fmt.Errorf("reprocess task %s failed: %s", taskID, detail)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
}

// pollForDiff watches the document metadata for a change relative to the
// baseline. No observable diff inside the window is not an error; the server
// accepted the job and the outcome rules will see an unchanged document.
func (e *InternalEngine) pollForDiff(ctx context.Context, id int64, baseline *paperless.Document, deadline time.Time) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "accepted_by_api_no_observable_diff", nil
		}

		current, err := e.api.GetDocument(ctx, id)
		if err != nil {
			e.log(ctx).WithField(logger.FieldDocumentID, id).
				WithError(err).Warn("Diff poll fetch failed, will retry")
		} else if diff := describeDiff(baseline, current); diff != "" {
			return "observed change via diff: " + diff, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.noTaskPollInterval):
		}
	}
}

// describeDiff renders the metadata fields that changed between two
// observations of the same document, empty when nothing changed.
func describeDiff(before, after *paperless.Document) string {
	var parts []string
	if !before.ModifiedAt.Equal(after.ModifiedAt) {
		parts = append(parts, fmt.Sprintf("modified %s -> %s", before.ModifiedAt.Format(time.RFC3339), after.ModifiedAt.Format(time.RFC3339)))
	}
	if before.ContentLength != after.ContentLength {
		parts = append(parts, fmt.Sprintf("content_length %d -> %d", before.ContentLength, after.ContentLength))
	}
	if before.ArchiveFilename != after.ArchiveFilename {
		parts = append(parts, fmt.Sprintf("archive_filename %s -> %s", before.ArchiveFilename, after.ArchiveFilename))
	}
	if intOrZero(before.PageCount) != intOrZero(after.PageCount) {
		parts = append(parts, fmt.Sprintf("page_count %d -> %d", intOrZero(before.PageCount), intOrZero(after.PageCount)))
	}
	return strings.Join(parts, "; ")
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
