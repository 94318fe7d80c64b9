package service

import (
	"context"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/paperless"
)

// ExecResult is what an engine observed after one OCR run of a document.
type ExecResult struct {
	ContentLength   int64
	ArchiveFilename string
	// Text is the post-run content when the engine has it in hand;
	// empty means callers must fetch it from the remote.
	Text string
	// Attempts counts the upstream calls the engine made, including retries.
	Attempts int
	// Detail carries a human-readable note about how the run concluded.
	Detail string
}

// Engine runs OCR for a single document and reports the resulting state.
// Implementations return a partial ExecResult alongside the error when
// attempt metadata is worth keeping.
type Engine interface {
	Name() domain.EngineKind
	Execute(ctx context.Context, doc *domain.DocumentSnapshot) (*ExecResult, error)
}

// documentAPI is the slice of the management API the engines and services
// need. *paperless.Client satisfies it; tests substitute fakes.
type documentAPI interface {
	GetDocument(ctx context.Context, id int64) (*paperless.Document, error)
	DownloadOriginal(ctx context.Context, id int64) ([]byte, string, error)
	UpdateContent(ctx context.Context, id int64, content string) error
	Reprocess(ctx context.Context, ids []int64) ([]string, error)
	TaskStatus(ctx context.Context, taskID string) (paperless.TaskState, string, error)
}
