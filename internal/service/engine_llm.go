package service

import (
	"context"
	"fmt"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/logger"
)

// LLMEngine downloads the original document bytes, runs them through an
// OpenAI-compatible OCR endpoint, and optionally writes the extracted text
// back as the document's content.
type LLMEngine struct {
	api       documentAPI
	llm       *LLMService
	writeBack bool
	logger    *logger.Logger
}

// NewLLMEngine creates a new LLM OCR engine.
// Parameters:
//   - api: management API client for download and write-back.
//   - llm: OCR extraction service.
//   - writeBack: whether extracted text replaces the remote content.
//   - log: base logger.
// Returns:
//   - *LLMEngine: initialized engine.
func NewLLMEngine(api documentAPI, llm *LLMService, writeBack bool, log *logger.Logger) *LLMEngine {
	return &LLMEngine{
		api:       api,
		llm:       llm,
		writeBack: writeBack,
		logger:    log,
	}
}

// Name returns the engine identifier.
func (e *LLMEngine) Name() domain.EngineKind {
	return domain.EngineLLMCompatible
}

func (e *LLMEngine) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return e.logger
}

// Execute runs one OCR pass for the document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - doc: snapshot of the document to process.
// Returns:
//   - *ExecResult: observed post-run state; on extraction failure a partial
//     result still carries the attempt count.
//   - error: non-nil if download, extraction, or write-back failed.
func (e *LLMEngine) Execute(ctx context.Context, doc *domain.DocumentSnapshot) (*ExecResult, error) {
	data, contentType, err := e.api.DownloadOriginal(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("download original: %w", err)
	}
	logger.With(logger.Fields{
		logger.FieldDocumentID: doc.ID,
		logger.FieldSize:       len(data),
	}).Debug(ctx, "Downloaded original (%s)", contentType)

	text, attempts, err := e.llm.ExtractPDFText(ctx, data, doc.OriginalFilename)
	if err != nil {
		return &ExecResult{Attempts: attempts}, fmt.Errorf("extract text: %w", err)
	}

	if e.writeBack {
		if err := e.api.UpdateContent(ctx, doc.ID, text); err != nil {
			return &ExecResult{Attempts: attempts}, fmt.Errorf("write back content: %w", err)
		}
		after, err := e.api.GetDocument(ctx, doc.ID)
		if err != nil {
			return &ExecResult{Attempts: attempts}, fmt.Errorf("after read: %w", err)
		}
		return &ExecResult{
			ContentLength:   after.ContentLength,
			ArchiveFilename: after.ArchiveFilename,
			Text:            text,
			Attempts:        attempts,
		}, nil
	}

	// Without write-back the remote stays untouched; the extracted text is
	// the observable result.
	return &ExecResult{
		ContentLength:   int64(len(text)),
		ArchiveFilename: doc.ArchiveFilename,
		Text:            text,
		Attempts:        attempts,
	}, nil
}
