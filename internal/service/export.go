package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/logger"
	"github.com/mfriedrich/ocrtrack/internal/storage"
)

// exportLedger persists export records and answers idempotence lookups.
type exportLedger interface {
	Append(ctx context.Context, rec *domain.ExportRecord) error
	HasContentHash(ctx context.Context, documentID int64, engine domain.EngineKind, format domain.ExportFormat, hash string) (bool, error)
}

// Exporter writes post-run document text to per-engine, per-document export
// files for downstream RAG ingestion, with an optional object-storage
// mirror of every written artifact.
type Exporter struct {
	records exportLedger
	api     documentAPI
	mirror  storage.ObjectStorage
	root    string
	logger  *logger.Logger
}

// NewExporter creates a new Exporter.
// Parameters:
//   - records: export record store.
//   - api: management API client, used when the caller has no text in hand.
//   - mirror: optional object-storage mirror; nil disables mirroring.
//   - root: export output root directory.
//   - log: base logger.
// Returns:
//   - *Exporter: initialized exporter.
func NewExporter(records exportLedger, api documentAPI, mirror storage.ObjectStorage, root string, log *logger.Logger) *Exporter {
	return &Exporter{
		records: records,
		api:     api,
		mirror:  mirror,
		root:    root,
		logger:  log,
	}
}

func (e *Exporter) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return e.logger
}

var unsafeFolderChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// safeFolderName normalizes an engine name into a filesystem-safe folder.
func safeFolderName(name string) string {
	raw := strings.ToLower(strings.TrimSpace(name))
	if raw == "" {
		raw = "unknown"
	}
	cleaned := strings.Trim(unsafeFolderChars.ReplaceAllString(raw, "_"), "_")
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}

// ExportDocument writes the text to one file per requested format under
// <root>/<engine>/<doc_id>/. A format whose identical content was exported
// before is skipped but still yields a record. One format failing to write
// does not stop the others.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - doc: snapshot supplying the export metadata.
//   - engine: engine that produced the text.
//   - text: post-run document text.
//   - formats: formats to write; empty means both md and json.
// Returns:
//   - []domain.ExportRecord: one record per requested format.
//   - error: non-nil when every requested format failed.
func (e *Exporter) ExportDocument(ctx context.Context, doc *domain.DocumentSnapshot, engine domain.EngineKind, text string, formats []domain.ExportFormat) ([]domain.ExportRecord, error) {
	if len(formats) == 0 {
		formats = []domain.ExportFormat{domain.ExportFormatMarkdown, domain.ExportFormatJSON}
	}

	hash := textSHA256(text)
	exportedAt := time.Now().UTC()
	docDir := filepath.Join(e.root, safeFolderName(string(engine)), strconv.FormatInt(doc.ID, 10))
	base := exportedAt.Format("20060102_150405")

	var records []domain.ExportRecord
	var failures int
	var lastErr error

	for _, format := range formats {
		rec, err := e.exportOne(ctx, doc, engine, format, text, hash, docDir, base, exportedAt)
		if err != nil {
			failures++
			lastErr = err
			e.log(ctx).WithField(logger.FieldDocumentID, doc.ID).
				WithError(err).Error("Export format failed")
			continue
		}
		records = append(records, *rec)
	}

	if failures == len(formats) {
		return records, fmt.Errorf("all export formats failed: %w", lastErr)
	}
	return records, nil
}

// exportOne handles a single format: idempotence check, render, write,
// mirror, record.
func (e *Exporter) exportOne(
	ctx context.Context,
	doc *domain.DocumentSnapshot,
	engine domain.EngineKind,
	format domain.ExportFormat,
	text, hash, docDir, base string,
	exportedAt time.Time,
) (*domain.ExportRecord, error) {
	exists, err := e.records.HasContentHash(ctx, doc.ID, engine, format, hash)
	if err != nil {
		return nil, fmt.Errorf("idempotence lookup: %w", err)
	}
	if exists {
		rec := &domain.ExportRecord{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			Engine:      engine,
			Format:      format,
			ContentHash: hash,
			Skipped:     true,
			ExportedAt:  exportedAt,
		}
		if err := e.records.Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("record skipped export: %w", err)
		}
		e.log(ctx).WithField(logger.FieldDocumentID, doc.ID).
			Debugf("Export skipped, identical %s content already exported", format)
		return rec, nil
	}

	rendered, err := renderExport(doc, engine, format, text, hash, exportedAt)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(docDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create export dir: %v", domain.ErrWriteFailure, err)
	}
	outputPath := filepath.Join(docDir, base+"."+string(format))
	if err := os.WriteFile(outputPath, rendered, 0644); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", domain.ErrWriteFailure, outputPath, err)
	}

	if e.mirror != nil {
		key := fmt.Sprintf("%s/%d/%s.%s", safeFolderName(string(engine)), doc.ID, base, format)
		if err := e.mirror.Upload(ctx, key, bytes.NewReader(rendered), int64(len(rendered)), contentTypeFor(format)); err != nil {
			// The local file is the artifact of record; a mirror failure
			// only loses the replica.
			e.log(ctx).WithField("mirror_key", key).
				WithError(err).Warn("Failed to mirror export artifact")
		}
	}

	rec := &domain.ExportRecord{
		ID:          uuid.New().String(),
		DocumentID:  doc.ID,
		Engine:      engine,
		Format:      format,
		OutputPath:  outputPath,
		ContentHash: hash,
		ExportedAt:  exportedAt,
	}
	if err := e.records.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("record export: %w", err)
	}
	return rec, nil
}

// ExportByID fetches the document's current content from the remote and
// exports it. Used when no freshly produced text is in hand.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: remote document ID.
//   - engine: engine attribution for the export tree.
//   - formats: formats to write; empty means both md and json.
// Returns:
//   - []domain.ExportRecord: one record per requested format.
//   - error: non-nil if the fetch fails, the content is empty, or every
//     format failed.
func (e *Exporter) ExportByID(ctx context.Context, id int64, engine domain.EngineKind, formats []domain.ExportFormat) ([]domain.ExportRecord, error) {
	doc, err := e.api.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document %d: %w", id, err)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("document %d has no content to export", id)
	}
	snap := snapshotFromRemote(doc, time.Now().UTC())
	return e.ExportDocument(ctx, snap, engine, doc.Content, formats)
}

type exportPayload struct {
	DocID      int64                  `json:"doc_id"`
	Title      string                 `json:"title"`
	Engine     string                 `json:"engine"`
	ExportedAt string                 `json:"exported_at"`
	TextSHA256 string                 `json:"text_sha256"`
	Text       string                 `json:"text"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// renderExport produces the file body for one format.
func renderExport(doc *domain.DocumentSnapshot, engine domain.EngineKind, format domain.ExportFormat, text, hash string, exportedAt time.Time) ([]byte, error) {
	switch format {
	case domain.ExportFormatMarkdown:
		title := doc.Title
		if title == "" {
			title = fmt.Sprintf("Document %d", doc.ID)
		}
		lines := []string{
			"# " + title,
			"",
			fmt.Sprintf("- doc_id: %d", doc.ID),
			"- engine: " + string(engine),
			"- exported_at: " + exportedAt.Format(time.RFC3339),
			"",
			strings.TrimSpace(text),
			"",
		}
		return []byte(strings.Join(lines, "\n")), nil
	case domain.ExportFormatJSON:
		payload := exportPayload{
			DocID:      doc.ID,
			Title:      doc.Title,
			Engine:     string(engine),
			ExportedAt: exportedAt.Format(time.RFC3339),
			TextSHA256: hash,
			Text:       text,
			Metadata: map[string]interface{}{
				"mime_type":         doc.MimeType,
				"original_filename": doc.OriginalFilename,
				"archive_filename":  doc.ArchiveFilename,
				"page_count":        doc.PageCount,
				"modified":          doc.ModifiedAt.UTC().Format(time.RFC3339),
			},
		}
		return json.MarshalIndent(payload, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func contentTypeFor(format domain.ExportFormat) string {
	switch format {
	case domain.ExportFormatMarkdown:
		return "text/markdown"
	case domain.ExportFormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// textSHA256 hashes export text for idempotence comparisons.
func textSHA256(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
