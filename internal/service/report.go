package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/logger"
)

// snapshotNamer resolves document filenames for report rows.
type snapshotNamer interface {
	GetByIDs(ctx context.Context, ids []int64) ([]domain.DocumentSnapshot, error)
}

// Reporter renders run batches into tabular CSV reports.
type Reporter struct {
	snapshots snapshotNamer
	dir       string
	logger    *logger.Logger
}

// NewReporter creates a new Reporter.
// Parameters:
//   - snapshots: snapshot store for filename lookups.
//   - dir: directory the report files are written to.
//   - log: base logger.
// Returns:
//   - *Reporter: initialized reporter.
func NewReporter(snapshots snapshotNamer, dir string, log *logger.Logger) *Reporter {
	return &Reporter{
		snapshots: snapshots,
		dir:       dir,
		logger:    log,
	}
}

// ReportRow is one line of a batch report.
type ReportRow struct {
	DocumentID    int64
	Filename      string
	ContentBefore int64
	ContentAfter  int64
	Delta         int64
	Outcome       domain.Outcome
	ErrorDetail   string
}

// BuildRows turns a batch result into report rows, resolving filenames from
// the snapshot store. Rows keep the event order of the batch.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - result: executed batch.
// Returns:
//   - []ReportRow: one row per run event.
//   - error: non-nil if the filename lookup fails.
func (r *Reporter) BuildRows(ctx context.Context, result *BatchResult) ([]ReportRow, error) {
	ids := make([]int64, 0, len(result.Events))
	for _, ev := range result.Events {
		ids = append(ids, ev.DocumentID)
	}
	snaps, err := r.snapshots.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve filenames: %w", err)
	}
	names := make(map[int64]string, len(snaps))
	for _, snap := range snaps {
		names[snap.ID] = snap.OriginalFilename
	}

	rows := make([]ReportRow, 0, len(result.Events))
	for _, ev := range result.Events {
		rows = append(rows, ReportRow{
			DocumentID:    ev.DocumentID,
			Filename:      names[ev.DocumentID],
			ContentBefore: ev.ContentLengthBefore,
			ContentAfter:  ev.ContentLengthAfter,
			Delta:         ev.ContentDelta(),
			Outcome:       ev.Outcome,
			ErrorDetail:   ev.ErrorDetail,
		})
	}
	return rows, nil
}

// WriteCSV writes the batch report to <dir>/run_<batch_id>.csv and logs the
// per-outcome counts.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - result: executed batch.
// Returns:
//   - string: path of the written report.
//   - error: non-nil if row building or the write fails.
func (r *Reporter) WriteCSV(ctx context.Context, result *BatchResult) (string, error) {
	rows, err := r.BuildRows(ctx, result)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("%w: create reports dir: %v", domain.ErrWriteFailure, err)
	}
	path := filepath.Join(r.dir, "run_"+result.BatchID+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: create report: %v", domain.ErrWriteFailure, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "filename", "content_length_before", "content_length_after", "delta", "outcome", "error_detail"}); err != nil {
		return "", fmt.Errorf("%w: write report header: %v", domain.ErrWriteFailure, err)
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.DocumentID, 10),
			row.Filename,
			strconv.FormatInt(row.ContentBefore, 10),
			strconv.FormatInt(row.ContentAfter, 10),
			strconv.FormatInt(row.Delta, 10),
			string(row.Outcome),
			row.ErrorDetail,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("%w: write report row: %v", domain.ErrWriteFailure, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("%w: flush report: %v", domain.ErrWriteFailure, err)
	}

	logger.With(logger.Fields{
		logger.FieldCount: len(rows),
	}).Info(ctx, "Wrote run report: %s", path)
	return path, nil
}
