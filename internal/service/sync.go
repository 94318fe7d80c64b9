package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/logger"
	"github.com/mfriedrich/ocrtrack/internal/paperless"
	"github.com/mfriedrich/ocrtrack/internal/repository"
)

// documentLister is the listing slice of the management API client.
type documentLister interface {
	ListDocumentsPage(ctx context.Context, page int) ([]paperless.Document, bool, error)
}

// snapshotWriter is the store surface a sync pass needs.
type snapshotWriter interface {
	Upsert(ctx context.Context, snap *domain.DocumentSnapshot) error
	GetByID(ctx context.Context, id int64) (*domain.DocumentSnapshot, error)
	MarkMissing(ctx context.Context, syncStartedAt time.Time) (int64, error)
	PruneInactive(ctx context.Context) (int64, error)
}

// syncRunStore persists sync pass audit rows.
type syncRunStore interface {
	Create(ctx context.Context, run *domain.SyncRun) error
	Update(ctx context.Context, run *domain.SyncRun) error
}

// SyncService refreshes the local snapshot store from the remote document
// listing. The remote stays authoritative; a sync pass only records what it
// observed and never mutates remote state.
type SyncService struct {
	remote    documentLister
	snapshots snapshotWriter
	syncRuns  syncRunStore
	logger    *logger.Logger
}

// NewSyncService creates a new SyncService.
// Parameters:
//   - remote: management API client.
//   - snapshots: snapshot store.
//   - syncRuns: sync run audit store.
//   - log: base logger.
// Returns:
//   - *SyncService: initialized service.
func NewSyncService(remote documentLister, snapshots snapshotWriter, syncRuns syncRunStore, log *logger.Logger) *SyncService {
	return &SyncService{
		remote:    remote,
		snapshots: snapshots,
		syncRuns:  syncRuns,
		logger:    log,
	}
}

func (s *SyncService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Sync pages through the remote listing and upserts every document into the
// snapshot store. Re-running against unchanged remote state yields the same
// rows. A page failure aborts the pass; rows upserted before the failure
// stay.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *domain.SyncRun: audit row with per-pass counters (also on failure).
//   - error: non-nil if the pass aborted.
func (s *SyncService) Sync(ctx context.Context) (*domain.SyncRun, error) {
	now := time.Now().UTC()
	run := &domain.SyncRun{
		ID:        uuid.New().String(),
		Status:    domain.SyncStatusRunning,
		StartedAt: now,
	}
	if err := s.syncRuns.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}

	ctx = logger.SetSyncID(ctx, run.ID)
	s.log(ctx).Info("Starting snapshot sync")

	page := 1
	for {
		docs, hasNext, err := s.remote.ListDocumentsPage(ctx, page)
		if err != nil {
			return s.finishFailed(ctx, run, fmt.Errorf("page %d: %w", page, err))
		}
		run.PagesFetched++

		for i := range docs {
			if err := ctx.Err(); err != nil {
				return s.finishFailed(ctx, run, err)
			}
			if err := s.upsertOne(ctx, &docs[i], run); err != nil {
				return s.finishFailed(ctx, run, err)
			}
		}

		if !hasNext {
			break
		}
		page++
	}

	missing, err := s.snapshots.MarkMissing(ctx, run.StartedAt)
	if err != nil {
		return s.finishFailed(ctx, run, fmt.Errorf("mark missing: %w", err))
	}
	run.MissingCount = int(missing)

	completed := time.Now().UTC()
	run.Status = domain.SyncStatusCompleted
	run.CompletedAt = &completed
	if err := s.syncRuns.Update(ctx, run); err != nil {
		return run, fmt.Errorf("failed to finalize sync run: %w", err)
	}

	logger.With(logger.Fields{
		"pages":     run.PagesFetched,
		"total":     run.TotalDocuments,
		"new":       run.NewCount,
		"changed":   run.ChangedCount,
		"unchanged": run.UnchangedCount,
		"missing":   run.MissingCount,
	}).Info(ctx, "Snapshot sync completed")

	return run, nil
}

// finishFailed marks the run failed and returns it together with the error.
func (s *SyncService) finishFailed(ctx context.Context, run *domain.SyncRun, cause error) (*domain.SyncRun, error) {
	completed := time.Now().UTC()
	run.Status = domain.SyncStatusFailed
	run.CompletedAt = &completed
	run.ErrorLog = cause.Error()
	if err := s.syncRuns.Update(ctx, run); err != nil {
		s.log(ctx).WithError(err).Error("Failed to record sync failure")
	}
	s.log(ctx).WithError(cause).Error("Snapshot sync failed")
	return run, cause
}

// upsertOne stores one remote document and bumps the change counters by
// comparing metadata fingerprints.
func (s *SyncService) upsertOne(ctx context.Context, doc *paperless.Document, run *domain.SyncRun) error {
	now := time.Now().UTC()
	snap := snapshotFromRemote(doc, now)

	existing, err := s.snapshots.GetByID(ctx, doc.ID)
	switch {
	case err != nil && repository.IsNotFound(err):
		run.NewCount++
		snap.FirstSeenAt = now
	case err != nil:
		return fmt.Errorf("lookup snapshot %d: %w", doc.ID, err)
	case existing.Fingerprint != snap.Fingerprint:
		run.ChangedCount++
		snap.FirstSeenAt = existing.FirstSeenAt
		snap.CreatedAt = existing.CreatedAt
	default:
		run.UnchangedCount++
		snap.FirstSeenAt = existing.FirstSeenAt
		snap.CreatedAt = existing.CreatedAt
	}

	if err := s.snapshots.Upsert(ctx, snap); err != nil {
		return fmt.Errorf("upsert snapshot %d: %w", doc.ID, err)
	}
	run.TotalDocuments++
	return nil
}

// Prune deletes snapshots flagged missing by earlier sync passes.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of rows deleted.
//   - error: non-nil if the delete fails.
func (s *SyncService) Prune(ctx context.Context) (int64, error) {
	pruned, err := s.snapshots.PruneInactive(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	s.log(ctx).WithField(logger.FieldCount, pruned).Info("Pruned missing snapshots")
	return pruned, nil
}

// snapshotFromRemote maps a normalized remote document onto a snapshot row.
func snapshotFromRemote(doc *paperless.Document, syncedAt time.Time) *domain.DocumentSnapshot {
	return &domain.DocumentSnapshot{
		ID:               doc.ID,
		Title:            doc.Title,
		MimeType:         doc.MimeType,
		OriginalFilename: doc.OriginalFilename,
		ArchiveFilename:  doc.ArchiveFilename,
		PageCount:        doc.PageCount,
		ContentLength:    doc.ContentLength,
		ModifiedAt:       doc.ModifiedAt,
		Tags:             domain.StringArray(doc.Tags),
		Fingerprint:      Fingerprint(doc),
		Active:           true,
		SyncedAt:         syncedAt,
		UpdatedAt:        syncedAt,
	}
}

// Fingerprint hashes the change-relevant metadata of a document. Two
// observations with equal fingerprints are treated as unchanged.
// Parameters:
//   - doc: normalized remote document.
// Returns:
//   - string: sha256 hex digest of the canonical metadata encoding.
func Fingerprint(doc *paperless.Document) string {
	fields := map[string]interface{}{
		"archive_filename":  doc.ArchiveFilename,
		"content_length":    doc.ContentLength,
		"mime_type":         doc.MimeType,
		"modified":          doc.ModifiedAt.UTC().Format(time.RFC3339Nano),
		"original_filename": doc.OriginalFilename,
		"page_count":        doc.PageCount,
		"title":             doc.Title,
	}
	// json.Marshal emits map keys in sorted order, which keeps the
	// encoding canonical.
	encoded, _ := json.Marshal(fields)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
