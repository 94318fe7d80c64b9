package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotRepository handles document snapshot persistence.
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new SnapshotRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SnapshotRepository: repository instance bound to db.
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Upsert creates or updates a snapshot keyed by the remote document ID.
// Re-running with identical data is a no-op at the row level, so sync
// passes stay idempotent.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - snap: snapshot record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *SnapshotRepository) Upsert(ctx context.Context, snap *domain.DocumentSnapshot) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "mime_type", "original_filename", "archive_filename",
			"page_count", "content_length", "modified_at", "tags",
			"fingerprint", "active", "synced_at", "updated_at",
		}),
	}).Create(snap).Error
}

// GetByID retrieves a snapshot by its remote document ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: remote document ID.
// Returns:
//   - *domain.DocumentSnapshot: snapshot record if found.
//   - error: non-nil if lookup fails; gorm.ErrRecordNotFound when absent.
func (r *SnapshotRepository) GetByID(ctx context.Context, id int64) (*domain.DocumentSnapshot, error) {
	var snap domain.DocumentSnapshot
	if err := r.db.WithContext(ctx).First(&snap, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetByIDs retrieves snapshots for the given IDs, ordered by ascending ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: remote document IDs.
// Returns:
//   - []domain.DocumentSnapshot: matching snapshot records.
//   - error: non-nil if the query fails.
func (r *SnapshotRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.DocumentSnapshot, error) {
	if len(ids) == 0 {
		return []domain.DocumentSnapshot{}, nil
	}
	var snaps []domain.DocumentSnapshot
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&snaps).Error; err != nil {
		return nil, err
	}
	return snaps, nil
}

// ListMissingArchive retrieves active snapshots without an archive artifact,
// ordered by ascending ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.DocumentSnapshot: matching snapshot records.
//   - error: non-nil if the query fails.
func (r *SnapshotRepository) ListMissingArchive(ctx context.Context) ([]domain.DocumentSnapshot, error) {
	var snaps []domain.DocumentSnapshot
	if err := r.db.WithContext(ctx).
		Where("active = ? AND (archive_filename IS NULL OR archive_filename = '')", true).
		Order("id ASC").
		Find(&snaps).Error; err != nil {
		return nil, err
	}
	return snaps, nil
}

// ListLowContent retrieves active snapshots whose content length is below
// the threshold, ordered by ascending ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - threshold: exclusive upper bound on content length.
// Returns:
//   - []domain.DocumentSnapshot: matching snapshot records.
//   - error: non-nil if the query fails.
func (r *SnapshotRepository) ListLowContent(ctx context.Context, threshold int64) ([]domain.DocumentSnapshot, error) {
	var snaps []domain.DocumentSnapshot
	if err := r.db.WithContext(ctx).
		Where("active = ? AND content_length < ?", true, threshold).
		Order("id ASC").
		Find(&snaps).Error; err != nil {
		return nil, err
	}
	return snaps, nil
}

// ListActiveIDs retrieves the IDs of all active snapshots in ascending order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []int64: active snapshot IDs.
//   - error: non-nil if the query fails.
func (r *SnapshotRepository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&domain.DocumentSnapshot{}).
		Where("active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkMissing flags active snapshots not refreshed since the given sync
// start as missing from the remote listing. Rows stay queryable until an
// explicit prune.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - syncStartedAt: start time of the sync pass that observed the listing.
// Returns:
//   - int64: number of rows flagged.
//   - error: non-nil if the update fails.
func (r *SnapshotRepository) MarkMissing(ctx context.Context, syncStartedAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.DocumentSnapshot{}).
		Where("active = ? AND synced_at < ?", true, syncStartedAt).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// PruneInactive deletes snapshots flagged as missing.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of rows deleted.
//   - error: non-nil if the delete fails.
func (r *SnapshotRepository) PruneInactive(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("active = ?", false).
		Delete(&domain.DocumentSnapshot{})
	return res.RowsAffected, res.Error
}

// CountActive counts active snapshots.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of active rows.
//   - error: non-nil if the query fails.
func (r *SnapshotRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.DocumentSnapshot{}).
		Where("active = ?", true).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// IsNotFound reports whether err is the store's record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
