package repository

import (
	"context"
	"errors"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"gorm.io/gorm"
)

// SyncRunRepository handles sync pass audit rows.
type SyncRunRepository struct {
	db *gorm.DB
}

// NewSyncRunRepository creates a new SyncRunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SyncRunRepository: repository instance bound to db.
func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create inserts a new sync run row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: sync run to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *SyncRunRepository) Create(ctx context.Context, run *domain.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Update saves an existing sync run row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: sync run with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *SyncRunRepository) Update(ctx context.Context, run *domain.SyncRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// GetLatest retrieves the most recent sync run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *domain.SyncRun: latest run, or nil when the table is empty.
//   - error: non-nil if the query fails.
func (r *SyncRunRepository) GetLatest(ctx context.Context) (*domain.SyncRun, error) {
	var run domain.SyncRun
	err := r.db.WithContext(ctx).Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List retrieves sync runs, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of runs to return.
// Returns:
//   - []domain.SyncRun: matching runs.
//   - error: non-nil if the query fails.
func (r *SyncRunRepository) List(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	var runs []domain.SyncRun
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
