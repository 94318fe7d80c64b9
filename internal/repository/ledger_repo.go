package repository

import (
	"context"
	"errors"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"gorm.io/gorm"
)

// RunLedgerRepository handles the append-only OCR run ledger. Events are
// inserted once and never updated or deleted.
type RunLedgerRepository struct {
	db *gorm.DB
}

// NewRunLedgerRepository creates a new RunLedgerRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *RunLedgerRepository: repository instance bound to db.
func NewRunLedgerRepository(db *gorm.DB) *RunLedgerRepository {
	return &RunLedgerRepository{db: db}
}

// Append inserts a run event.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - event: fully-formed event to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *RunLedgerRepository) Append(ctx context.Context, event *domain.RunEvent) error {
	if event.FinishedAt.Before(event.StartedAt) {
		return errors.New("run event finished before it started")
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// ListByDocument retrieves run events for a document, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - documentID: remote document ID.
//   - limit: maximum number of events to return; 0 means no limit.
// Returns:
//   - []domain.RunEvent: matching events.
//   - error: non-nil if the query fails.
func (r *RunLedgerRepository) ListByDocument(ctx context.Context, documentID int64, limit int) ([]domain.RunEvent, error) {
	var events []domain.RunEvent
	query := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// LatestSuccess retrieves the most recent successful event for a document
// and engine.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - documentID: remote document ID.
//   - engine: engine that produced the run.
// Returns:
//   - *domain.RunEvent: latest success, or nil when none exists.
//   - error: non-nil if the query fails.
func (r *RunLedgerRepository) LatestSuccess(ctx context.Context, documentID int64, engine domain.EngineKind) (*domain.RunEvent, error) {
	var event domain.RunEvent
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND engine = ? AND outcome = ?", documentID, engine, domain.OutcomeSuccess).
		Order("finished_at DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListRecent retrieves the most recent run events across all documents.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of events to return.
// Returns:
//   - []domain.RunEvent: matching events, newest first.
//   - error: non-nil if the query fails.
func (r *RunLedgerRepository) ListRecent(ctx context.Context, limit int) ([]domain.RunEvent, error) {
	var events []domain.RunEvent
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// CountByOutcome counts run events per outcome.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - map[domain.Outcome]int64: event count per outcome.
//   - error: non-nil if the query fails.
func (r *RunLedgerRepository) CountByOutcome(ctx context.Context) (map[domain.Outcome]int64, error) {
	type row struct {
		Outcome domain.Outcome
		Total   int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&domain.RunEvent{}).
		Select("outcome, COUNT(*) AS total").
		Group("outcome").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[domain.Outcome]int64, len(rows))
	for _, r := range rows {
		counts[r.Outcome] = r.Total
	}
	return counts, nil
}
