package repository

import (
	"context"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"gorm.io/gorm"
)

// ExportRepository handles export record persistence.
type ExportRepository struct {
	db *gorm.DB
}

// NewExportRepository creates a new ExportRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ExportRepository: repository instance bound to db.
func NewExportRepository(db *gorm.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Append inserts an export record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: export record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ExportRepository) Append(ctx context.Context, rec *domain.ExportRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// HasContentHash checks whether a non-skipped export with the given content
// hash already exists for the (document, engine, format) tuple.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - documentID: remote document ID.
//   - engine: engine that produced the exported text.
//   - format: export file format.
//   - hash: sha256 hex digest of the exported text.
// Returns:
//   - bool: true if an identical export exists.
//   - error: non-nil if the lookup fails.
func (r *ExportRepository) HasContentHash(ctx context.Context, documentID int64, engine domain.EngineKind, format domain.ExportFormat, hash string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.ExportRecord{}).
		Where("document_id = ? AND engine = ? AND format = ? AND content_hash = ? AND skipped = ?",
			documentID, engine, format, hash, false).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByDocument retrieves export records for a document, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - documentID: remote document ID.
// Returns:
//   - []domain.ExportRecord: matching records.
//   - error: non-nil if the query fails.
func (r *ExportRepository) ListByDocument(ctx context.Context, documentID int64) ([]domain.ExportRecord, error) {
	var recs []domain.ExportRecord
	if err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("exported_at DESC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
