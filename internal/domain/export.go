package domain

import "time"

// ExportFormat names a supported export file format.
type ExportFormat string

const (
	ExportFormatMarkdown ExportFormat = "md"
	ExportFormatJSON     ExportFormat = "json"
)

// Valid reports whether f names a known export format.
func (f ExportFormat) Valid() bool {
	return f == ExportFormatMarkdown || f == ExportFormatJSON
}

// ExportRecord records one export of a document's post-run text to disk.
// A skipped record means an earlier export already wrote identical content
// for the same (document, engine, format) tuple.
type ExportRecord struct {
	ID          string       `gorm:"type:text;primaryKey" json:"id"`
	DocumentID  int64        `gorm:"not null;index:idx_export_records_document" json:"document_id"`
	Engine      EngineKind   `gorm:"type:text;not null" json:"engine"`
	Format      ExportFormat `gorm:"type:text;not null" json:"format"`
	OutputPath  string       `gorm:"type:text" json:"output_path"`
	ContentHash string       `gorm:"type:text;index:idx_export_records_hash" json:"content_hash"`
	Skipped     bool         `gorm:"not null;default:false" json:"skipped"`
	ExportedAt  time.Time    `gorm:"not null" json:"exported_at"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TableName returns the database table name for ExportRecord.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ExportRecord) TableName() string {
	return "export_records"
}
