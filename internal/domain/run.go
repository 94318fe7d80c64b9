package domain

import "time"

// EngineKind identifies which OCR engine produced a run.
// Values include EngineInternal and EngineLLMCompatible.
type EngineKind string

const (
	// EngineInternal asks the document management system to reprocess the
	// document with its own OCR pipeline.
	EngineInternal EngineKind = "internal"
	// EngineLLMCompatible sends the document bytes to an OpenAI-compatible
	// endpoint and writes the returned text back.
	EngineLLMCompatible EngineKind = "llm_compatible"
)

// Valid reports whether k names a known engine.
func (k EngineKind) Valid() bool {
	return k == EngineInternal || k == EngineLLMCompatible
}

// Outcome classifies the result of a single OCR run.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeFailPartialOutput Outcome = "fail_partial_output"
	OutcomeFailNoChange      Outcome = "fail_no_change"
	OutcomeFailError         Outcome = "fail_error"
)

// CandidateReason records why the selector picked a document.
type CandidateReason string

const (
	ReasonLowContent     CandidateReason = "low_content"
	ReasonMissingArchive CandidateReason = "missing_archive"
	ReasonExplicitID     CandidateReason = "explicit_id"
	ReasonRandomSample   CandidateReason = "random_sample"
)

// RunCandidate is a document chosen for an OCR re-run, tagged with the
// selection reason. Candidates are ephemeral; only RunEvents persist.
type RunCandidate struct {
	DocumentID int64           `json:"document_id"`
	Reason     CandidateReason `json:"reason"`
}

// RunEvent is one append-only ledger row per OCR run attempt. Rows are never
// updated or deleted after insert.
type RunEvent struct {
	ID                    string      `gorm:"type:text;primaryKey" json:"id"`
	DocumentID            int64       `gorm:"not null;index:idx_run_events_document" json:"document_id"`
	Engine                EngineKind  `gorm:"type:text;not null;index:idx_run_events_engine" json:"engine"`
	StartedAt             time.Time   `gorm:"not null" json:"started_at"`
	FinishedAt            time.Time   `gorm:"not null" json:"finished_at"`
	ContentLengthBefore   int64       `json:"content_length_before"`
	ContentLengthAfter    int64       `json:"content_length_after"`
	ArchiveFilenameBefore string      `gorm:"type:text" json:"archive_filename_before"`
	ArchiveFilenameAfter  string      `gorm:"type:text" json:"archive_filename_after"`
	Outcome               Outcome     `gorm:"type:text;not null;index:idx_run_events_outcome" json:"outcome"`
	ErrorDetail           string      `gorm:"type:text" json:"error_detail,omitempty"`
	Attempts              int         `gorm:"default:1" json:"attempts"`
	ExportedPaths         StringArray `gorm:"type:text" json:"exported_paths"`
	CreatedAt             time.Time   `json:"created_at"`
}

// TableName returns the database table name for RunEvent.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (RunEvent) TableName() string {
	return "run_events"
}

// ContentDelta returns the signed content-length change of the run.
func (e *RunEvent) ContentDelta() int64 {
	return e.ContentLengthAfter - e.ContentLengthBefore
}
