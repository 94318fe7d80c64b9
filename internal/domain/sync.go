package domain

import "time"

// SyncStatus represents the status of a snapshot sync pass.
// Values include SyncStatusRunning, SyncStatusCompleted, and SyncStatusFailed.
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncRun is the audit row for one snapshot refresh pass against the remote
// document listing.
type SyncRun struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	Status         SyncStatus `gorm:"type:text;default:running" json:"status"`
	StartedAt      time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	PagesFetched   int        `gorm:"default:0" json:"pages_fetched"`
	TotalDocuments int        `gorm:"default:0" json:"total_documents"`
	NewCount       int        `gorm:"default:0" json:"new_count"`
	ChangedCount   int        `gorm:"default:0" json:"changed_count"`
	UnchangedCount int        `gorm:"default:0" json:"unchanged_count"`
	MissingCount   int        `gorm:"default:0" json:"missing_count"`
	ErrorLog       string     `gorm:"type:text" json:"error_log,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for SyncRun.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (SyncRun) TableName() string {
	return "sync_runs"
}
