package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// DocumentSnapshot is the locally cached view of one remote document's
// metadata, refreshed by sync passes. The remote system stays authoritative
// for the document itself; this row only records what we last observed.
type DocumentSnapshot struct {
	ID               int64       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title            string      `gorm:"type:text" json:"title"`
	MimeType         string      `gorm:"type:text" json:"mime_type"`
	OriginalFilename string      `gorm:"type:text" json:"original_filename"`
	ArchiveFilename  string      `gorm:"type:text" json:"archive_filename"`
	PageCount        *int        `json:"page_count,omitempty"`
	ContentLength    int64       `gorm:"not null;default:0;index:idx_snapshots_content_length" json:"content_length"`
	ModifiedAt       time.Time   `json:"modified_at"`
	Tags             StringArray `gorm:"type:text" json:"tags"`
	Fingerprint      string      `gorm:"type:text;index:idx_snapshots_fingerprint" json:"fingerprint"`
	Active           bool        `gorm:"not null;default:true;index:idx_snapshots_active" json:"active"`
	FirstSeenAt      time.Time   `json:"first_seen_at"`
	SyncedAt         time.Time   `json:"synced_at"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// TableName returns the database table name for DocumentSnapshot.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (DocumentSnapshot) TableName() string {
	return "document_snapshots"
}

// HasArchive reports whether the snapshot carries an archive artifact.
func (d *DocumentSnapshot) HasArchive() bool {
	return d.ArchiveFilename != ""
}
