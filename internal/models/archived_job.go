package models

import (
	"gorm.io/gorm"
)

// ArchivedJob is a job removed from the active set but preserved with its
// full config snapshot, archived-at timestamp, and reason (spec §3).
// Archive is an explicit action distinct from delete; restore produces a
// new active Job seeded from the snapshot.
type ArchivedJob struct {
	BaseModel

	// OriginalJobID is the id the job held while active; restore does not
	// reuse it (a fresh Job gets a fresh id), it is kept only for lookup.
	OriginalJobID ULID `gorm:"type:varchar(26);not null;index" json:"original_job_id"`

	Name     string    `gorm:"not null;size:255" json:"name"`
	Priority int       `gorm:"not null" json:"priority"`
	Status   JobStatus `gorm:"not null;size:20" json:"status"`

	// ConfigSnapshot is the deterministic serialization of the owning
	// UnifiedConfig at the moment of archival (UnifiedConfig.Serialize).
	ConfigSnapshot string `gorm:"type:text;not null" json:"config_snapshot"`

	// ArchivedAt records when the archive action occurred.
	ArchivedAt Time `gorm:"not null" json:"archived_at"`

	// Reason is a free-text note supplied by the caller (may be empty).
	Reason string `gorm:"type:text" json:"reason,omitempty"`
}

// TableName returns the table name for ArchivedJob.
func (ArchivedJob) TableName() string {
	return "archived_jobs"
}

// BeforeCreate generates a ULID and stamps ArchivedAt if unset.
func (a *ArchivedJob) BeforeCreate(tx *gorm.DB) error {
	if a.ArchivedAt.IsZero() {
		a.ArchivedAt = Now()
	}
	return a.BaseModel.BeforeCreate(tx)
}
