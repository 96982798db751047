package models

import (
	"gorm.io/gorm"
)

// JobStatus represents the lifecycle status of an encoding job.
type JobStatus string

const (
	// JobStatusPending indicates the job has been created but never started.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the encoder subprocess is live.
	JobStatusRunning JobStatus = "running"
	// JobStatusStopped indicates the job was stopped by user request.
	JobStatusStopped JobStatus = "stopped"
	// JobStatusError indicates the job failed to spawn, exited non-zero, or
	// was found orphaned on boot reconciliation.
	JobStatusError JobStatus = "error"
	// JobStatusCompleted indicates the encoder exited zero on its own.
	JobStatusCompleted JobStatus = "completed"
)

// IsTerminal reports whether status is one the supervisor no longer tracks
// a live process for.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusStopped, JobStatusError, JobStatusCompleted:
		return true
	default:
		return false
	}
}

// Job is one instance of an encoding task: a UnifiedConfig plus its runtime
// lifecycle state. See spec §3 for the governing invariants.
type Job struct {
	BaseModel

	// Name must be non-empty and unique across active jobs.
	Name string `gorm:"not null;size:255;uniqueIndex" json:"name"`

	// Priority is 1..10; higher runs are not reordered by the supervisor
	// (admission is not a queue) but is surfaced for client-side sorting.
	Priority int `gorm:"not null;default:5" json:"priority"`

	// Status is the job's current lifecycle state.
	Status JobStatus `gorm:"not null;default:'pending';size:20;index:idx_jobs_status_created" json:"status"`

	// StartedAt/StoppedAt are nullable; when both set, StartedAt <= StoppedAt.
	StartedAt *Time `json:"started_at,omitempty"`
	StoppedAt *Time `json:"stopped_at,omitempty"`

	// PID is non-null only while Status == running.
	PID *int `json:"pid,omitempty"`

	// Command is the last compiled (or user-overridden) argv joined for
	// display. May be edited by the user only while not running.
	Command string `gorm:"type:text" json:"command,omitempty"`

	// CommandOverride holds a user-supplied verbatim command string that,
	// when set, replaces the compiler's output at spawn time (spec §4.4
	// step 2, the "interactive FFmpeg edit" power-user path).
	CommandOverride string `gorm:"type:text" json:"command_override,omitempty"`

	// ErrorMessage is non-nil only when Status == error.
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	// UnifiedConfigID is the 1:1 owned config; deletion of the job cascades.
	UnifiedConfigID ULID         `gorm:"type:varchar(26);not null;index" json:"unified_config_id"`
	UnifiedConfig   *UnifiedConfig `gorm:"foreignKey:UnifiedConfigID;constraint:OnDelete:CASCADE" json:"unified_config,omitempty"`

	// FullConfig is the cached serialized UnifiedConfig (deterministic key
	// ordering). Invalidated (set to "") on any write that changes a field
	// the compiler consumes; repopulated at next compilation.
	FullConfig string `gorm:"type:text" json:"-"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsRunning reports whether the job is currently executing.
func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// CanStart reports whether start(job_id) may be attempted (i.e. the job is
// not already occupying a supervisor slot).
func (j *Job) CanStart() bool {
	return j.Status != JobStatusRunning
}

// CanMutateConfig reports whether the config or command override may be
// edited (spec §3: "mutable only when owning job is non-running").
func (j *Job) CanMutateConfig() bool {
	return j.Status != JobStatusRunning
}

// MarkRunning transitions the job to running, recording pid and start time.
func (j *Job) MarkRunning(pid int, command string) {
	now := Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.PID = &pid
	j.Command = command
	j.ErrorMessage = ""
}

// MarkStopped transitions the job to stopped (user-requested termination
// of a still-live or just-exited-zero live run).
func (j *Job) MarkStopped() {
	now := Now()
	j.Status = JobStatusStopped
	j.StoppedAt = &now
	j.PID = nil
}

// MarkCompleted transitions the job to completed (encoder exited zero on
// its own, e.g. a VOD-like run reaching end of input).
func (j *Job) MarkCompleted() {
	now := Now()
	j.Status = JobStatusCompleted
	j.StoppedAt = &now
	j.PID = nil
}

// MarkError transitions the job to error with a diagnostic message, used
// for spawn failures, non-zero exits, and orphan reconciliation.
func (j *Job) MarkError(message string) {
	now := Now()
	j.Status = JobStatusError
	j.StoppedAt = &now
	j.PID = nil
	j.ErrorMessage = message
}

// ResetToPending moves a non-running job back to pending without running
// it (the Job Service's administrative reset_status action).
func (j *Job) ResetToPending() {
	j.Status = JobStatusPending
	j.StartedAt = nil
	j.StoppedAt = nil
	j.PID = nil
	j.ErrorMessage = ""
}

// Validate performs basic structural validation independent of the owned
// UnifiedConfig (which has its own, richer Validate).
func (j *Job) Validate() error {
	if j.Name == "" {
		return ErrJobNameRequired
	}
	if j.Priority < 1 || j.Priority > 10 {
		return ErrJobPriorityRange
	}
	return nil
}

// BeforeCreate is a GORM hook generating the ULID and validating the job.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}

// BeforeUpdate is a GORM hook validating the job before update.
func (j *Job) BeforeUpdate(tx *gorm.DB) error {
	return j.Validate()
}
