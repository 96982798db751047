// Package repository defines data access interfaces for streamforge entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/streamforge/streamforge/internal/models"
)

// JobFilter narrows List results by status; a nil Status matches any.
type JobFilter struct {
	Status *models.JobStatus
}

// JobRepository defines operations for job + owned UnifiedConfig persistence
// (spec §4.3 Store). Reads of a job together with its config are snapshot
// consistent; status transitions are atomic with their timestamp/pid writes.
type JobRepository interface {
	// Create persists a job and its owned UnifiedConfig in one transaction.
	Create(ctx context.Context, job *models.Job, config *models.UnifiedConfig) error
	// GetByID retrieves a job with its UnifiedConfig preloaded. Returns nil,
	// nil if not found.
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	// GetByName retrieves a job by its unique name.
	GetByName(ctx context.Context, name string) (*models.Job, error)
	// List retrieves jobs matching filter, ordered by created_at desc, with
	// offset/limit pagination. Returns the page and the total matching count.
	List(ctx context.Context, filter JobFilter, offset, limit int) ([]*models.Job, int64, error)
	// GetRunning retrieves all jobs with status=running, ordered by started_at.
	GetRunning(ctx context.Context) ([]*models.Job, error)
	// UpdateConfig replaces the job's UnifiedConfig and invalidates the
	// cached FullConfig, in one transaction. Rejected by the caller (Job
	// Service), not here, when the job is running.
	UpdateConfig(ctx context.Context, jobID models.ULID, config *models.UnifiedConfig) error
	// UpdateCommandOverride sets (or clears, with "") the user-supplied
	// command override.
	UpdateCommandOverride(ctx context.Context, jobID models.ULID, override string) error
	// UpdateCachedCommand refreshes the display-only Command field and the
	// FullConfig cache after a (re)compile, without touching Status/PID.
	UpdateCachedCommand(ctx context.Context, jobID models.ULID, command, fullConfig string) error
	// TransitionToRunning atomically sets status=running, pid, started_at,
	// command, and clears error_message (spec §4.4 step 6).
	TransitionToRunning(ctx context.Context, jobID models.ULID, pid int, command string) error
	// TransitionToStopped atomically sets status=stopped, stopped_at, pid=nil.
	TransitionToStopped(ctx context.Context, jobID models.ULID) error
	// TransitionToCompleted atomically sets status=completed, stopped_at, pid=nil.
	TransitionToCompleted(ctx context.Context, jobID models.ULID) error
	// TransitionToError atomically sets status=error, stopped_at, pid=nil,
	// error_message.
	TransitionToError(ctx context.Context, jobID models.ULID, message string) error
	// ResetToPending moves a (non-running, enforced by caller) job back to
	// pending, clearing started_at/stopped_at/pid/error_message.
	ResetToPending(ctx context.Context, jobID models.ULID) error
	// Delete permanently removes a job; cascades to its UnifiedConfig.
	Delete(ctx context.Context, id models.ULID) error
	// Transaction runs fn with a transactional JobRepository; rollback on error.
	Transaction(ctx context.Context, fn func(JobRepository) error) error
}

// StatisticsRepository defines operations for StatisticsSample persistence
// (spec §4.5 batched writes, §4.3 rolling-window retention).
type StatisticsRepository interface {
	// CreateBatch inserts up to K samples in one statement (spec §4.5
	// "persisted in batches of up to K... to bound DB write rate").
	CreateBatch(ctx context.Context, samples []*models.StatisticsSample) error
	// GetByJobID retrieves samples for a job with timestamp after since,
	// ordered by timestamp ascending. since is exclusive (epoch millis).
	GetByJobID(ctx context.Context, jobID models.ULID, since int64, limit int) ([]*models.StatisticsSample, error)
	// GetLatest retrieves the most recent sample for a job, or nil if none.
	GetLatest(ctx context.Context, jobID models.ULID) (*models.StatisticsSample, error)
	// DeleteOlderThan prunes samples older than the retention cutoff; used
	// by the scheduled retention-pruning task.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	// DeleteByJobID removes all samples for a job. Job deletion and archival
	// do not call it.
	DeleteByJobID(ctx context.Context, jobID models.ULID) (int64, error)
}

// ArchiveRepository defines operations for ArchivedJob persistence (spec §3
// "archive is an explicit action distinct from delete").
type ArchiveRepository interface {
	// Create persists an archived snapshot.
	Create(ctx context.Context, archived *models.ArchivedJob) error
	// GetByID retrieves an archived job by its own id.
	GetByID(ctx context.Context, id models.ULID) (*models.ArchivedJob, error)
	// List retrieves archived jobs ordered by archived_at desc, paginated.
	List(ctx context.Context, offset, limit int) ([]*models.ArchivedJob, int64, error)
	// Delete permanently removes an archived snapshot (distinct from restore).
	Delete(ctx context.Context, id models.ULID) error
}

// EncodingProfileRepository defines operations for encoding profile
// persistence. Presets/templates CRUD is out of the core per spec.md §1 but
// the repository is kept as supporting glue for the HTTP layer.
type EncodingProfileRepository interface {
	// Create creates a new encoding profile.
	Create(ctx context.Context, profile *models.EncodingProfile) error
	// GetByID retrieves an encoding profile by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.EncodingProfile, error)
	// GetAll retrieves all encoding profiles.
	GetAll(ctx context.Context) ([]*models.EncodingProfile, error)
	// GetEnabled retrieves all enabled encoding profiles.
	GetEnabled(ctx context.Context) ([]*models.EncodingProfile, error)
	// GetByName retrieves an encoding profile by name.
	GetByName(ctx context.Context, name string) (*models.EncodingProfile, error)
	// GetDefault retrieves the default encoding profile.
	GetDefault(ctx context.Context) (*models.EncodingProfile, error)
	// GetSystem retrieves all system encoding profiles.
	GetSystem(ctx context.Context) ([]*models.EncodingProfile, error)
	// Update updates an existing encoding profile.
	Update(ctx context.Context, profile *models.EncodingProfile) error
	// Delete deletes an encoding profile by ID.
	Delete(ctx context.Context, id models.ULID) error
	// Count returns the total number of encoding profiles.
	Count(ctx context.Context) (int64, error)
	// CountEnabled returns the number of enabled profiles.
	CountEnabled(ctx context.Context) (int64, error)
	// SetDefault sets a profile as the default (unsets previous default).
	SetDefault(ctx context.Context, id models.ULID) error
}
