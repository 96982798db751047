package repository

import (
	"context"
	"fmt"

	"github.com/streamforge/streamforge/internal/models"
	"gorm.io/gorm"
)

// jobRepo implements JobRepository using GORM.
type jobRepo struct {
	db     *gorm.DB
	driver string // "sqlite", "postgres", or "mysql"
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) JobRepository {
	driver := ""
	if db.Dialector != nil {
		driver = db.Dialector.Name()
	}
	return &jobRepo{db: db, driver: driver}
}

// Create persists a job and its UnifiedConfig together so a crash between
// the two writes never leaves a job without its owned config (spec §3:
// "Config: created atomically with its job").
func (r *jobRepo) Create(ctx context.Context, job *models.Job, config *models.UnifiedConfig) error {
	if job.ID.IsZero() {
		job.ID = models.NewULID()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		config.JobID = job.ID
		if err := tx.Create(config).Error; err != nil {
			return fmt.Errorf("creating unified config: %w", err)
		}
		job.UnifiedConfigID = config.ID
		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("creating job: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a job with its UnifiedConfig preloaded. The preload
// happens inside the same query's transaction semantics as the row read
// (spec §4.3: "reads are snapshot-consistent").
func (r *jobRepo) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).Preload("UnifiedConfig").Where("id = ?", id).First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// GetByName retrieves a job by its unique name.
func (r *jobRepo) GetByName(ctx context.Context, name string) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).Preload("UnifiedConfig").Where("name = ?", name).First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by name: %w", err)
	}
	return &job, nil
}

// List retrieves jobs matching filter, newest first, paginated.
func (r *jobRepo) List(ctx context.Context, filter JobFilter, offset, limit int) ([]*models.Job, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Job{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting jobs: %w", err)
	}

	var jobs []*models.Job
	err := query.Preload("UnifiedConfig").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, total, nil
}

// GetRunning retrieves all currently running jobs, oldest start first — the
// order the supervisor uses to log/report them.
func (r *jobRepo) GetRunning(ctx context.Context) ([]*models.Job, error) {
	var jobs []*models.Job
	err := r.db.WithContext(ctx).Preload("UnifiedConfig").
		Where("status = ?", models.JobStatusRunning).
		Order("started_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("getting running jobs: %w", err)
	}
	return jobs, nil
}

// UpdateConfig replaces the owned UnifiedConfig and invalidates the job's
// FullConfig cache (spec §4.3: "full_config is invalidated... on any write
// that changes a field the compiler consumes").
func (r *jobRepo) UpdateConfig(ctx context.Context, jobID models.ULID, config *models.UnifiedConfig) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Where("id = ?", jobID).First(&job).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return gorm.ErrRecordNotFound
			}
			return fmt.Errorf("loading job for config update: %w", err)
		}

		config.JobID = jobID
		config.ID = job.UnifiedConfigID
		if err := tx.Save(config).Error; err != nil {
			return fmt.Errorf("saving unified config: %w", err)
		}

		result := tx.Model(&models.Job{}).Where("id = ?", jobID).UpdateColumn("full_config", "")
		if result.Error != nil {
			return fmt.Errorf("invalidating full_config cache: %w", result.Error)
		}
		return nil
	})
}

// UpdateCommandOverride sets or clears the user-supplied command override.
func (r *jobRepo) UpdateCommandOverride(ctx context.Context, jobID models.ULID, override string) error {
	result := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", jobID).
		UpdateColumn("command_override", override)
	if result.Error != nil {
		return fmt.Errorf("updating command override: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateCachedCommand refreshes the display-only Command and FullConfig
// cache after a (re)compile, leaving lifecycle fields untouched.
func (r *jobRepo) UpdateCachedCommand(ctx context.Context, jobID models.ULID, command, fullConfig string) error {
	result := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", jobID).
		UpdateColumns(map[string]any{
			"command":     command,
			"full_config": fullConfig,
		})
	if result.Error != nil {
		return fmt.Errorf("updating cached command: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionToRunning atomically sets status=running, pid, started_at,
// command, and clears error_message. UpdateColumns bypasses BeforeUpdate so
// the transition commits even though Job.Validate would otherwise run.
func (r *jobRepo) TransitionToRunning(ctx context.Context, jobID models.ULID, pid int, command string) error {
	now := models.Now()
	result := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", jobID).
		UpdateColumns(map[string]any{
			"status":        models.JobStatusRunning,
			"started_at":    now,
			"stopped_at":    nil,
			"pid":           pid,
			"command":       command,
			"error_message": "",
		})
	if result.Error != nil {
		return fmt.Errorf("transitioning job to running: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionToStopped atomically sets status=stopped, stopped_at, pid=nil.
func (r *jobRepo) TransitionToStopped(ctx context.Context, jobID models.ULID) error {
	return r.transitionTerminal(ctx, jobID, models.JobStatusStopped, "")
}

// TransitionToCompleted atomically sets status=completed, stopped_at, pid=nil.
func (r *jobRepo) TransitionToCompleted(ctx context.Context, jobID models.ULID) error {
	return r.transitionTerminal(ctx, jobID, models.JobStatusCompleted, "")
}

// TransitionToError atomically sets status=error, stopped_at, pid=nil,
// error_message (spec §4.4: non-zero exit / orphan reconciliation).
func (r *jobRepo) TransitionToError(ctx context.Context, jobID models.ULID, message string) error {
	return r.transitionTerminal(ctx, jobID, models.JobStatusError, message)
}

func (r *jobRepo) transitionTerminal(ctx context.Context, jobID models.ULID, status models.JobStatus, errorMessage string) error {
	now := models.Now()
	result := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", jobID).
		UpdateColumns(map[string]any{
			"status":        status,
			"stopped_at":    now,
			"pid":           nil,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return fmt.Errorf("transitioning job to %s: %w", status, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ResetToPending moves a job back to pending without running it (the Job
// Service's administrative reset_status action).
func (r *jobRepo) ResetToPending(ctx context.Context, jobID models.ULID) error {
	result := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", jobID).
		UpdateColumns(map[string]any{
			"status":        models.JobStatusPending,
			"started_at":    nil,
			"stopped_at":    nil,
			"pid":           nil,
			"error_message": "",
		})
	if result.Error != nil {
		return fmt.Errorf("resetting job to pending: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete permanently removes a job and its owned UnifiedConfig in one
// transaction. Unscoped bypasses the soft delete so the job's unique name
// is free for reuse.
func (r *jobRepo) Delete(ctx context.Context, id models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("id = ?", id).Delete(&models.Job{}).Error; err != nil {
			return fmt.Errorf("deleting job: %w", err)
		}
		if err := tx.Unscoped().Where("job_id = ?", id).Delete(&models.UnifiedConfig{}).Error; err != nil {
			return fmt.Errorf("deleting unified config: %w", err)
		}
		return nil
	})
}

// Transaction runs fn with a transactional JobRepository sharing the same
// driver dispatch, so callers (e.g. the Job Service's archive/restore) can
// compose multi-step writes atomically.
func (r *jobRepo) Transaction(ctx context.Context, fn func(JobRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&jobRepo{db: tx, driver: r.driver})
	})
}

// Ensure jobRepo implements JobRepository at compile time.
var _ JobRepository = (*jobRepo)(nil)
