// Package jobservice implements the Job Service (spec.md §4.7): the public
// facade over job CRUD, compilation, and lifecycle control. It is the only
// caller of internal/compiler and internal/supervisor from outside those
// packages — HTTP handlers depend on this package, never on the Supervisor
// or Compiler directly.
package jobservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/streamforge/streamforge/internal/compiler"
	"github.com/streamforge/streamforge/internal/ffmpeg"
	"github.com/streamforge/streamforge/internal/models"
	"github.com/streamforge/streamforge/internal/repository"
)

// Supervisor is the subset of *supervisor.Supervisor the Job Service drives.
type Supervisor interface {
	Start(ctx context.Context, jobID models.ULID) error
	Stop(ctx context.Context, jobID models.ULID) error
	ForceKill(ctx context.Context, jobID models.ULID) (int, error)
	IsRunning(jobID models.ULID) bool
}

// Service is the public facade described in spec.md §4.7.
type Service struct {
	jobs       repository.JobRepository
	archives   repository.ArchiveRepository
	supervisor Supervisor
	env        compiler.EnvironmentContext
	logger     *slog.Logger
}

// New creates a Job Service.
func New(jobs repository.JobRepository, archives repository.ArchiveRepository, supervisor Supervisor, env compiler.EnvironmentContext, logger *slog.Logger) *Service {
	return &Service{
		jobs:       jobs,
		archives:   archives,
		supervisor: supervisor,
		env:        env,
		logger:     logger.With("component", "job_service"),
	}
}

// CreateUnified validates config, compiles it once to surface warnings and
// seed the initial display command, and persists job+config atomically
// (spec §4.7 create_unified). The returned warnings are advisory only —
// they never block creation.
func (s *Service) CreateUnified(ctx context.Context, name string, priority int, config *models.UnifiedConfig) (*models.Job, []compiler.WarningCode, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil, models.ErrJobNameRequired
	}
	if priority < 1 || priority > 10 {
		return nil, nil, models.ErrJobPriorityRange
	}

	existing, err := s.jobs.GetByName(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("checking name uniqueness: %w", err)
	}
	if existing != nil {
		return nil, nil, models.ErrDuplicateName
	}

	normalized := config.Normalize()
	if err := normalized.Validate(); err != nil {
		return nil, nil, err
	}
	if err := validateCustomArgs(normalized.CustomArgs); err != nil {
		return nil, nil, err
	}

	job := &models.Job{
		Name:     name,
		Priority: priority,
		Status:   models.JobStatusPending,
	}

	if err := s.jobs.Create(ctx, job, &normalized); err != nil {
		return nil, nil, fmt.Errorf("creating job: %w", err)
	}
	normalized.JobID = job.ID
	job.UnifiedConfig = &normalized

	warnings, compileErr := s.compileAndCache(ctx, job, &normalized)
	if compileErr != nil {
		// The config already validated above; a compile failure here means
		// no output plan could be derived (e.g. a restricted path slipped
		// past Validate through a field Validate doesn't check). The job
		// stays created — the caller can inspect/update it — but surfaces
		// the problem immediately rather than silently.
		s.logger.Warn("initial compile failed", "job_id", job.ID.String(), "error", compileErr)
	}

	return job, warnings, nil
}

// GetUnified reconstructs a job and its owned config (spec §4.7
// get_unified).
func (s *Service) GetUnified(ctx context.Context, jobID models.ULID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading job: %w", err)
	}
	if job == nil {
		return nil, &models.ErrNotFound{Kind: "job", ID: jobID.String()}
	}
	return job, nil
}

// UpdateUnified replaces a non-running job's config, re-validates, and
// re-compiles to refresh the cached display command (spec §4.7
// update_unified).
func (s *Service) UpdateUnified(ctx context.Context, jobID models.ULID, config *models.UnifiedConfig) (*models.Job, []compiler.WarningCode, error) {
	job, err := s.GetUnified(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.IsRunning() {
		return nil, nil, models.ErrJobRunning
	}

	normalized := config.Normalize()
	if err := normalized.Validate(); err != nil {
		return nil, nil, err
	}
	if err := validateCustomArgs(normalized.CustomArgs); err != nil {
		return nil, nil, err
	}
	normalized.JobID = jobID

	if err := s.jobs.UpdateConfig(ctx, jobID, &normalized); err != nil {
		return nil, nil, fmt.Errorf("updating config: %w", err)
	}
	job.UnifiedConfig = &normalized

	warnings, compileErr := s.compileAndCache(ctx, job, &normalized)
	if compileErr != nil {
		return nil, nil, compileErr
	}
	return job, warnings, nil
}

// UpdateCommand sets (or clears, with "") the user-supplied command
// override (spec §4.7 update_command). Rejected while running; a non-empty
// override must start with "ffmpeg".
func (s *Service) UpdateCommand(ctx context.Context, jobID models.ULID, command string) error {
	job, err := s.GetUnified(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsRunning() {
		return models.ErrJobRunning
	}

	trimmed := strings.TrimSpace(command)
	if trimmed != "" && !strings.HasPrefix(trimmed, "ffmpeg") {
		return models.ErrCommandOverrideMustStartWithFFmpeg
	}

	if err := s.jobs.UpdateCommandOverride(ctx, jobID, trimmed); err != nil {
		return fmt.Errorf("updating command override: %w", err)
	}
	return nil
}

// Start defers to the Supervisor (spec §4.7 start).
func (s *Service) Start(ctx context.Context, jobID models.ULID) error {
	job, err := s.GetUnified(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.CanStart() {
		return models.ErrJobRunning
	}
	return s.supervisor.Start(ctx, jobID)
}

// Stop defers to the Supervisor's graceful stop (spec §4.7 stop).
func (s *Service) Stop(ctx context.Context, jobID models.ULID) error {
	return s.supervisor.Stop(ctx, jobID)
}

// ForceKill defers to the Supervisor's immediate kill, returning the number
// of additional orphaned processes reaped (spec §4.7 force_kill).
func (s *Service) ForceKill(ctx context.Context, jobID models.ULID) (int, error) {
	return s.supervisor.ForceKill(ctx, jobID)
}

// ResetStatus administratively moves a non-running job back to pending
// without running it (spec §4.7 reset_status).
func (s *Service) ResetStatus(ctx context.Context, jobID models.ULID) error {
	job, err := s.GetUnified(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsRunning() {
		return models.ErrJobRunning
	}
	return s.jobs.ResetToPending(ctx, jobID)
}

// Delete permanently removes a job and its owned config (spec §4.7
// delete). Rejected while running — stop or force_kill first.
func (s *Service) Delete(ctx context.Context, jobID models.ULID) error {
	job, err := s.GetUnified(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsRunning() {
		return models.ErrJobRunning
	}
	return s.jobs.Delete(ctx, jobID)
}

// Archive snapshots a non-running job into the archive table and deletes
// the active record (spec §3: "archive is an explicit action distinct from
// delete"; spec §4.7 archive).
func (s *Service) Archive(ctx context.Context, jobID models.ULID, reason string) (*models.ArchivedJob, error) {
	job, err := s.GetUnified(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsRunning() {
		return nil, models.ErrJobRunning
	}

	snapshot, err := job.UnifiedConfig.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serializing config snapshot: %w", err)
	}

	archived := &models.ArchivedJob{
		OriginalJobID:  job.ID,
		Name:           job.Name,
		Priority:       job.Priority,
		Status:         job.Status,
		ConfigSnapshot: snapshot,
		Reason:         reason,
	}

	// Snapshot first, delete second: a failure between the two leaves an
	// orphaned archive entry (recoverable) rather than a silently
	// vanished job with nothing to restore from.
	if err := s.archives.Create(ctx, archived); err != nil {
		return nil, fmt.Errorf("creating archive snapshot: %w", err)
	}
	if err := s.jobs.Delete(ctx, jobID); err != nil {
		return nil, fmt.Errorf("deleting active job: %w", err)
	}
	return archived, nil
}

// Restore produces a fresh, pending active Job seeded from an archived
// snapshot (spec §4.7 restore). The restored job gets a new id; the
// archive entry is left in place (restore is not destructive of history).
func (s *Service) Restore(ctx context.Context, archivedID models.ULID) (*models.Job, error) {
	archived, err := s.archives.GetByID(ctx, archivedID)
	if err != nil {
		return nil, fmt.Errorf("loading archived job: %w", err)
	}
	if archived == nil {
		return nil, &models.ErrNotFound{Kind: "archived_job", ID: archivedID.String()}
	}

	var config models.UnifiedConfig
	if err := json.Unmarshal([]byte(archived.ConfigSnapshot), &config); err != nil {
		return nil, fmt.Errorf("decoding config snapshot: %w", err)
	}

	name := archived.Name
	if existing, err := s.jobs.GetByName(ctx, name); err == nil && existing != nil {
		name = name + "-restored-" + models.NewULID().String()[:6]
	}

	job, _, err := s.CreateUnified(ctx, name, archived.Priority, &config)
	if err != nil {
		return nil, fmt.Errorf("recreating job from snapshot: %w", err)
	}
	return job, nil
}

// List reads jobs matching filter with pagination (spec §4.7 list).
func (s *Service) List(ctx context.Context, filter repository.JobFilter, offset, limit int) ([]*models.Job, int64, error) {
	return s.jobs.List(ctx, filter, offset, limit)
}

// compileAndCache runs the compiler against config, caches the resulting
// display command and serialized config on the job row, and returns the
// compiler's advisory warnings. A compile error is returned to the caller
// but never rolls back the already-persisted job/config.
func (s *Service) compileAndCache(ctx context.Context, job *models.Job, config *models.UnifiedConfig) ([]compiler.WarningCode, error) {
	argv, _, warnings, err := compiler.Compile(config, s.env)
	if err != nil {
		return nil, fmt.Errorf("compiling: %w", err)
	}

	serialized, err := config.Serialize()
	if err != nil {
		return warnings, fmt.Errorf("serializing config: %w", err)
	}

	command := strings.Join(argv, " ")
	if err := s.jobs.UpdateCachedCommand(ctx, job.ID, command, serialized); err != nil {
		return warnings, fmt.Errorf("caching compiled command: %w", err)
	}
	job.Command = command
	job.FullConfig = serialized
	return warnings, nil
}

// validateCustomArgs rejects CustomArgs that would inject shell metacharacters
// or redeclare a flag the compiler already controls (-i, -y, codec selection,
// ...). CustomArgs are appended verbatim to the compiled argv (compiler.go's
// "custom args appended last"), so this is the only gate between a pasted-in
// flag string and an exec'd encoder process.
func validateCustomArgs(args []string) error {
	if len(args) == 0 {
		return nil
	}
	result := ffmpeg.ValidateCustomFlags("", strings.Join(args, " "), "")
	if !result.Valid {
		return &models.ErrValidation{Field: "custom_args", Message: strings.Join(result.Errors, "; ")}
	}
	return nil
}
