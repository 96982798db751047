package handlers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2"

	"github.com/streamforge/streamforge/internal/jobservice"
	"github.com/streamforge/streamforge/internal/models"
	"github.com/streamforge/streamforge/internal/repository"
)

// JobHandler handles encoding job API endpoints (spec.md §6): the HTTP
// surface over the Job Service facade. It holds no business logic of its
// own beyond request/response translation and the log-tail file read.
type JobHandler struct {
	jobs            *jobservice.Service
	archives        repository.ArchiveRepository
	logDir          string
	logTailMaxLines int
}

// NewJobHandler creates a new job handler. logDir and logTailMaxLines mirror
// config.StorageConfig.LogDir / config.JobsConfig.LogTailMaxLines. archives
// is used only for the archived-job listing, which the Job Service facade
// does not itself expose.
func NewJobHandler(jobs *jobservice.Service, archives repository.ArchiveRepository, logDir string, logTailMaxLines int) *JobHandler {
	if logTailMaxLines <= 0 {
		logTailMaxLines = 500
	}
	return &JobHandler{
		jobs:            jobs,
		archives:        archives,
		logDir:          logDir,
		logTailMaxLines: logTailMaxLines,
	}
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "createJob",
		Method:      "POST",
		Path:        "/api/v1/jobs",
		Summary:     "Create job",
		Description: "Validates and compiles a unified config, persists the job, and returns the compiled ffmpeg command",
		Tags:        []string{"Jobs"},
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Returns jobs, optionally filtered by status, with pagination",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job",
		Description: "Returns a job and its owned unified config by ID",
		Tags:        []string{"Jobs"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "updateJobConfig",
		Method:      "PUT",
		Path:        "/api/v1/jobs/{id}/config",
		Summary:     "Update job config",
		Description: "Replaces a non-running job's unified config, re-validates, and recompiles",
		Tags:        []string{"Jobs"},
	}, h.UpdateConfig)

	huma.Register(api, huma.Operation{
		OperationID: "updateJobCommand",
		Method:      "PATCH",
		Path:        "/api/v1/jobs/{id}/command",
		Summary:     "Override job command",
		Description: "Sets or clears a verbatim ffmpeg command override for a non-running job",
		Tags:        []string{"Jobs"},
	}, h.UpdateCommand)

	huma.Register(api, huma.Operation{
		OperationID: "startJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/start",
		Summary:     "Start job",
		Description: "Spawns the compiled or overridden ffmpeg command under the supervisor",
		Tags:        []string{"Jobs"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "stopJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/stop",
		Summary:     "Stop job",
		Description: "Gracefully stops a running job",
		Tags:        []string{"Jobs"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "forceKillJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/kill",
		Summary:     "Force-kill job",
		Description: "Immediately kills a running job's process tree and reaps any orphans",
		Tags:        []string{"Jobs"},
	}, h.ForceKill)

	huma.Register(api, huma.Operation{
		OperationID: "resetJobStatus",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/reset",
		Summary:     "Reset job status",
		Description: "Administratively moves a non-running job back to pending",
		Tags:        []string{"Jobs"},
	}, h.ResetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "deleteJob",
		Method:      "DELETE",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Delete job",
		Description: "Permanently deletes a non-running job and its owned config",
		Tags:        []string{"Jobs"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "archiveJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/archive",
		Summary:     "Archive job",
		Description: "Snapshots a non-running job into the archive and removes it from the active set",
		Tags:        []string{"Jobs"},
	}, h.Archive)

	huma.Register(api, huma.Operation{
		OperationID: "listArchivedJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs/archived",
		Summary:     "List archived jobs",
		Description: "Returns archived job snapshots with pagination",
		Tags:        []string{"Jobs"},
	}, h.ListArchived)

	huma.Register(api, huma.Operation{
		OperationID: "restoreArchivedJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/archived/{id}/restore",
		Summary:     "Restore archived job",
		Description: "Recreates a pending active job from an archived snapshot",
		Tags:        []string{"Jobs"},
	}, h.Restore)

	huma.Register(api, huma.Operation{
		OperationID: "tailJobLog",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}/log",
		Summary:     "Tail job log",
		Description: "Returns the last N lines of the job's captured ffmpeg stderr/stdout log",
		Tags:        []string{"Jobs"},
	}, h.TailLog)
}

// mapServiceError translates a Job Service error into the matching HTTP
// status (spec.md §7's error kinds 1-3 map to 400/409/404; everything else
// is a 500).
func mapServiceError(action string, err error) error {
	var notFound *models.ErrNotFound
	if errors.As(err, &notFound) {
		return huma.Error404NotFound(err.Error())
	}

	var validation *models.ErrValidation
	if errors.As(err, &validation) {
		return huma.Error400BadRequest(err.Error())
	}

	var conflict models.ErrConflict
	if errors.As(err, &conflict) {
		return huma.Error409Conflict(err.Error())
	}

	switch {
	case errors.Is(err, models.ErrJobNameRequired),
		errors.Is(err, models.ErrJobPriorityRange),
		errors.Is(err, models.ErrCommandOverrideMustStartWithFFmpeg):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, models.ErrJobRunning),
		errors.Is(err, models.ErrDuplicateName),
		errors.Is(err, models.ErrAtCapacity):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error500InternalServerError(fmt.Sprintf("failed to %s", action), err)
	}
}

func parseJobID(raw string) (models.ULID, error) {
	id, err := models.ParseULID(raw)
	if err != nil {
		return models.ULID{}, huma.Error400BadRequest("invalid ID format", err)
	}
	return id, nil
}

// CreateJobInput is the input for creating a job.
type CreateJobInput struct {
	Body struct {
		Name     string            `json:"name" minLength:"1" doc:"Unique job name"`
		Priority int               `json:"priority" default:"5" minimum:"1" maximum:"10"`
		Config   UnifiedConfigData `json:"config"`
	}
}

// CreateJobOutput is the output for creating a job.
type CreateJobOutput struct {
	Body struct {
		Job            JobResponse `json:"job"`
		FFmpegCommand  string      `json:"ffmpeg_command"`
		Warnings       []string    `json:"warnings,omitempty"`
	}
}

// Create validates config, compiles it, and persists the job.
func (h *JobHandler) Create(ctx context.Context, input *CreateJobInput) (*CreateJobOutput, error) {
	config := input.Body.Config.ToModel()

	job, warnings, err := h.jobs.CreateUnified(ctx, input.Body.Name, input.Body.Priority, config)
	if err != nil {
		return nil, mapServiceError("create job", err)
	}

	resp := &CreateJobOutput{}
	resp.Body.Job = JobFromModel(job)
	resp.Body.FFmpegCommand = job.Command
	for _, w := range warnings {
		resp.Body.Warnings = append(resp.Body.Warnings, string(w))
	}
	return resp, nil
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct {
	Status string `query:"status" doc:"Filter by status (pending, running, stopped, error, completed)" enum:"pending,running,stopped,error,completed,"`
	Offset int    `query:"offset" default:"0" minimum:"0"`
	Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"1000"`
}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs       []JobResponse  `json:"jobs"`
		Pagination PaginationMeta `json:"pagination"`
	}
}

// List returns jobs matching an optional status filter, paginated.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	filter := repository.JobFilter{}
	if input.Status != "" {
		status := models.JobStatus(input.Status)
		filter.Status = &status
	}

	jobs, total, err := h.jobs.List(ctx, filter, input.Offset, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs", err)
	}

	resp := &ListJobsOutput{}
	resp.Body.Jobs = make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp.Body.Jobs = append(resp.Body.Jobs, JobFromModel(j))
	}

	totalPages := total / int64(input.Limit)
	if total%int64(input.Limit) > 0 {
		totalPages++
	}
	resp.Body.Pagination = PaginationMeta{
		CurrentPage: (input.Offset / input.Limit) + 1,
		PageSize:    input.Limit,
		TotalItems:  total,
		TotalPages:  totalPages,
	}

	return resp, nil
}

// GetJobInput is the input for getting a job.
type GetJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetJobOutput is the output for getting a job.
type GetJobOutput struct {
	Body JobResponse
}

// Get returns a job by ID.
func (h *JobHandler) Get(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}

	job, err := h.jobs.GetUnified(ctx, id)
	if err != nil {
		return nil, mapServiceError("get job", err)
	}

	return &GetJobOutput{Body: JobFromModel(job)}, nil
}

// UpdateJobConfigInput is the input for updating a job's config.
type UpdateJobConfigInput struct {
	ID   string `path:"id" doc:"Job ID (ULID)"`
	Body UnifiedConfigData
}

// UpdateJobConfigOutput is the output for updating a job's config.
type UpdateJobConfigOutput struct {
	Body struct {
		Job           JobResponse `json:"job"`
		FFmpegCommand string      `json:"ffmpeg_command"`
		Warnings      []string    `json:"warnings,omitempty"`
	}
}

// UpdateConfig replaces a non-running job's config.
func (h *JobHandler) UpdateConfig(ctx context.Context, input *UpdateJobConfigInput) (*UpdateJobConfigOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}

	config := input.Body.ToModel()
	job, warnings, err := h.jobs.UpdateUnified(ctx, id, config)
	if err != nil {
		return nil, mapServiceError("update job config", err)
	}

	resp := &UpdateJobConfigOutput{}
	resp.Body.Job = JobFromModel(job)
	resp.Body.FFmpegCommand = job.Command
	for _, w := range warnings {
		resp.Body.Warnings = append(resp.Body.Warnings, string(w))
	}
	return resp, nil
}

// UpdateJobCommandInput is the input for overriding a job's command.
type UpdateJobCommandInput struct {
	ID   string `path:"id" doc:"Job ID (ULID)"`
	Body struct {
		Command string `json:"command" doc:"Verbatim ffmpeg command, or empty to clear the override"`
	}
}

// UpdateJobCommandOutput is the output for overriding a job's command.
type UpdateJobCommandOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// UpdateCommand sets or clears a job's command override.
func (h *JobHandler) UpdateCommand(ctx context.Context, input *UpdateJobCommandInput) (*UpdateJobCommandOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := h.jobs.UpdateCommand(ctx, id, input.Body.Command); err != nil {
		return nil, mapServiceError("update job command", err)
	}

	resp := &UpdateJobCommandOutput{}
	resp.Body.Message = "command override updated"
	return resp, nil
}

// StartJobInput is the input for starting a job.
type StartJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// StartJobOutput is the output for starting a job.
type StartJobOutput struct {
	Body JobResponse
}

// Start spawns the job's compiled command under the supervisor.
func (h *JobHandler) Start(ctx context.Context, input *StartJobInput) (*StartJobOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := h.jobs.Start(ctx, id); err != nil {
		return nil, mapServiceError("start job", err)
	}

	job, err := h.jobs.GetUnified(ctx, id)
	if err != nil {
		return nil, mapServiceError("get job", err)
	}
	return &StartJobOutput{Body: JobFromModel(job)}, nil
}

// StopJobInput is the input for stopping a job.
type StopJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// StopJobOutput is the output for stopping a job.
type StopJobOutput struct {
	Body JobResponse
}

// Stop gracefully stops a running job.
func (h *JobHandler) Stop(ctx context.Context, input *StopJobInput) (*StopJobOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := h.jobs.Stop(ctx, id); err != nil {
		return nil, mapServiceError("stop job", err)
	}

	job, err := h.jobs.GetUnified(ctx, id)
	if err != nil {
		return nil, mapServiceError("get job", err)
	}
	return &StopJobOutput{Body: JobFromModel(job)}, nil
}

// ForceKillJobInput is the input for force-killing a job.
type ForceKillJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// ForceKillJobOutput is the output for force-killing a job.
type ForceKillJobOutput struct {
	Body struct {
		Job            JobResponse `json:"job"`
		OrphansReaped  int         `json:"orphans_reaped"`
	}
}

// ForceKill immediately kills a job's process tree.
func (h *JobHandler) ForceKill(ctx context.Context, input *ForceKillJobInput) (*ForceKillJobOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}

	orphans, err := h.jobs.ForceKill(ctx, id)
	if err != nil {
		return nil, mapServiceError("force-kill job", err)
	}

	job, err := h.jobs.GetUnified(ctx, id)
	if err != nil {
		return nil, mapServiceError("get job", err)
	}

	resp := &ForceKillJobOutput{}
	resp.Body.Job = JobFromModel(job)
	resp.Body.OrphansReaped = orphans
	return resp, nil
}

// ResetJobStatusInput is the input for resetting a job's status.
type ResetJobStatusInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// ResetJobStatusOutput is the output for resetting a job's status.
type ResetJobStatusOutput struct {
	Body JobResponse
}

// ResetStatus moves a non-running job back to pending.
func (h *JobHandler) ResetStatus(ctx context.Context, input *ResetJobStatusInput) (*ResetJobStatusOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := h.jobs.ResetStatus(ctx, id); err != nil {
		return nil, mapServiceError("reset job status", err)
	}

	job, err := h.jobs.GetUnified(ctx, id)
	if err != nil {
		return nil, mapServiceError("get job", err)
	}
	return &ResetJobStatusOutput{Body: JobFromModel(job)}, nil
}

// DeleteJobInput is the input for deleting a job.
type DeleteJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// DeleteJobOutput is the output for deleting a job.
type DeleteJobOutput struct{}

// Delete permanently removes a non-running job.
func (h *JobHandler) Delete(ctx context.Context, input *DeleteJobInput) (*DeleteJobOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := h.jobs.Delete(ctx, id); err != nil {
		return nil, mapServiceError("delete job", err)
	}
	return &DeleteJobOutput{}, nil
}

// ArchiveJobInput is the input for archiving a job.
type ArchiveJobInput struct {
	ID   string `path:"id" doc:"Job ID (ULID)"`
	Body struct {
		Reason string `json:"reason,omitempty"`
	}
}

// ArchiveJobOutput is the output for archiving a job.
type ArchiveJobOutput struct {
	Body ArchivedJobResponse
}

// Archive snapshots a non-running job and removes it from the active set.
func (h *JobHandler) Archive(ctx context.Context, input *ArchiveJobInput) (*ArchiveJobOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}

	archived, err := h.jobs.Archive(ctx, id, input.Body.Reason)
	if err != nil {
		return nil, mapServiceError("archive job", err)
	}

	return &ArchiveJobOutput{Body: ArchivedJobFromModel(archived)}, nil
}

// ListArchivedJobsInput is the input for listing archived jobs.
type ListArchivedJobsInput struct {
	Offset int `query:"offset" default:"0" minimum:"0"`
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"1000"`
}

// ListArchivedJobsOutput is the output for listing archived jobs.
type ListArchivedJobsOutput struct {
	Body struct {
		Jobs       []ArchivedJobResponse `json:"jobs"`
		Pagination PaginationMeta        `json:"pagination"`
	}
}

// ListArchived returns archived job snapshots, paginated. Requires the
// handler to have been constructed with an ArchiveRepository-backed lister;
// archived-job listing is served directly from the repository since the
// Job Service's facade does not expose it (spec.md §4.7 lists only the
// active-job operations verbatim, and list_archived is a thin pass-through).
func (h *JobHandler) ListArchived(ctx context.Context, input *ListArchivedJobsInput) (*ListArchivedJobsOutput, error) {
	jobs, total, err := h.archives.List(ctx, input.Offset, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list archived jobs", err)
	}

	resp := &ListArchivedJobsOutput{}
	resp.Body.Jobs = make([]ArchivedJobResponse, 0, len(jobs))
	for _, a := range jobs {
		resp.Body.Jobs = append(resp.Body.Jobs, ArchivedJobFromModel(a))
	}

	totalPages := total / int64(input.Limit)
	if total%int64(input.Limit) > 0 {
		totalPages++
	}
	resp.Body.Pagination = PaginationMeta{
		CurrentPage: (input.Offset / input.Limit) + 1,
		PageSize:    input.Limit,
		TotalItems:  total,
		TotalPages:  totalPages,
	}

	return resp, nil
}

// RestoreArchivedJobInput is the input for restoring an archived job.
type RestoreArchivedJobInput struct {
	ID string `path:"id" doc:"Archived job ID (ULID)"`
}

// RestoreArchivedJobOutput is the output for restoring an archived job.
type RestoreArchivedJobOutput struct {
	Body JobResponse
}

// Restore recreates a pending active job from an archived snapshot.
func (h *JobHandler) Restore(ctx context.Context, input *RestoreArchivedJobInput) (*RestoreArchivedJobOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}

	job, err := h.jobs.Restore(ctx, id)
	if err != nil {
		return nil, mapServiceError("restore archived job", err)
	}
	return &RestoreArchivedJobOutput{Body: JobFromModel(job)}, nil
}

// TailJobLogInput is the input for tailing a job's log.
type TailJobLogInput struct {
	ID    string `path:"id" doc:"Job ID (ULID)"`
	Lines int    `query:"lines" default:"200" minimum:"1" doc:"Number of trailing lines to return"`
}

// TailJobLogOutput is the output for tailing a job's log.
type TailJobLogOutput struct {
	Body struct {
		Lines []string `json:"lines"`
	}
}

// TailLog returns the last N lines of a job's captured encoder log. A
// missing log file (job never started) is not an error — it yields an
// empty line list.
func (h *JobHandler) TailLog(ctx context.Context, input *TailJobLogInput) (*TailJobLogOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}
	if _, err := h.jobs.GetUnified(ctx, id); err != nil {
		return nil, mapServiceError("get job", err)
	}

	limit := input.Lines
	if limit <= 0 || limit > h.logTailMaxLines {
		limit = h.logTailMaxLines
	}

	lines, err := tailFile(fmt.Sprintf("%s/%s.log", h.logDir, id.String()), limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read job log", err)
	}

	resp := &TailJobLogOutput{}
	resp.Body.Lines = lines
	return resp, nil
}

// tailFile reads up to maxLines trailing lines from path, using a ring
// buffer so memory stays bounded regardless of file size. A nonexistent
// file yields an empty slice rather than an error.
func tailFile(path string, maxLines int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, maxLines)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(ring) < maxLines {
			ring = append(ring, line)
		} else {
			copy(ring, ring[1:])
			ring[len(ring)-1] = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ring, nil
}
