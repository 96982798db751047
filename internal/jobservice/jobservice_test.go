package jobservice

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/streamforge/streamforge/internal/compiler"
	"github.com/streamforge/streamforge/internal/models"
	"github.com/streamforge/streamforge/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Job{}, &models.UnifiedConfig{}, &models.ArchivedJob{}))
	return db
}

// fakeSupervisor is a test double standing in for *supervisor.Supervisor.
type fakeSupervisor struct {
	mu       sync.Mutex
	running  map[models.ULID]bool
	startErr error
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{running: make(map[models.ULID]bool)}
}

func (f *fakeSupervisor) Start(_ context.Context, jobID models.ULID) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[jobID] = true
	return nil
}

func (f *fakeSupervisor) Stop(_ context.Context, jobID models.ULID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, jobID)
	return nil
}

func (f *fakeSupervisor) ForceKill(_ context.Context, jobID models.ULID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, jobID)
	return 0, nil
}

func (f *fakeSupervisor) IsRunning(jobID models.ULID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[jobID]
}

func newTestService(t *testing.T) (*Service, *fakeSupervisor) {
	t.Helper()
	db := setupTestDB(t)
	jobs := repository.NewJobRepository(db)
	archives := repository.NewArchiveRepository(db)
	sup := newFakeSupervisor()
	svc := New(jobs, archives, sup, compiler.EnvironmentContext{}, discardLogger())
	return svc, sup
}

func validConfig() *models.UnifiedConfig {
	return &models.UnifiedConfig{
		InputFile:    "rtsp://camera/1",
		VideoCodec:   "h264",
		AudioCodec:   "aac",
		OutputFormat: models.OutputFormatHLS,
		OutputDir:    "/data/hls/camera-1",
	}
}

func TestService_CreateUnified_Succeeds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	job, warnings, err := svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	require.NoError(t, err)
	assert.False(t, job.ID.IsZero())
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.NotEmpty(t, job.Command)
	assert.Contains(t, job.Command, "ffmpeg")
	assert.Empty(t, warnings)
}

func TestService_CreateUnified_RejectsEmptyName(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.CreateUnified(context.Background(), "  ", 5, validConfig())
	assert.ErrorIs(t, err, models.ErrJobNameRequired)
}

func TestService_CreateUnified_RejectsBadPriority(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.CreateUnified(context.Background(), "camera-1", 99, validConfig())
	assert.ErrorIs(t, err, models.ErrJobPriorityRange)
}

func TestService_CreateUnified_RejectsDuplicateName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	require.NoError(t, err)

	_, _, err = svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	assert.ErrorIs(t, err, models.ErrDuplicateName)
}

func TestService_CreateUnified_RejectsInvalidConfig(t *testing.T) {
	svc, _ := newTestService(t)
	bad := validConfig()
	bad.VideoCodec = ""

	_, _, err := svc.CreateUnified(context.Background(), "camera-1", 5, bad)
	require.Error(t, err)
	var verr *models.ErrValidation
	assert.ErrorAs(t, err, &verr)
}

func TestService_GetUnified_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetUnified(context.Background(), models.NewULID())
	var notFound *models.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestService_UpdateUnified_RefreshesCommand(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	job, _, err := svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	require.NoError(t, err)

	updated := validConfig()
	updated.VideoBitrate = "4000k"

	got, _, err := svc.UpdateUnified(ctx, job.ID, updated)
	require.NoError(t, err)
	assert.Contains(t, got.Command, "4000k")
}

func TestService_UpdateUnified_RejectsWhileRunning(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	job, _, err := svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	require.NoError(t, err)

	// Simulate what the real Supervisor does atomically on spawn: the Job
	// Service only ever observes "running" via the repository, never via
	// the Supervisor's own in-memory map.
	require.NoError(t, svc.jobs.TransitionToRunning(ctx, job.ID, 12345, "ffmpeg -i x"))

	_, _, err = svc.UpdateUnified(ctx, job.ID, validConfig())
	assert.ErrorIs(t, err, models.ErrJobRunning)
}

func TestService_UpdateCommand_RequiresFfmpegPrefix(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	job, _, err := svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	require.NoError(t, err)

	err = svc.UpdateCommand(ctx, job.ID, "rm -rf /")
	assert.ErrorIs(t, err, models.ErrCommandOverrideMustStartWithFFmpeg)

	err = svc.UpdateCommand(ctx, job.ID, "ffmpeg -i in.mp4 out.mp4")
	require.NoError(t, err)
}

func TestService_UpdateCommand_EmptyClearsOverride(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	job, _, err := svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	require.NoError(t, err)

	require.NoError(t, svc.UpdateCommand(ctx, job.ID, "ffmpeg -i in.mp4 out.mp4"))
	require.NoError(t, svc.UpdateCommand(ctx, job.ID, ""))

	got, err := svc.GetUnified(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CommandOverride)
}

func TestService_Start_DefersToSupervisor(t *testing.T) {
	svc, sup := newTestService(t)
	ctx := context.Background()

	job, _, err := svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	require.NoError(t, err)

	require.NoError(t, svc.Start(ctx, job.ID))
	assert.True(t, sup.IsRunning(job.ID))
}

func TestService_ResetStatus_MovesToPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	job, _, err := svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	require.NoError(t, err)

	require.NoError(t, svc.ResetStatus(ctx, job.ID))

	got, err := svc.GetUnified(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
}

func TestService_Delete_RemovesJob(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	job, _, err := svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, job.ID))

	_, err = svc.GetUnified(ctx, job.ID)
	var notFound *models.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestService_ArchiveAndRestore_RoundTrips(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	job, _, err := svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	require.NoError(t, err)

	archived, err := svc.Archive(ctx, job.ID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, job.ID, archived.OriginalJobID)
	assert.Equal(t, "no longer needed", archived.Reason)

	_, err = svc.GetUnified(ctx, job.ID)
	var notFound *models.ErrNotFound
	assert.ErrorAs(t, err, &notFound)

	restored, err := svc.Restore(ctx, archived.ID)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, restored.ID)
	assert.Equal(t, models.JobStatusPending, restored.Status)
	assert.Equal(t, "rtsp://camera/1", restored.UnifiedConfig.InputFile)
}

func TestService_List_ReturnsCreatedJobs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.CreateUnified(ctx, "camera-1", 5, validConfig())
	require.NoError(t, err)
	_, _, err = svc.CreateUnified(ctx, "camera-2", 5, validConfig())
	require.NoError(t, err)

	jobs, total, err := svc.List(ctx, repository.JobFilter{}, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, jobs, 2)
}
