package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_TableName(t *testing.T) {
	job := Job{}
	assert.Equal(t, "jobs", job.TableName())
}

func TestJobStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		want   bool
	}{
		{"pending", JobStatusPending, false},
		{"running", JobStatusRunning, false},
		{"stopped", JobStatusStopped, true},
		{"error", JobStatusError, true},
		{"completed", JobStatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestJob_StatusChecks(t *testing.T) {
	running := &Job{Status: JobStatusRunning}
	assert.True(t, running.IsRunning())
	assert.False(t, running.CanStart())
	assert.False(t, running.CanMutateConfig())

	pending := &Job{Status: JobStatusPending}
	assert.False(t, pending.IsRunning())
	assert.True(t, pending.CanStart())
	assert.True(t, pending.CanMutateConfig())
}

func TestJob_MarkRunning(t *testing.T) {
	job := &Job{Status: JobStatusPending, ErrorMessage: "stale error"}

	job.MarkRunning(4242, "ffmpeg -i in.mp4 out.mp4")

	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.PID)
	assert.Equal(t, 4242, *job.PID)
	assert.Equal(t, "ffmpeg -i in.mp4 out.mp4", job.Command)
	assert.NotNil(t, job.StartedAt)
	assert.Empty(t, job.ErrorMessage)
}

func TestJob_MarkStopped(t *testing.T) {
	pid := 123
	job := &Job{Status: JobStatusRunning, PID: &pid}

	job.MarkStopped()

	assert.Equal(t, JobStatusStopped, job.Status)
	assert.Nil(t, job.PID)
	assert.NotNil(t, job.StoppedAt)
}

func TestJob_MarkCompleted(t *testing.T) {
	pid := 123
	job := &Job{Status: JobStatusRunning, PID: &pid}

	job.MarkCompleted()

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Nil(t, job.PID)
	assert.NotNil(t, job.StoppedAt)
}

func TestJob_MarkError(t *testing.T) {
	pid := 123
	job := &Job{Status: JobStatusRunning, PID: &pid}

	job.MarkError("encoder exited 1")

	assert.Equal(t, JobStatusError, job.Status)
	assert.Nil(t, job.PID)
	assert.NotNil(t, job.StoppedAt)
	assert.Equal(t, "encoder exited 1", job.ErrorMessage)
}

func TestJob_ResetToPending(t *testing.T) {
	pid := 123
	job := &Job{Status: JobStatusError, PID: &pid, ErrorMessage: "boom"}

	job.ResetToPending()

	assert.Equal(t, JobStatusPending, job.Status)
	assert.Nil(t, job.PID)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.StoppedAt)
	assert.Empty(t, job.ErrorMessage)
}

func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     *Job
		wantErr error
	}{
		{
			name:    "valid job",
			job:     &Job{Name: "camera-1", Priority: 5},
			wantErr: nil,
		},
		{
			name:    "missing name",
			job:     &Job{Priority: 5},
			wantErr: ErrJobNameRequired,
		},
		{
			name:    "priority too low",
			job:     &Job{Name: "camera-1", Priority: 0},
			wantErr: ErrJobPriorityRange,
		},
		{
			name:    "priority too high",
			job:     &Job{Name: "camera-1", Priority: 11},
			wantErr: ErrJobPriorityRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := &Job{Name: "camera-1", Priority: 5, Status: JobStatusPending}

	require.True(t, job.CanStart())
	job.MarkRunning(999, "ffmpeg ...")
	require.True(t, job.IsRunning())
	require.False(t, job.CanMutateConfig())

	job.MarkError("crashed")
	require.Equal(t, JobStatusError, job.Status)
	require.True(t, job.Status.IsTerminal())

	job.ResetToPending()
	require.Equal(t, JobStatusPending, job.Status)
	require.True(t, job.CanStart())
}
