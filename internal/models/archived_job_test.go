package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchivedJob_TableName(t *testing.T) {
	a := ArchivedJob{}
	assert.Equal(t, "archived_jobs", a.TableName())
}

func TestArchivedJob_BeforeCreate_StampsArchivedAt(t *testing.T) {
	a := &ArchivedJob{
		OriginalJobID:  NewULID(),
		Name:           "camera-1",
		Priority:       5,
		Status:         JobStatusStopped,
		ConfigSnapshot: `{"input_file":"rtsp://cam/1"}`,
	}

	require.NoError(t, a.BeforeCreate(nil))

	assert.False(t, a.ArchivedAt.IsZero())
	assert.False(t, a.ID.IsZero())
}

func TestArchivedJob_BeforeCreate_PreservesExplicitArchivedAt(t *testing.T) {
	explicit := Now()
	a := &ArchivedJob{ArchivedAt: explicit}

	require.NoError(t, a.BeforeCreate(nil))

	assert.Equal(t, explicit, a.ArchivedAt)
}
