package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/streamforge/streamforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupArchiveTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.ArchivedJob{}))
	return db
}

func TestArchiveRepo_CreateAndGet(t *testing.T) {
	db := setupArchiveTestDB(t)
	repo := NewArchiveRepository(db)
	ctx := context.Background()

	archived := &models.ArchivedJob{
		OriginalJobID:  models.NewULID(),
		Name:           "camera-1",
		Priority:       5,
		Status:         models.JobStatusStopped,
		ConfigSnapshot: `{"input_file":"rtsp://cam/1"}`,
		Reason:         "replaced by camera-1-v2",
	}
	require.NoError(t, repo.Create(ctx, archived))
	assert.False(t, archived.ID.IsZero())

	found, err := repo.GetByID(ctx, archived.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "camera-1", found.Name)
	assert.Equal(t, "replaced by camera-1-v2", found.Reason)
}

func TestArchiveRepo_GetByID_NotFound(t *testing.T) {
	db := setupArchiveTestDB(t)
	repo := NewArchiveRepository(db)

	found, err := repo.GetByID(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestArchiveRepo_List(t *testing.T) {
	db := setupArchiveTestDB(t)
	repo := NewArchiveRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.ArchivedJob{
			OriginalJobID:  models.NewULID(),
			Name:           "camera",
			Priority:       5,
			Status:         models.JobStatusStopped,
			ConfigSnapshot: "{}",
		}))
	}

	archived, total, err := repo.List(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, archived, 2)
}

func TestArchiveRepo_Delete(t *testing.T) {
	db := setupArchiveTestDB(t)
	repo := NewArchiveRepository(db)
	ctx := context.Background()

	archived := &models.ArchivedJob{
		OriginalJobID:  models.NewULID(),
		Name:           "camera-1",
		Priority:       5,
		Status:         models.JobStatusStopped,
		ConfigSnapshot: "{}",
	}
	require.NoError(t, repo.Create(ctx, archived))
	require.NoError(t, repo.Delete(ctx, archived.ID))

	found, err := repo.GetByID(ctx, archived.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}
