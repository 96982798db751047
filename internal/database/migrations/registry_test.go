package migrations

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

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db
}

func TestAllMigrations_ReturnsExpectedCount(t *testing.T) {
	migrations := AllMigrations()
	assert.Len(t, migrations, 2)
}

func TestAllMigrations_VersionsAreUnique(t *testing.T) {
	migrations := AllMigrations()
	versions := make(map[string]bool)

	for _, m := range migrations {
		assert.False(t, versions[m.Version], "duplicate version: %s", m.Version)
		versions[m.Version] = true
	}
}

func TestAllMigrations_VersionsAreOrdered(t *testing.T) {
	migrations := AllMigrations()

	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version,
			"migrations should be in ascending version order")
	}
}

func TestMigrator_Up_AllMigrations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable("jobs"))
	assert.True(t, db.Migrator().HasTable("unified_configs"))
	assert.True(t, db.Migrator().HasTable("archived_jobs"))
	assert.True(t, db.Migrator().HasTable("statistics_samples"))
	assert.True(t, db.Migrator().HasTable("encoding_profiles"))
}

func TestMigrator_Up_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	err = migrator.Up(ctx)
	require.NoError(t, err)
}

func TestMigrator_Status(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 2)

	for _, s := range statuses {
		assert.False(t, s.Applied)
		assert.Nil(t, s.AppliedAt)
	}

	err = migrator.Up(ctx)
	require.NoError(t, err)

	statuses, err = migrator.Status(ctx)
	require.NoError(t, err)

	for _, s := range statuses {
		assert.True(t, s.Applied)
		assert.NotNil(t, s.AppliedAt)
	}
}

func TestMigrator_Down_RollsBackLastMigration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable("jobs"))
	assert.True(t, db.Migrator().HasTable("encoding_profiles"))

	var count int64
	require.NoError(t, db.Model(&models.EncodingProfile{}).Where("is_system = ?", true).Count(&count).Error)
	assert.EqualValues(t, 4, count)

	// Roll back migration 002 (system encoding profiles) - only data deleted.
	err = migrator.Down(ctx)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.EncodingProfile{}).Where("is_system = ?", true).Count(&count).Error)
	assert.Zero(t, count)
	assert.True(t, db.Migrator().HasTable("encoding_profiles"))

	// Roll back migration 001 (schema).
	err = migrator.Down(ctx)
	require.NoError(t, err)

	assert.False(t, db.Migrator().HasTable("jobs"))
	assert.False(t, db.Migrator().HasTable("unified_configs"))
	assert.False(t, db.Migrator().HasTable("encoding_profiles"))
}

func TestMigrator_Pending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	pending, err := migrator.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	err = migrator.Up(ctx)
	require.NoError(t, err)

	pending, err = migrator.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 0)
}

func TestMigrations_SeedsDefaultEncodingProfile(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	var balanced models.EncodingProfile
	err = db.Where("name = ?", "Balanced").First(&balanced).Error
	require.NoError(t, err)
	assert.True(t, balanced.IsSystem)
	assert.True(t, balanced.IsDefault)
	assert.Equal(t, models.QualityPresetMedium, balanced.QualityPreset)
}

func TestMigrations_CanInsertJobWithConfig(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	config := &models.UnifiedConfig{
		InputFile:    "rtsp://camera/1",
		VideoCodec:   "h264",
		AudioCodec:   "aac",
		OutputFormat: models.OutputFormatHLS,
		OutputDir:    "/data/hls/camera-1",
	}
	require.NoError(t, db.Create(config).Error)

	job := &models.Job{
		Name:            "camera-1",
		Priority:        5,
		Status:          models.JobStatusPending,
		UnifiedConfigID: config.ID,
	}
	require.NoError(t, db.Create(job).Error)
	assert.False(t, job.ID.IsZero())

	var loaded models.Job
	require.NoError(t, db.Preload("UnifiedConfig").First(&loaded, "id = ?", job.ID).Error)
	assert.Equal(t, "rtsp://camera/1", loaded.UnifiedConfig.InputFile)
}
