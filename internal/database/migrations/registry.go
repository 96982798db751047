// Package migrations provides database migration management for streamforge.
package migrations

import (
	"github.com/streamforge/streamforge/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002SystemEncodingProfiles(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.UnifiedConfig{},
				&models.Job{},
				&models.ArchivedJob{},
				&models.StatisticsSample{},
				&models.EncodingProfile{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"statistics_samples",
				"archived_jobs",
				"jobs",
				"unified_configs",
				"encoding_profiles",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// migration002SystemEncodingProfiles inserts the built-in quality-preset
// profiles (low/medium/high/ultra) every install ships with. They are
// IsSystem so jobs can reference a stable name without depending on a user
// having created one first.
func migration002SystemEncodingProfiles() Migration {
	return Migration{
		Version:     "002",
		Description: "Insert default system encoding profiles",
		Up: func(tx *gorm.DB) error {
			return createDefaultEncodingProfiles(tx)
		},
		Down: func(tx *gorm.DB) error {
			return tx.Where("is_system = ?", true).Delete(&models.EncodingProfile{}).Error
		},
	}
}

// createDefaultEncodingProfiles creates the default system encoding profiles.
func createDefaultEncodingProfiles(tx *gorm.DB) error {
	trueVal := true
	profiles := []models.EncodingProfile{
		{
			Name:             "Low Bandwidth",
			Description:      "Bandwidth-optimized encoding for mobile devices and constrained links.",
			TargetVideoCodec: models.VideoCodecH264,
			TargetAudioCodec: models.AudioCodecAAC,
			QualityPreset:    models.QualityPresetLow,
			HWAccel:          models.HWAccelAuto,
			IsDefault:        false,
			IsSystem:         true,
			Enabled:          &trueVal,
		},
		{
			Name:             "Balanced",
			Description:      "Balanced quality and bandwidth for general streaming.",
			TargetVideoCodec: models.VideoCodecH264,
			TargetAudioCodec: models.AudioCodecAAC,
			QualityPreset:    models.QualityPresetMedium,
			HWAccel:          models.HWAccelAuto,
			IsDefault:        true,
			IsSystem:         true,
			Enabled:          &trueVal,
		},
		{
			Name:             "High Quality",
			Description:      "High quality streaming for modern devices.",
			TargetVideoCodec: models.VideoCodecH265,
			TargetAudioCodec: models.AudioCodecAAC,
			QualityPreset:    models.QualityPresetHigh,
			HWAccel:          models.HWAccelAuto,
			IsDefault:        false,
			IsSystem:         true,
			Enabled:          &trueVal,
		},
		{
			Name:             "Archival",
			Description:      "Maximum quality, no bitrate cap, for archival encodes.",
			TargetVideoCodec: models.VideoCodecH265,
			TargetAudioCodec: models.AudioCodecAAC,
			QualityPreset:    models.QualityPresetUltra,
			HWAccel:          models.HWAccelNone,
			IsDefault:        false,
			IsSystem:         true,
			Enabled:          &trueVal,
		},
	}

	for _, profile := range profiles {
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
	}
	return nil
}
