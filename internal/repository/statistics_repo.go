package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/streamforge/streamforge/internal/models"
	"gorm.io/gorm"
)

// statisticsRepo implements StatisticsRepository using GORM.
type statisticsRepo struct {
	db *gorm.DB
}

// NewStatisticsRepository creates a new StatisticsRepository.
func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepo{db: db}
}

// CreateBatch inserts up to K samples in one statement (spec §4.5).
func (r *statisticsRepo) CreateBatch(ctx context.Context, samples []*models.StatisticsSample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(samples).Error; err != nil {
		return fmt.Errorf("creating statistics batch: %w", err)
	}
	return nil
}

// GetByJobID retrieves samples for a job with timestamp > since, ascending.
func (r *statisticsRepo) GetByJobID(ctx context.Context, jobID models.ULID, since int64, limit int) ([]*models.StatisticsSample, error) {
	var samples []*models.StatisticsSample
	query := r.db.WithContext(ctx).
		Where("job_id = ? AND timestamp > ?", jobID, since).
		Order("timestamp ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("getting statistics by job ID: %w", err)
	}
	return samples, nil
}

// GetLatest retrieves the most recent sample for a job, or nil if none exist.
func (r *statisticsRepo) GetLatest(ctx context.Context, jobID models.ULID) (*models.StatisticsSample, error) {
	var sample models.StatisticsSample
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("timestamp DESC").
		First(&sample).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest statistics sample: %w", err)
	}
	return &sample, nil
}

// DeleteOlderThan prunes samples created before the given time, used by the
// scheduled retention-pruning task (spec §3 "bounded by age").
func (r *statisticsRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.StatisticsSample{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old statistics: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteByJobID removes all samples for a job.
func (r *statisticsRepo) DeleteByJobID(ctx context.Context, jobID models.ULID) (int64, error) {
	result := r.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&models.StatisticsSample{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting statistics by job ID: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure statisticsRepo implements StatisticsRepository at compile time.
var _ StatisticsRepository = (*statisticsRepo)(nil)
