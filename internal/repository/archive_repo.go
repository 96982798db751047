package repository

import (
	"context"
	"fmt"

	"github.com/streamforge/streamforge/internal/models"
	"gorm.io/gorm"
)

// archiveRepo implements ArchiveRepository using GORM.
type archiveRepo struct {
	db *gorm.DB
}

// NewArchiveRepository creates a new ArchiveRepository.
func NewArchiveRepository(db *gorm.DB) ArchiveRepository {
	return &archiveRepo{db: db}
}

// Create persists an archived job snapshot.
func (r *archiveRepo) Create(ctx context.Context, archived *models.ArchivedJob) error {
	if err := r.db.WithContext(ctx).Create(archived).Error; err != nil {
		return fmt.Errorf("creating archived job: %w", err)
	}
	return nil
}

// GetByID retrieves an archived job by its own id.
func (r *archiveRepo) GetByID(ctx context.Context, id models.ULID) (*models.ArchivedJob, error) {
	var archived models.ArchivedJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&archived).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting archived job: %w", err)
	}
	return &archived, nil
}

// List retrieves archived jobs newest-archived-first, paginated.
func (r *archiveRepo) List(ctx context.Context, offset, limit int) ([]*models.ArchivedJob, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.ArchivedJob{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting archived jobs: %w", err)
	}

	var archived []*models.ArchivedJob
	err := r.db.WithContext(ctx).
		Order("archived_at DESC").
		Offset(offset).Limit(limit).
		Find(&archived).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing archived jobs: %w", err)
	}
	return archived, total, nil
}

// Delete permanently removes an archived snapshot.
func (r *archiveRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ArchivedJob{}).Error; err != nil {
		return fmt.Errorf("deleting archived job: %w", err)
	}
	return nil
}

// Ensure archiveRepo implements ArchiveRepository at compile time.
var _ ArchiveRepository = (*archiveRepo)(nil)
