package videos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
)

// Repository exposes persistence helpers for the processed-video ledger
// and the per-user notification rows the fan-out creates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ExistsByYouTubeID(ctx context.Context, youtubeVideoID string) (bool, error)
	CreateVideo(ctx context.Context, video *models.ProcessedVideo) error
	CreateNotification(ctx context.Context, notification *models.VideoNotification) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProcessedVideo, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a videos repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) ExistsByYouTubeID(ctx context.Context, youtubeVideoID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProcessedVideo{}).
		Where("youtube_video_id = ?", youtubeVideoID).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) CreateVideo(ctx context.Context, video *models.ProcessedVideo) error {
	return r.db.WithContext(ctx).Create(video).Error
}

func (r *repositoryImpl) CreateNotification(ctx context.Context, notification *models.VideoNotification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.ProcessedVideo, error) {
	var video models.ProcessedVideo
	err := r.db.WithContext(ctx).First(&video, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &video, nil
}
