package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
	"github.com/mgastelum/tubedigest-backend/pkg/enums"
	"github.com/mgastelum/tubedigest-backend/pkg/pagination"
)

const (
	defaultPendingLimit = 20
	maxPendingLimit     = 50
)

var deliverableStatuses = []enums.SubscriptionStatus{
	enums.SubscriptionActive,
	enums.SubscriptionTrialing,
}

// PendingNotification is one sweep candidate: an unsent row joined to a
// deliverable user and a video with a summary.
type PendingNotification struct {
	NotificationID uuid.UUID `gorm:"column:notification_id"`
	UserID         uuid.UUID `gorm:"column:user_id"`
	ToNumber       string    `gorm:"column:to_number"`
	VideoTitle     string    `gorm:"column:video_title"`
	VideoURL       string    `gorm:"column:video_url"`
	ChannelTitle   string    `gorm:"column:channel_title"`
	Summary        string    `gorm:"column:summary"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// UserNotification pairs a notification row with its video for history views.
type UserNotification struct {
	Notification models.VideoNotification
	Video        models.ProcessedVideo
}

type markResult struct {
	Updated bool
	Found   bool
}

type listByUserParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

// Repository exposes persistence helpers for notification rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListPending(ctx context.Context, limit int) ([]PendingNotification, error)
	MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkSentOwned(ctx context.Context, userID, id uuid.UUID, now time.Time) (markResult, error)
	DeleteOwned(ctx context.Context, userID, id uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, params listByUserParams) ([]UserNotification, *pagination.Cursor, error)
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func normalizePendingLimit(limit int) int {
	if limit <= 0 {
		return defaultPendingLimit
	}
	if limit > maxPendingLimit {
		return maxPendingLimit
	}
	return limit
}

func (r *repositoryImpl) ListPending(ctx context.Context, limit int) ([]PendingNotification, error) {
	var pending []PendingNotification
	err := r.db.WithContext(ctx).
		Table("video_notifications AS n").
		Select(`n.id AS notification_id,
			n.user_id AS user_id,
			u.whatsapp_number AS to_number,
			v.title AS video_title,
			v.url AS video_url,
			c.title AS channel_title,
			v.summary AS summary,
			n.created_at AS created_at`).
		Joins("JOIN users u ON u.id = n.user_id").
		Joins("JOIN processed_videos v ON v.id = n.video_id").
		Joins("JOIN channels c ON c.id = v.channel_id").
		Where("n.is_sent = ?", false).
		Where("u.whatsapp_validated = ?", true).
		Where("u.whatsapp_number IS NOT NULL").
		Where("u.subscription_status IN ?", deliverableStatuses).
		Where("v.summary IS NOT NULL").
		Order("n.created_at ASC").
		Limit(normalizePendingLimit(limit)).
		Scan(&pending).Error
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *repositoryImpl) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.VideoNotification{}).
		Where("id = ? AND is_sent = ?", id, false).
		UpdateColumns(map[string]any{"is_sent": true, "sent_at": now}).Error
}

func (r *repositoryImpl) MarkSentOwned(ctx context.Context, userID, id uuid.UUID, now time.Time) (markResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.VideoNotification{}).
		Where("id = ? AND user_id = ? AND is_sent = ?", id, userID, false).
		UpdateColumns(map[string]any{"is_sent": true, "sent_at": now})
	if result.Error != nil {
		return markResult{}, result.Error
	}

	mark := markResult{Updated: result.RowsAffected > 0}
	if mark.Updated {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.VideoNotification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Count(&count).Error; err != nil {
		return markResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) DeleteOwned(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.VideoNotification{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) ListByUser(ctx context.Context, params listByUserParams) ([]UserNotification, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.VideoNotification{}).
		Where("user_id = ?", params.UserID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.VideoNotification
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(rows) > normalized {
		boundary := rows[normalized]
		rows = rows[:normalized]
		next = &pagination.Cursor{CreatedAt: boundary.CreatedAt, ID: boundary.ID}
	}
	if len(rows) == 0 {
		return nil, next, nil
	}

	videoIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		videoIDs = append(videoIDs, row.VideoID)
	}
	var videos []models.ProcessedVideo
	if err := r.db.WithContext(ctx).Where("id IN ?", videoIDs).Find(&videos).Error; err != nil {
		return nil, nil, err
	}
	byID := make(map[uuid.UUID]models.ProcessedVideo, len(videos))
	for _, video := range videos {
		byID[video.ID] = video
	}

	out := make([]UserNotification, 0, len(rows))
	for _, row := range rows {
		out = append(out, UserNotification{Notification: row, Video: byID[row.VideoID]})
	}
	return out, next, nil
}

func (r *repositoryImpl) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("is_sent = ? AND sent_at < ?", true, cutoff).
		Delete(&models.VideoNotification{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
