package channels

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
	"github.com/mgastelum/tubedigest-backend/pkg/pagination"
)

// Repository exposes persistence helpers for channels and subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByYouTubeID(ctx context.Context, youtubeChannelID string) (*models.Channel, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	Create(ctx context.Context, channel *models.Channel) error
	FindSubscription(ctx context.Context, userID, channelID uuid.UUID) (*models.UserChannel, error)
	CreateSubscription(ctx context.Context, sub *models.UserChannel) error
	SetSubscriptionActive(ctx context.Context, userID, channelID uuid.UUID, active bool, now time.Time) (bool, error)
	CountActiveByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	ListActiveByUser(ctx context.Context, params listSubscriptionsParams) ([]SubscriptionRow, *pagination.Cursor, error)
	ListMonitored(ctx context.Context, limit int) ([]models.Channel, error)
	ActiveSubscriberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error)
	RecordCheckSuccess(ctx context.Context, channelID uuid.UUID, lastVideoID *string, now time.Time) error
	RecordCheckFailure(ctx context.Context, channelID uuid.UUID, pauseAfter int, now time.Time) (paused bool, err error)
	ResumePaused(ctx context.Context, channelID uuid.UUID) error
	ResumePausedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a channels repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listSubscriptionsParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

// SubscriptionRow joins a user subscription with its channel details.
type SubscriptionRow struct {
	Subscription models.UserChannel
	Channel      models.Channel
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByYouTubeID(ctx context.Context, youtubeChannelID string) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.WithContext(ctx).Where("youtube_channel_id = ?", youtubeChannelID).First(&channel).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&channel).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

func (r *repositoryImpl) Create(ctx context.Context, channel *models.Channel) error {
	return r.db.WithContext(ctx).Create(channel).Error
}

func (r *repositoryImpl) FindSubscription(ctx context.Context, userID, channelID uuid.UUID) (*models.UserChannel, error) {
	var sub models.UserChannel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repositoryImpl) CreateSubscription(ctx context.Context, sub *models.UserChannel) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repositoryImpl) SetSubscriptionActive(ctx context.Context, userID, channelID uuid.UUID, active bool, now time.Time) (bool, error) {
	updates := map[string]any{
		"is_active":  active,
		"updated_at": now,
	}
	if active {
		updates["subscribed_at"] = now
	}
	result := r.db.WithContext(ctx).
		Model(&models.UserChannel{}).
		Where("user_id = ? AND channel_id = ? AND is_active = ?", userID, channelID, !active).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserChannel{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&count).Error
	return count, err
}

func (r *repositoryImpl) ListActiveByUser(ctx context.Context, params listSubscriptionsParams) ([]SubscriptionRow, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.UserChannel{}).
		Where("user_id = ? AND is_active = ?", params.UserID, true)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var subs []models.UserChannel
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&subs).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(subs) > normalized {
		overflow := subs[normalized]
		subs = subs[:normalized]
		next = &pagination.Cursor{CreatedAt: overflow.CreatedAt, ID: overflow.ID}
	}
	if len(subs) == 0 {
		return nil, next, nil
	}

	channelIDs := make([]uuid.UUID, 0, len(subs))
	for _, sub := range subs {
		channelIDs = append(channelIDs, sub.ChannelID)
	}
	var chans []models.Channel
	if err := r.db.WithContext(ctx).Where("id IN ?", channelIDs).Find(&chans).Error; err != nil {
		return nil, nil, err
	}
	byID := make(map[uuid.UUID]models.Channel, len(chans))
	for _, ch := range chans {
		byID[ch.ID] = ch
	}

	rows := make([]SubscriptionRow, 0, len(subs))
	for _, sub := range subs {
		rows = append(rows, SubscriptionRow{Subscription: sub, Channel: byID[sub.ChannelID]})
	}
	return rows, next, nil
}

// ListMonitored returns unpaused channels with at least one active
// subscriber, least recently checked first.
func (r *repositoryImpl) ListMonitored(ctx context.Context, limit int) ([]models.Channel, error) {
	var chans []models.Channel
	err := r.db.WithContext(ctx).
		Where("paused_at IS NULL").
		Where("id IN (?)", r.db.Model(&models.UserChannel{}).
			Select("channel_id").
			Where("is_active = ?", true)).
		Order("last_check_at ASC NULLS FIRST").
		Limit(limit).
		Find(&chans).Error
	return chans, err
}

func (r *repositoryImpl) ActiveSubscriberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.UserChannel{}).
		Where("channel_id = ? AND is_active = ?", channelID, true).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *repositoryImpl) RecordCheckSuccess(ctx context.Context, channelID uuid.UUID, lastVideoID *string, now time.Time) error {
	updates := map[string]any{
		"last_check_at":        now,
		"consecutive_failures": 0,
		"updated_at":           now,
	}
	if lastVideoID != nil {
		updates["last_video_id"] = *lastVideoID
	}
	return r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", channelID).
		Updates(updates).Error
}

// RecordCheckFailure bumps the failure counter and pauses the channel
// once the counter reaches pauseAfter. last_check_at is left untouched so
// the next run re-lists the same window.
func (r *repositoryImpl) RecordCheckFailure(ctx context.Context, channelID uuid.UUID, pauseAfter int, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", channelID).
		Updates(map[string]any{
			"consecutive_failures": gorm.Expr("consecutive_failures + 1"),
			"updated_at":           now,
		})
	if result.Error != nil {
		return false, result.Error
	}

	pause := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ? AND consecutive_failures >= ? AND paused_at IS NULL", channelID, pauseAfter).
		UpdateColumn("paused_at", now)
	if pause.Error != nil {
		return false, pause.Error
	}
	return pause.RowsAffected > 0, nil
}

func (r *repositoryImpl) ResumePaused(ctx context.Context, channelID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", channelID).
		Updates(map[string]any{
			"paused_at":            nil,
			"consecutive_failures": 0,
		}).Error
}

// ResumePausedBefore reopens channels that have sat paused since before
// cutoff so the next discovery run retries them.
func (r *repositoryImpl) ResumePausedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("paused_at IS NOT NULL AND paused_at < ?", cutoff).
		Updates(map[string]any{
			"paused_at":            nil,
			"consecutive_failures": 0,
		})
	return result.RowsAffected, result.Error
}
