package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a YouTube channel tracked once for the whole system and
// shared by every subscribing user.
type Channel struct {
	ID                  uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	YouTubeChannelID    string     `gorm:"column:youtube_channel_id;not null;uniqueIndex"`
	Title               string     `gorm:"type:text;not null"`
	URL                 string     `gorm:"type:text;not null"`
	SubscriberCount     int64      `gorm:"column:subscriber_count;not null;default:0"`
	VideoCount          int64      `gorm:"column:video_count;not null;default:0"`
	LastVideoID         *string    `gorm:"column:last_video_id"`
	LastCheckAt         *time.Time `gorm:"column:last_check_at"`
	ConsecutiveFailures int        `gorm:"column:consecutive_failures;not null;default:0"`
	PausedAt            *time.Time `gorm:"column:paused_at"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// UserChannel joins a user to a globally tracked channel. Rows are
// soft-deactivated, never deleted, so the global channel and its video
// history survive cancellation.
type UserChannel struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;index;uniqueIndex:idx_user_channel"`
	ChannelID    uuid.UUID `gorm:"column:channel_id;type:uuid;not null;index;uniqueIndex:idx_user_channel"`
	IsActive     bool      `gorm:"column:is_active;not null"`
	SubscribedAt time.Time `gorm:"column:subscribed_at;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
