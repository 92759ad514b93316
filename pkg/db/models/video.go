package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedVideo is the global ledger of every video ever summarized.
// Rows are inserted once per youtube_video_id and never mutated; a null
// summary records a summarization failure, not a pending state.
type ProcessedVideo struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ChannelID       uuid.UUID `gorm:"column:channel_id;type:uuid;not null;index"`
	YouTubeVideoID  string    `gorm:"column:youtube_video_id;not null;uniqueIndex"`
	Title           string    `gorm:"type:text;not null"`
	URL             string    `gorm:"type:text;not null"`
	Description     string    `gorm:"type:text;not null;default:''"`
	Transcript      *string   `gorm:"type:text"`
	Summary         *string   `gorm:"type:text"`
	DurationSeconds int       `gorm:"column:duration_seconds;not null;default:0"`
	PublishedAt     time.Time `gorm:"column:published_at;not null"`
	ProcessedAt     time.Time `gorm:"column:processed_at;not null"`
}

// VideoNotification is the per-(user, video) fan-out record. It exists
// only when the user had quota at fan-out time.
type VideoNotification struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index;uniqueIndex:idx_user_video"`
	VideoID   uuid.UUID  `gorm:"column:video_id;type:uuid;not null;index;uniqueIndex:idx_user_video"`
	IsSent    bool       `gorm:"column:is_sent;not null;default:false"`
	SentAt    *time.Time `gorm:"column:sent_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
