package videos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
)

func setupVideosTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	videos := `
CREATE TABLE IF NOT EXISTS processed_videos (
  id TEXT PRIMARY KEY,
  channel_id TEXT NOT NULL,
  youtube_video_id TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  url TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  transcript TEXT,
  summary TEXT,
  duration_seconds INTEGER NOT NULL DEFAULT 0,
  published_at DATETIME NOT NULL,
  processed_at DATETIME NOT NULL
);`
	notifications := `
CREATE TABLE IF NOT EXISTS video_notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  video_id TEXT NOT NULL,
  is_sent INTEGER NOT NULL DEFAULT 0,
  sent_at DATETIME,
  created_at DATETIME,
  UNIQUE (user_id, video_id)
);`
	require.NoError(t, db.Exec(videos).Error)
	require.NoError(t, db.Exec(notifications).Error)
	return db
}

func seedVideo(t *testing.T, db *gorm.DB, youtubeVideoID string) models.ProcessedVideo {
	t.Helper()
	video := models.ProcessedVideo{
		ID:             uuid.New(),
		ChannelID:      uuid.New(),
		YouTubeVideoID: youtubeVideoID,
		Title:          "Video " + youtubeVideoID,
		URL:            "https://www.youtube.com/watch?v=" + youtubeVideoID,
		PublishedAt:    time.Now().UTC().Add(-time.Hour),
		ProcessedAt:    time.Now().UTC(),
	}
	require.NoError(t, db.Create(&video).Error)
	return video
}

func TestRepoExistsByYouTubeID(t *testing.T) {
	db := setupVideosTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seedVideo(t, db, "abc123")

	exists, err := repo.ExistsByYouTubeID(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByYouTubeID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRepoCreateVideoUniqueLedger(t *testing.T) {
	db := setupVideosTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := seedVideo(t, db, "dup1")

	duplicate := models.ProcessedVideo{
		ID:             uuid.New(),
		ChannelID:      first.ChannelID,
		YouTubeVideoID: "dup1",
		Title:          "Duplicate",
		URL:            first.URL,
		PublishedAt:    first.PublishedAt,
		ProcessedAt:    time.Now().UTC(),
	}
	err := repo.CreateVideo(ctx, &duplicate)
	assert.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.ProcessedVideo{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepoCreateNotificationUniquePerUserVideo(t *testing.T) {
	db := setupVideosTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	video := seedVideo(t, db, "fanout1")
	userID := uuid.New()

	require.NoError(t, repo.CreateNotification(ctx, &models.VideoNotification{
		ID:      uuid.New(),
		UserID:  userID,
		VideoID: video.ID,
	}))

	err := repo.CreateNotification(ctx, &models.VideoNotification{
		ID:      uuid.New(),
		UserID:  userID,
		VideoID: video.ID,
	})
	assert.Error(t, err)

	require.NoError(t, repo.CreateNotification(ctx, &models.VideoNotification{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		VideoID: video.ID,
	}))
}

func TestRepoFindByID(t *testing.T) {
	db := setupVideosTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	video := seedVideo(t, db, "find1")

	found, err := repo.FindByID(ctx, video.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "find1", found.YouTubeVideoID)

	missing, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
