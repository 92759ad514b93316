package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.True(t, IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "user_channels_user_id_channel_id_key" (SQLSTATE 23505)`)))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: processed_videos.youtube_video_id")))
}
