package youtube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/mgastelum/tubedigest-backend/pkg/config"
)

// ErrChannelNotFound signals that no channel matched the provided reference.
var ErrChannelNotFound = fmt.Errorf("youtube channel not found")

// Channel is the subset of channel metadata the registry persists.
type Channel struct {
	ID              string
	Title           string
	URL             string
	SubscriberCount int64
	VideoCount      int64
	UploadsPlaylist string
}

// Video is the subset of video metadata the pipeline persists.
type Video struct {
	ID              string
	Title           string
	Description     string
	URL             string
	DurationSeconds int
	PublishedAt     time.Time
}

// Client wraps the YouTube Data API with API key auth.
type Client struct {
	service *youtube.Service
}

// NewClient builds a YouTube Data API client from the configured API key.
func NewClient(ctx context.Context, cfg config.YouTubeConfig) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("youtube api key is required")
	}

	service, err := youtube.NewService(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("creating youtube service: %w", err)
	}
	return &Client{service: service}, nil
}

// ResolveChannel resolves a user-provided reference (channel ID, @handle,
// channel URL, or plain name) into channel metadata. Lookup order is
// ID, handle, then a search fallback.
func (c *Client) ResolveChannel(ctx context.Context, ref string) (*Channel, error) {
	ref = normalizeRef(ref)
	if ref == "" {
		return nil, fmt.Errorf("channel reference is required")
	}

	if strings.HasPrefix(ref, "UC") && len(ref) == 24 {
		if ch, err := c.channelByID(ctx, ref); err != nil {
			return nil, err
		} else if ch != nil {
			return ch, nil
		}
	}

	if handle := asHandle(ref); handle != "" {
		call := c.service.Channels.List([]string{"snippet", "statistics", "contentDetails"}).
			ForHandle(handle).
			Context(ctx)
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("looking up channel handle %q: %w", handle, err)
		}
		if len(resp.Items) > 0 {
			return fromAPIChannel(resp.Items[0]), nil
		}
	}

	// Search fallback for plain names.
	searchCall := c.service.Search.List([]string{"snippet"}).
		Q(ref).
		Type("channel").
		MaxResults(1).
		Context(ctx)
	searchResp, err := searchCall.Do()
	if err != nil {
		return nil, fmt.Errorf("searching for channel %q: %w", ref, err)
	}
	if len(searchResp.Items) == 0 || searchResp.Items[0].Snippet == nil {
		return nil, ErrChannelNotFound
	}

	ch, err := c.channelByID(ctx, searchResp.Items[0].Snippet.ChannelId)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrChannelNotFound
	}
	return ch, nil
}

// RecentVideos lists videos on the channel's uploads playlist published
// after the given cutoff, newest first, capped at max.
func (c *Client) RecentVideos(ctx context.Context, channelID string, publishedAfter time.Time, max int64) ([]Video, error) {
	ch, err := c.channelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrChannelNotFound
	}
	if ch.UploadsPlaylist == "" {
		return nil, nil
	}

	playlistCall := c.service.PlaylistItems.List([]string{"snippet"}).
		PlaylistId(ch.UploadsPlaylist).
		MaxResults(max).
		Context(ctx)
	playlistResp, err := playlistCall.Do()
	if err != nil {
		return nil, fmt.Errorf("listing uploads for channel %s: %w", channelID, err)
	}

	var videoIDs []string
	for _, item := range playlistResp.Items {
		if item.Snippet == nil || item.Snippet.ResourceId == nil {
			continue
		}
		publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			continue
		}
		if publishedAt.After(publishedAfter) {
			videoIDs = append(videoIDs, item.Snippet.ResourceId.VideoId)
		}
	}
	if len(videoIDs) == 0 {
		return nil, nil
	}

	videosCall := c.service.Videos.List([]string{"snippet", "contentDetails"}).
		Id(strings.Join(videoIDs, ",")).
		Context(ctx)
	videosResp, err := videosCall.Do()
	if err != nil {
		return nil, fmt.Errorf("fetching video details: %w", err)
	}

	videos := make([]Video, 0, len(videosResp.Items))
	for _, item := range videosResp.Items {
		video := Video{
			ID:    item.Id,
			Title: item.Snippet.Title,
			URL:   WatchURL(item.Id),
		}
		if item.Snippet != nil {
			video.Description = item.Snippet.Description
			if publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
				video.PublishedAt = publishedAt
			}
		}
		if item.ContentDetails != nil {
			video.DurationSeconds = ParseDurationSeconds(item.ContentDetails.Duration)
		}
		videos = append(videos, video)
	}
	return videos, nil
}

func (c *Client) channelByID(ctx context.Context, id string) (*Channel, error) {
	call := c.service.Channels.List([]string{"snippet", "statistics", "contentDetails"}).
		Id(id).
		Context(ctx)
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("looking up channel %s: %w", id, err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	return fromAPIChannel(resp.Items[0]), nil
}

func fromAPIChannel(item *youtube.Channel) *Channel {
	ch := &Channel{
		ID:  item.Id,
		URL: ChannelURL(item.Id),
	}
	if item.Snippet != nil {
		ch.Title = item.Snippet.Title
	}
	if item.Statistics != nil {
		ch.SubscriberCount = int64(item.Statistics.SubscriberCount)
		ch.VideoCount = int64(item.Statistics.VideoCount)
	}
	if item.ContentDetails != nil && item.ContentDetails.RelatedPlaylists != nil {
		ch.UploadsPlaylist = item.ContentDetails.RelatedPlaylists.Uploads
	}
	return ch
}

// WatchURL returns the public watch URL for a video ID.
func WatchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

// ChannelURL returns the public channel URL for a channel ID.
func ChannelURL(channelID string) string {
	return fmt.Sprintf("https://www.youtube.com/channel/%s", channelID)
}
