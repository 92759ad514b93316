package videos

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/mgastelum/tubedigest-backend/pkg/config"
	pkgdb "github.com/mgastelum/tubedigest-backend/pkg/db"
	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
	pkgerrors "github.com/mgastelum/tubedigest-backend/pkg/errors"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
	"github.com/mgastelum/tubedigest-backend/pkg/metrics"
	"github.com/mgastelum/tubedigest-backend/pkg/summarize"
	"github.com/mgastelum/tubedigest-backend/pkg/youtube"
)

const maxVideosPerChannel = 10

// ChannelSource is the slice of the channel registry the pipeline reads
// and updates.
type ChannelSource interface {
	ListMonitored(ctx context.Context, limit int) ([]models.Channel, error)
	ActiveSubscriberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error)
	RecordCheckSuccess(ctx context.Context, channelID uuid.UUID, lastVideoID *string, now time.Time) error
	RecordCheckFailure(ctx context.Context, channelID uuid.UUID, pauseAfter int, now time.Time) (bool, error)
	ResumePausedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// VideoLister fetches recent uploads for one channel.
type VideoLister interface {
	RecentVideos(ctx context.Context, youtubeChannelID string, publishedAfter time.Time, max int64) ([]youtube.Video, error)
}

// QuotaConsumer spends one summary credit per fan-out entry and gives
// it back when the notification insert fails.
type QuotaConsumer interface {
	ConsumeSummaryCredit(ctx context.Context, userID uuid.UUID) (bool, error)
	RefundSummaryCredit(ctx context.Context, userID uuid.UUID) error
}

// Service runs the discovery pipeline.
type Service interface {
	ProcessNewVideos(ctx context.Context) (*RunReport, error)
}

// ServiceParams wires pipeline dependencies.
type ServiceParams struct {
	Repo       Repository
	Channels   ChannelSource
	Lister     VideoLister
	Summarizer summarize.Summarizer
	Quota      QuotaConsumer
	Logger     *logger.Logger
	Metrics    *metrics.PipelineMetrics
	Pipeline   config.PipelineConfig
}

type service struct {
	repo       Repository
	channels   ChannelSource
	lister     VideoLister
	summarizer summarize.Summarizer
	quota      QuotaConsumer
	logg       *logger.Logger
	metrics    *metrics.PipelineMetrics
	cfg        config.PipelineConfig
	now        func() time.Time
}

// NewService wires the discovery pipeline.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "videos repository required")
	}
	if params.Channels == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "channel source required")
	}
	if params.Lister == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "video lister required")
	}
	if params.Summarizer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "summarizer required")
	}
	if params.Quota == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "quota consumer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:       params.Repo,
		channels:   params.Channels,
		lister:     params.Lister,
		summarizer: params.Summarizer,
		quota:      params.Quota,
		logg:       params.Logger,
		metrics:    params.Metrics,
		cfg:        params.Pipeline,
		now:        time.Now,
	}, nil
}

// RunReport summarizes one discovery run.
type RunReport struct {
	ChannelsChecked      int               `json:"channels_checked"`
	VideosProcessed      int               `json:"videos_processed"`
	NotificationsCreated int               `json:"notifications_created"`
	SkippedForQuota      int               `json:"skipped_for_quota"`
	SummariesFailed      int               `json:"summaries_failed"`
	ChannelsPaused       int               `json:"channels_paused"`
	ChannelErrors        map[string]string `json:"channel_errors,omitempty"`
}

// ProcessNewVideos checks monitored channels for new uploads,
// summarizes each new video, and fans out quota-gated notifications.
// A channel failure is recorded and never aborts sibling channels.
func (s *service) ProcessNewVideos(ctx context.Context) (*RunReport, error) {
	batch := s.cfg.ChannelBatchSize
	if batch <= 0 {
		batch = 50
	}

	// Paused channels get retried once the cooldown elapses.
	resumed, err := s.channels.ResumePausedBefore(ctx, s.now().UTC().Add(-s.pauseRetryAfter()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resume cooled-down channels")
	}
	if resumed > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{"channels_resumed": resumed})
		s.logg.Info(logCtx, "paused channels reopened for retry")
	}

	monitored, err := s.channels.ListMonitored(ctx, batch)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list monitored channels")
	}

	report := &RunReport{ChannelErrors: map[string]string{}}
	var runErr error
	for _, channel := range monitored {
		report.ChannelsChecked++
		if err := s.processChannel(ctx, channel, report); err != nil {
			report.ChannelErrors[channel.YouTubeChannelID] = err.Error()
			runErr = multierr.Append(runErr, fmt.Errorf("channel %s: %w", channel.YouTubeChannelID, err))

			paused, failErr := s.channels.RecordCheckFailure(ctx, channel.ID, s.maxFailures(), s.now().UTC())
			if failErr != nil {
				runErr = multierr.Append(runErr, fmt.Errorf("record failure for %s: %w", channel.YouTubeChannelID, failErr))
				continue
			}
			if paused {
				report.ChannelsPaused++
				s.metrics.IncChannelPaused()
				logCtx := s.logg.WithChannelID(ctx, channel.ID.String())
				s.logg.Warn(logCtx, "channel paused after repeated discovery failures")
			}
		}
	}

	if len(report.ChannelErrors) == 0 {
		report.ChannelErrors = nil
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"channels_checked":      report.ChannelsChecked,
		"videos_processed":      report.VideosProcessed,
		"notifications_created": report.NotificationsCreated,
		"skipped_for_quota":     report.SkippedForQuota,
	})
	s.logg.Info(logCtx, "discovery run complete")
	return report, runErr
}

func (s *service) processChannel(ctx context.Context, channel models.Channel, report *RunReport) error {
	now := s.now().UTC()
	publishedAfter := now.Add(-s.bootstrapWindow())
	if channel.LastCheckAt != nil {
		publishedAfter = *channel.LastCheckAt
	}

	found, err := s.lister.RecentVideos(ctx, channel.YouTubeChannelID, publishedAfter, maxVideosPerChannel)
	if err != nil {
		return fmt.Errorf("list uploads: %w", err)
	}

	// Oldest first so notification order follows publish order.
	sort.Slice(found, func(i, j int) bool {
		return found[i].PublishedAt.Before(found[j].PublishedAt)
	})

	var newest *string
	for _, video := range found {
		exists, err := s.repo.ExistsByYouTubeID(ctx, video.ID)
		if err != nil {
			return fmt.Errorf("check ledger for %s: %w", video.ID, err)
		}
		if exists {
			continue
		}
		if err := s.processVideo(ctx, channel, video, report); err != nil {
			return err
		}
		id := video.ID
		newest = &id
		report.VideosProcessed++
		s.metrics.AddVideosDiscovered(1)
	}

	return s.channels.RecordCheckSuccess(ctx, channel.ID, newest, now)
}

// processVideo inserts the ledger row, with or without a summary, then
// fans out to active subscribers. Summarizer failure downgrades to a
// null summary; it never blocks the insert or the fan-out.
func (s *service) processVideo(ctx context.Context, channel models.Channel, video youtube.Video, report *RunReport) error {
	logCtx := s.logg.WithVideoID(s.logg.WithChannelID(ctx, channel.ID.String()), video.ID)

	var summary *string
	text, err := s.summarizer.Summarize(ctx, summarize.VideoInput{
		Title:           video.Title,
		Description:     video.Description,
		ChannelTitle:    channel.Title,
		DurationSeconds: int64(video.DurationSeconds),
	})
	if err != nil {
		report.SummariesFailed++
		s.metrics.IncSummaryFailed()
		s.logg.Error(logCtx, "summarization failed; storing video without summary", err)
	} else {
		summary = &text
		s.metrics.IncSummaryGenerated()
	}

	row := &models.ProcessedVideo{
		ID:              uuid.New(),
		ChannelID:       channel.ID,
		YouTubeVideoID:  video.ID,
		Title:           video.Title,
		URL:             video.URL,
		Description:     video.Description,
		Summary:         summary,
		DurationSeconds: video.DurationSeconds,
		PublishedAt:     video.PublishedAt,
		ProcessedAt:     s.now().UTC(),
	}
	if err := s.repo.CreateVideo(ctx, row); err != nil {
		if pkgdb.IsUniqueViolation(err) {
			// Another worker processed it between the exists check and the insert.
			return nil
		}
		return fmt.Errorf("insert video %s: %w", video.ID, err)
	}

	subscribers, err := s.channels.ActiveSubscriberIDs(ctx, channel.ID)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}

	for _, userID := range subscribers {
		consumed, err := s.quota.ConsumeSummaryCredit(ctx, userID)
		if err != nil {
			userCtx := s.logg.WithUserID(logCtx, userID.String())
			s.logg.Error(userCtx, "quota check failed; skipping subscriber", err)
			continue
		}
		if !consumed {
			report.SkippedForQuota++
			s.metrics.IncQuotaDenied()
			continue
		}

		notification := &models.VideoNotification{
			ID:      uuid.New(),
			UserID:  userID,
			VideoID: row.ID,
			IsSent:  false,
		}
		if err := s.repo.CreateNotification(ctx, notification); err != nil {
			// No row was created, so the consumed credit goes back.
			if refundErr := s.quota.RefundSummaryCredit(ctx, userID); refundErr != nil {
				userCtx := s.logg.WithUserID(logCtx, userID.String())
				s.logg.Error(userCtx, "credit refund failed after notification insert error", refundErr)
			}
			if pkgdb.IsUniqueViolation(err) {
				continue
			}
			userCtx := s.logg.WithUserID(logCtx, userID.String())
			s.logg.Error(userCtx, "notification insert failed; skipping subscriber", err)
			continue
		}
		report.NotificationsCreated++
	}
	return nil
}

func (s *service) bootstrapWindow() time.Duration {
	if s.cfg.BootstrapWindow > 0 {
		return s.cfg.BootstrapWindow
	}
	return 24 * time.Hour
}

func (s *service) maxFailures() int {
	if s.cfg.MaxChannelFailures > 0 {
		return s.cfg.MaxChannelFailures
	}
	return 5
}

func (s *service) pauseRetryAfter() time.Duration {
	if s.cfg.PauseRetryAfter > 0 {
		return s.cfg.PauseRetryAfter
	}
	return 6 * time.Hour
}
