package cron

import (
	"context"
	"fmt"

	"github.com/mgastelum/tubedigest-backend/internal/videos"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
)

type discoveryPipeline interface {
	ProcessNewVideos(ctx context.Context) (*videos.RunReport, error)
}

// VideoDiscoveryJobParams configure the discovery job.
type VideoDiscoveryJobParams struct {
	Logger   *logger.Logger
	Pipeline discoveryPipeline
}

// NewVideoDiscoveryJob wraps the discovery pipeline as a cron job.
func NewVideoDiscoveryJob(params VideoDiscoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Pipeline == nil {
		return nil, fmt.Errorf("discovery pipeline required")
	}
	return &videoDiscoveryJob{
		logg:     params.Logger,
		pipeline: params.Pipeline,
	}, nil
}

type videoDiscoveryJob struct {
	logg     *logger.Logger
	pipeline discoveryPipeline
}

func (j *videoDiscoveryJob) Name() string { return "video-discovery" }

// Run executes one discovery pass. A partial failure still produced a
// report, so it is logged before the error propagates.
func (j *videoDiscoveryJob) Run(ctx context.Context) error {
	report, err := j.pipeline.ProcessNewVideos(ctx)
	if report != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"channels_checked":      report.ChannelsChecked,
			"videos_processed":      report.VideosProcessed,
			"notifications_created": report.NotificationsCreated,
			"skipped_for_quota":     report.SkippedForQuota,
			"channels_paused":       report.ChannelsPaused,
		})
		j.logg.Info(logCtx, "discovery pass finished")
	}
	if err != nil {
		return fmt.Errorf("video discovery: %w", err)
	}
	return nil
}
