package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mgastelum/tubedigest-backend/pkg/logger"
)

const notificationRetentionDays = 30

type sentNotificationCleaner interface {
	CleanupSent(ctx context.Context, retention time.Duration) (int64, error)
}

// NotificationCleanupJobParams configure the retention job.
type NotificationCleanupJobParams struct {
	Logger        *logger.Logger
	Notifications sentNotificationCleaner
	RetentionDays int
}

// NewNotificationCleanupJob prunes sent notification rows past retention.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = notificationRetentionDays
	}
	return &notificationCleanupJob{
		logg:      params.Logger,
		cleaner:   params.Notifications,
		retention: retention,
	}, nil
}

type notificationCleanupJob struct {
	logg      *logger.Logger
	cleaner   sentNotificationCleaner
	retention int
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.cleaner.CleanupSent(ctx, time.Duration(j.retention)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("notification cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "notification cleanup finished")
	return nil
}
