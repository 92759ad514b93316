package cron

import (
	"context"
	"fmt"

	"github.com/mgastelum/tubedigest-backend/internal/notifications"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
)

type deliverySweeper interface {
	SendPending(ctx context.Context, limit int) (*notifications.SweepResult, error)
}

// DeliverySweepJobParams configure the delivery sweep job.
type DeliverySweepJobParams struct {
	Logger        *logger.Logger
	Notifications deliverySweeper
	BatchSize     int
}

// NewDeliverySweepJob wraps the WhatsApp delivery sweep as a cron job.
func NewDeliverySweepJob(params DeliverySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	return &deliverySweepJob{
		logg:      params.Logger,
		sweeper:   params.Notifications,
		batchSize: params.BatchSize,
	}, nil
}

type deliverySweepJob struct {
	logg      *logger.Logger
	sweeper   deliverySweeper
	batchSize int
}

func (j *deliverySweepJob) Name() string { return "delivery-sweep" }

func (j *deliverySweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.SendPending(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("delivery sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"attempted": result.Attempted,
		"sent":      result.Sent,
		"failed":    result.Failed,
	})
	j.logg.Info(logCtx, "delivery sweep finished")
	return nil
}
