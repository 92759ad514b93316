package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mgastelum/tubedigest-backend/pkg/logger"
)

type quotaResetter interface {
	ResetDueQuotas(ctx context.Context, now time.Time) (int, error)
}

// QuotaResetJobParams configure the monthly quota reset job.
type QuotaResetJobParams struct {
	Logger *logger.Logger
	Users  quotaResetter
}

// NewQuotaResetJob wraps the monthly quota reset as a cron job. The job
// runs every cycle; users whose reset date has not passed are untouched.
func NewQuotaResetJob(params QuotaResetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users service required")
	}
	return &quotaResetJob{
		logg:  params.Logger,
		users: params.Users,
		now:   time.Now,
	}, nil
}

type quotaResetJob struct {
	logg  *logger.Logger
	users quotaResetter
	now   func() time.Time
}

func (j *quotaResetJob) Name() string { return "quota-reset" }

func (j *quotaResetJob) Run(ctx context.Context) error {
	reset, err := j.users.ResetDueQuotas(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("quota reset: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"users_reset": reset})
	j.logg.Info(logCtx, "quota reset finished")
	return nil
}
