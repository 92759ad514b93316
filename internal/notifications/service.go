package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/mgastelum/tubedigest-backend/pkg/errors"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
	"github.com/mgastelum/tubedigest-backend/pkg/metrics"
	"github.com/mgastelum/tubedigest-backend/pkg/pagination"
	"github.com/mgastelum/tubedigest-backend/pkg/whatsapp"
)

const maxSummaryChars = 600

// Service defines notification history and delivery sweep operations.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	ListPending(ctx context.Context, limit int) ([]PendingNotification, error)
	SendPending(ctx context.Context, limit int) (*SweepResult, error)
	MarkSent(ctx context.Context, userID, notificationID uuid.UUID) error
	Delete(ctx context.Context, userID, notificationID uuid.UUID) error
	CleanupSent(ctx context.Context, retention time.Duration) (int64, error)
}

// ServiceParams wires notification dependencies.
type ServiceParams struct {
	Repo    Repository
	Sender  whatsapp.Sender
	Logger  *logger.Logger
	Metrics *metrics.PipelineMetrics
}

type service struct {
	repo    Repository
	sender  whatsapp.Sender
	logg    *logger.Logger
	metrics *metrics.PipelineMetrics
	now     func() time.Time
}

// NewService wires notifications dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if params.Sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "message sender required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:    params.Repo,
		sender:  params.Sender,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

// ListParams configures pagination for a user's notification history.
type ListParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// NotificationView is a history entry joined to its video.
type NotificationView struct {
	ID           uuid.UUID  `json:"id"`
	VideoID      uuid.UUID  `json:"video_id"`
	VideoTitle   string     `json:"video_title"`
	VideoURL     string     `json:"video_url"`
	Summary      *string    `json:"summary"`
	IsSent       bool       `json:"is_sent"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []NotificationView `json:"items"`
	Cursor string             `json:"cursor"`
}

// SweepResult reports one delivery sweep: every pending row attempted,
// failures keyed by notification id.
type SweepResult struct {
	Attempted int                  `json:"attempted"`
	Sent      int                  `json:"sent"`
	Failed    int                  `json:"failed"`
	Failures  map[uuid.UUID]string `json:"failures,omitempty"`
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listByUserParams{UserID: params.UserID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListByUser(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	items := make([]NotificationView, 0, len(rows))
	for _, row := range rows {
		items = append(items, NotificationView{
			ID:         row.Notification.ID,
			VideoID:    row.Video.ID,
			VideoTitle: row.Video.Title,
			VideoURL:   row.Video.URL,
			Summary:    row.Video.Summary,
			IsSent:     row.Notification.IsSent,
			SentAt:     row.Notification.SentAt,
			CreatedAt:  row.Notification.CreatedAt,
		})
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func (s *service) ListPending(ctx context.Context, limit int) ([]PendingNotification, error) {
	pending, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending notifications")
	}
	return pending, nil
}

func (s *service) SendPending(ctx context.Context, limit int) (*SweepResult, error) {
	pending, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending notifications")
	}

	result := &SweepResult{Attempted: len(pending), Failures: map[uuid.UUID]string{}}
	for _, item := range pending {
		if err := s.deliver(ctx, item); err != nil {
			result.Failed++
			result.Failures[item.NotificationID] = err.Error()
			s.metrics.IncNotification("failed")
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"notification_id": item.NotificationID.String(),
				"user_id":         item.UserID.String(),
			})
			s.logg.Error(logCtx, "notification delivery failed", err)
			continue
		}
		result.Sent++
		s.metrics.IncNotification("sent")
	}

	if len(result.Failures) == 0 {
		result.Failures = nil
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"attempted": result.Attempted,
		"sent":      result.Sent,
		"failed":    result.Failed,
	})
	s.logg.Info(logCtx, "delivery sweep complete")
	return result, nil
}

func (s *service) deliver(ctx context.Context, item PendingNotification) error {
	if err := s.sender.Send(ctx, item.ToNumber, formatMessage(item)); err != nil {
		return err
	}
	if err := s.repo.MarkSent(ctx, item.NotificationID, s.now().UTC()); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (s *service) MarkSent(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkSentOwned(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification sent")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) Delete(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	deleted, err := s.repo.DeleteOwned(ctx, userID, notificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete notification")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) CleanupSent(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "retention must be positive")
	}
	cutoff := s.now().UTC().Add(-retention)
	deleted, err := s.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cleanup sent notifications")
	}
	return deleted, nil
}

func formatMessage(item PendingNotification) string {
	summary := strings.TrimSpace(item.Summary)
	if len(summary) > maxSummaryChars {
		cut := summary[:maxSummaryChars]
		if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
			cut = cut[:idx]
		}
		summary = cut + "…"
	}

	var b strings.Builder
	b.WriteString("New video from ")
	b.WriteString(item.ChannelTitle)
	b.WriteString("\n\n")
	b.WriteString(item.VideoTitle)
	if summary != "" {
		b.WriteString("\n\n")
		b.WriteString(summary)
	}
	b.WriteString("\n\n")
	b.WriteString(item.VideoURL)
	return b.String()
}
