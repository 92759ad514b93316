package channels

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	pkgdb "github.com/mgastelum/tubedigest-backend/pkg/db"
	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
	pkgerrors "github.com/mgastelum/tubedigest-backend/pkg/errors"
	"github.com/mgastelum/tubedigest-backend/pkg/pagination"
	"github.com/mgastelum/tubedigest-backend/pkg/youtube"
)

// Resolver turns a user-supplied channel reference into channel metadata.
type Resolver interface {
	ResolveChannel(ctx context.Context, ref string) (*youtube.Channel, error)
}

type userLimits interface {
	MaxChannels(ctx context.Context, userID uuid.UUID) (int, error)
}

// Service defines channel registry operations.
type Service interface {
	Subscribe(ctx context.Context, userID uuid.UUID, ref string) (*SubscriptionView, error)
	Unsubscribe(ctx context.Context, userID, channelID uuid.UUID) error
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, userID, channelID uuid.UUID) (*SubscriptionView, error)
}

// ServiceParams wires channel registry dependencies.
type ServiceParams struct {
	Repo     Repository
	Resolver Resolver
	Users    userLimits
}

type service struct {
	repo     Repository
	resolver Resolver
	users    userLimits
	now      func() time.Time
}

// NewService wires channel registry dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "channels repository required")
	}
	if params.Resolver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "channel resolver required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user limits required")
	}
	return &service{
		repo:     params.Repo,
		resolver: params.Resolver,
		users:    params.Users,
		now:      time.Now,
	}, nil
}

// ListParams configures pagination for subscription listings.
type ListParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// ListResult wraps returned subscriptions and the cursor for the next page.
type ListResult struct {
	Items  []SubscriptionView `json:"items"`
	Cursor string             `json:"cursor"`
}

// SubscriptionView is the API shape for one channel subscription.
type SubscriptionView struct {
	ChannelID        uuid.UUID  `json:"channel_id"`
	YouTubeChannelID string     `json:"youtube_channel_id"`
	Title            string     `json:"title"`
	URL              string     `json:"url"`
	SubscriberCount  int64      `json:"subscriber_count"`
	VideoCount       int64      `json:"video_count"`
	SubscribedAt     time.Time  `json:"subscribed_at"`
	LastCheckAt      *time.Time `json:"last_check_at,omitempty"`
	Paused           bool       `json:"paused"`
}

func (s *service) Subscribe(ctx context.Context, userID uuid.UUID, ref string) (*SubscriptionView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel reference required")
	}

	maxChannels, err := s.users.MaxChannels(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load channel limit")
	}
	active, err := s.repo.CountActiveByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count subscriptions")
	}
	if active >= int64(maxChannels) {
		return nil, pkgerrors.New(pkgerrors.CodeQuotaExceeded, "channel limit reached").
			WithDetails(map[string]any{"max_channels": maxChannels})
	}

	resolved, err := s.resolver.ResolveChannel(ctx, ref)
	if err != nil {
		if errors.Is(err, youtube.ErrChannelNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "channel not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve channel")
	}

	now := s.now().UTC()
	channel, err := s.repo.FindByYouTubeID(ctx, resolved.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load channel")
	}
	if channel == nil {
		channel = &models.Channel{
			ID:               uuid.New(),
			YouTubeChannelID: resolved.ID,
			Title:            resolved.Title,
			URL:              resolved.URL,
			SubscriberCount:  resolved.SubscriberCount,
			VideoCount:       resolved.VideoCount,
		}
		if err := s.repo.Create(ctx, channel); err != nil {
			if pkgdb.IsUniqueViolation(err) {
				// Lost a create race; the other writer's row wins.
				channel, err = s.repo.FindByYouTubeID(ctx, resolved.ID)
				if err != nil || channel == nil {
					return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load channel after conflict")
				}
			} else {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create channel")
			}
		}
	}

	existing, err := s.repo.FindSubscription(ctx, userID, channel.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	switch {
	case existing == nil:
		sub := &models.UserChannel{
			ID:           uuid.New(),
			UserID:       userID,
			ChannelID:    channel.ID,
			IsActive:     true,
			SubscribedAt: now,
		}
		if err := s.repo.CreateSubscription(ctx, sub); err != nil {
			if pkgdb.IsUniqueViolation(err) {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "already subscribed to this channel")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
		}
		existing = sub
	case existing.IsActive:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "already subscribed to this channel")
	default:
		if _, err := s.repo.SetSubscriptionActive(ctx, userID, channel.ID, true, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reactivate subscription")
		}
		existing.IsActive = true
		existing.SubscribedAt = now
	}

	// A fresh subscription reopens a channel the pipeline paused.
	if channel.PausedAt != nil {
		if err := s.repo.ResumePaused(ctx, channel.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resume paused channel")
		}
		channel.PausedAt = nil
		channel.ConsecutiveFailures = 0
	}

	view := toView(*existing, *channel)
	return &view, nil
}

func (s *service) Unsubscribe(ctx context.Context, userID, channelID uuid.UUID) error {
	if userID == uuid.Nil || channelID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and channel id required")
	}

	deactivated, err := s.repo.SetSubscriptionActive(ctx, userID, channelID, false, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate subscription")
	}
	if !deactivated {
		sub, err := s.repo.FindSubscription(ctx, userID, channelID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listSubscriptionsParams{
		UserID: params.UserID,
		Limit:  params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListActiveByUser(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}

	items := make([]SubscriptionView, 0, len(rows))
	for _, row := range rows {
		items = append(items, toView(row.Subscription, row.Channel))
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func (s *service) Get(ctx context.Context, userID, channelID uuid.UUID) (*SubscriptionView, error) {
	if userID == uuid.Nil || channelID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and channel id required")
	}

	sub, err := s.repo.FindSubscription(ctx, userID, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil || !sub.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	channel, err := s.repo.FindByID(ctx, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load channel")
	}
	if channel == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "channel not found")
	}

	view := toView(*sub, *channel)
	return &view, nil
}

func toView(sub models.UserChannel, channel models.Channel) SubscriptionView {
	return SubscriptionView{
		ChannelID:        channel.ID,
		YouTubeChannelID: channel.YouTubeChannelID,
		Title:            channel.Title,
		URL:              channel.URL,
		SubscriberCount:  channel.SubscriberCount,
		VideoCount:       channel.VideoCount,
		SubscribedAt:     sub.SubscribedAt,
		LastCheckAt:      channel.LastCheckAt,
		Paused:           channel.PausedAt != nil,
	}
}
