package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/mgastelum/tubedigest-backend/internal/billing"
	"github.com/mgastelum/tubedigest-backend/internal/users"
	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
	"github.com/mgastelum/tubedigest-backend/pkg/enums"
	pkgerrors "github.com/mgastelum/tubedigest-backend/pkg/errors"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"

	"github.com/google/uuid"
)

// Summary allowance applied when a paid subscription becomes active.
const (
	paidMonthlySummaryLimit = 100
	paidMaxChannels         = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type subscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// ServiceParams wires webhook dependencies.
type ServiceParams struct {
	BillingRepo       billing.Repository
	UserRepo          users.Repository
	StripeClient      subscriptionFetcher
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service applies Stripe subscription lifecycle events to local state.
type Service struct {
	billingRepo billing.Repository
	userRepo    users.Repository
	stripe      subscriptionFetcher
	txRunner    txRunner
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.UserRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repo required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		billingRepo: params.BillingRepo,
		userRepo:    params.UserRepo,
		stripe:      params.StripeClient,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.handleCheckoutCompleted(ctx, &session)
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
		}
		return s.syncSubscription(ctx, &stripeSub)
	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode invoice event")
		}
		subscriptionID := ""
		if invoice.Parent != nil && invoice.Parent.SubscriptionDetails != nil && invoice.Parent.SubscriptionDetails.Subscription != nil {
			subscriptionID = invoice.Parent.SubscriptionDetails.Subscription.ID
		}
		if subscriptionID == "" {
			// one-off invoices carry no subscription, nothing to sync
			return nil
		}
		stripeSub, err := s.stripe.GetSubscription(ctx, subscriptionID, &stripe.SubscriptionParams{})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
		}
		return s.syncSubscription(ctx, stripeSub)
	default:
		return nil
	}
}

// handleCheckoutCompleted pins the Stripe customer id to the user that
// started checkout. Subscription state follows in subscription events.
func (s *Service) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	if session == nil || session.ClientReferenceID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session missing client reference")
	}
	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse client reference id")
	}
	if session.Customer == nil || session.Customer.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session missing customer")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find user")
	}
	if user == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if user.StripeCustomerID != nil && *user.StripeCustomerID == session.Customer.ID {
		return nil
	}
	return s.userRepo.UpdateProfile(ctx, userID, map[string]any{
		"stripe_customer_id": session.Customer.ID,
	})
}

func (s *Service) syncSubscription(ctx context.Context, stripeSub *stripe.Subscription) error {
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}
	if stripeSub.Customer == nil || stripeSub.Customer.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription missing customer")
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		billingRepo := s.billingRepo.WithTx(tx)
		userRepo := s.userRepo.WithTx(tx)

		user, err := s.resolveUser(ctx, userRepo, billingRepo, stripeSub)
		if err != nil {
			return err
		}

		row := buildSubscriptionRow(user.ID, stripeSub)
		if err := billingRepo.Upsert(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert billing subscription")
		}

		updates := map[string]any{"subscription_status": row.Status}
		if row.Status == enums.SubscriptionActive {
			updates["monthly_summary_limit"] = paidMonthlySummaryLimit
			updates["max_channels"] = paidMaxChannels
		}
		if err := userRepo.UpdateProfile(ctx, user.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user subscription status")
		}

		logCtx := s.logg.WithUserID(ctx, user.ID.String())
		logCtx = s.logg.WithField(logCtx, "subscription_status", string(row.Status))
		s.logg.Info(logCtx, "subscription state synced")
		return nil
	})
}

// resolveUser finds the owning user via subscription metadata, then the
// customer id, then an existing billing row.
func (s *Service) resolveUser(ctx context.Context, userRepo users.Repository, billingRepo billing.Repository, stripeSub *stripe.Subscription) (*models.User, error) {
	if raw := stripeSub.Metadata["user_id"]; raw != "" {
		if userID, err := uuid.Parse(raw); err == nil {
			user, err := userRepo.FindByID(ctx, userID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find user by metadata")
			}
			if user != nil {
				return user, nil
			}
		}
	}

	user, err := userRepo.FindByStripeCustomerID(ctx, stripeSub.Customer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find user by customer")
	}
	if user != nil {
		return user, nil
	}

	stored, err := billingRepo.FindByStripeSubscriptionID(ctx, stripeSub.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stored subscription")
	}
	if stored != nil {
		user, err = userRepo.FindByID(ctx, stored.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find user by stored subscription")
		}
		if user != nil {
			return user, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no user for stripe customer")
}

func buildSubscriptionRow(userID uuid.UUID, stripeSub *stripe.Subscription) *models.BillingSubscription {
	periodStart, periodEnd, priceID, amountCents, planName := itemDetails(stripeSub)

	row := &models.BillingSubscription{
		UserID:               userID,
		StripeSubscriptionID: stripeSub.ID,
		StripeCustomerID:     stripeSub.Customer.ID,
		Status:               mapStripeStatus(stripeSub.Status),
		CurrentPeriodStart:   toTimePtr(periodStart),
		CurrentPeriodEnd:     toTime(periodEnd),
		AmountCents:          amountCents,
		CancelAtPeriodEnd:    stripeSub.CancelAtPeriodEnd,
		CanceledAt:           toTimePtr(stripeSub.CanceledAt),
	}
	if priceID != "" {
		row.PriceID = &priceID
	}
	if planName != "" {
		row.PlanName = &planName
	}
	if len(stripeSub.Metadata) > 0 {
		if data, err := json.Marshal(stripeSub.Metadata); err == nil {
			row.Metadata = data
		}
	}
	return row
}

func itemDetails(stripeSub *stripe.Subscription) (int64, int64, string, int64, string) {
	if stripeSub.Items == nil || len(stripeSub.Items.Data) == 0 {
		return 0, 0, "", 0, ""
	}
	item := stripeSub.Items.Data[0]

	var priceID, planName string
	var amount int64
	if item.Price != nil {
		priceID = item.Price.ID
		amount = item.Price.UnitAmount
		planName = item.Price.Nickname
	}
	return item.CurrentPeriodStart, item.CurrentPeriodEnd, priceID, amount, planName
}

func mapStripeStatus(status stripe.SubscriptionStatus) enums.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return enums.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		return enums.SubscriptionTrialing
	case stripe.SubscriptionStatusCanceled:
		return enums.SubscriptionCanceled
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return enums.SubscriptionPastDue
	case stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusIncompleteExpired:
		return enums.SubscriptionIncomplete
	default:
		return enums.SubscriptionInactive
	}
}

func toTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
