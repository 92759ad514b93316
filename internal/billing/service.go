package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/mgastelum/tubedigest-backend/pkg/config"
	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
	pkgerrors "github.com/mgastelum/tubedigest-backend/pkg/errors"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
)

// userStore is the slice of the users repository billing needs: looking
// up the caller and pinning the Stripe customer id once created.
type userStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

// Service creates Stripe checkout and billing-portal sessions and reads
// webhook-maintained subscription rows.
type Service interface {
	CreateCheckoutSession(ctx context.Context, userID uuid.UUID) (*CheckoutSessionView, error)
	CreatePortalSession(ctx context.Context, userID uuid.UUID) (*PortalSessionView, error)
	CurrentSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionView, error)
}

// ServiceParams wires billing dependencies.
type ServiceParams struct {
	Repo   Repository
	Users  userStore
	Stripe StripeBillingClient
	Config config.StripeConfig
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	users  userStore
	stripe StripeBillingClient
	cfg    config.StripeConfig
	logg   *logger.Logger
}

// NewService wires billing dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "billing repository required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user store required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if params.Config.SubscriptionPriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription price id required")
	}
	return &service{
		repo:   params.Repo,
		users:  params.Users,
		stripe: params.Stripe,
		cfg:    params.Config,
		logg:   params.Logger,
	}, nil
}

// CheckoutSessionView is returned to the frontend for redirect.
type CheckoutSessionView struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// PortalSessionView is returned to the frontend for redirect.
type PortalSessionView struct {
	URL string `json:"url"`
}

// SubscriptionView is the user-facing slice of a billing subscription row.
type SubscriptionView struct {
	Status            string     `json:"status"`
	PlanName          *string    `json:"plan_name,omitempty"`
	CurrentPeriodEnd  time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CanceledAt        *time.Time `json:"canceled_at,omitempty"`
}

func (s *service) CreateCheckoutSession(ctx context.Context, userID uuid.UUID) (*CheckoutSessionView, error) {
	customerID, err := s.ensureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(s.cfg.CheckoutSuccessURL),
		CancelURL:  stripe.String(s.cfg.CheckoutCancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.cfg.SubscriptionPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(userID.String()),
	}

	session, err := s.stripe.NewCheckoutSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	logCtx := s.logg.WithUserID(ctx, userID.String())
	s.logg.Info(logCtx, "checkout session created")
	return &CheckoutSessionView{SessionID: session.ID, URL: session.URL}, nil
}

func (s *service) CreatePortalSession(ctx context.Context, userID uuid.UUID) (*PortalSessionView, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "no billing profile yet")
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*user.StripeCustomerID),
		ReturnURL: stripe.String(s.cfg.PortalReturnURL),
	}
	session, err := s.stripe.NewPortalSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create portal session")
	}
	return &PortalSessionView{URL: session.URL}, nil
}

func (s *service) CurrentSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	row, err := s.repo.FindLatestByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find subscription")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription on record")
	}
	return &SubscriptionView{
		Status:            string(row.Status),
		PlanName:          row.PlanName,
		CurrentPeriodEnd:  row.CurrentPeriodEnd,
		CancelAtPeriodEnd: row.CancelAtPeriodEnd,
		CanceledAt:        row.CanceledAt,
	}, nil
}

// ensureCustomer returns the user's Stripe customer id, creating the
// customer on first use.
func (s *service) ensureCustomer(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	created, err := s.stripe.NewCustomer(ctx, &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.DisplayName),
		Metadata: map[string]string{
			"user_id": user.ID.String(),
		},
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe customer")
	}

	if err := s.users.UpdateProfile(ctx, user.ID, map[string]any{"stripe_customer_id": created.ID}); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist stripe customer id")
	}
	return created.ID, nil
}

func (s *service) findUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return user, nil
}
