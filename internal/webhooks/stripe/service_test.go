package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/mgastelum/tubedigest-backend/internal/billing"
	"github.com/mgastelum/tubedigest-backend/internal/users"
	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
	"github.com/mgastelum/tubedigest-backend/pkg/enums"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
)

type stubBillingRepo struct {
	upserted []*models.BillingSubscription
	stored   map[string]*models.BillingSubscription
}

func (s *stubBillingRepo) WithTx(tx *gorm.DB) billing.Repository { return s }

func (s *stubBillingRepo) Upsert(ctx context.Context, subscription *models.BillingSubscription) error {
	s.upserted = append(s.upserted, subscription)
	return nil
}

func (s *stubBillingRepo) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.BillingSubscription, error) {
	return s.stored[stripeSubscriptionID], nil
}

func (s *stubBillingRepo) FindLatestByUser(ctx context.Context, userID uuid.UUID) (*models.BillingSubscription, error) {
	return nil, nil
}

type stubUserRepo struct {
	byID       map[uuid.UUID]*models.User
	byCustomer map[string]*models.User
	updates    map[uuid.UUID][]map[string]any
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byID:       map[uuid.UUID]*models.User{},
		byCustomer: map[string]*models.User{},
		updates:    map[uuid.UUID][]map[string]any{},
	}
}

func (s *stubUserRepo) add(user *models.User) {
	s.byID[user.ID] = user
	if user.StripeCustomerID != nil {
		s.byCustomer[*user.StripeCustomerID] = user
	}
}

func (s *stubUserRepo) WithTx(tx *gorm.DB) users.Repository { return s }

func (s *stubUserRepo) Create(ctx context.Context, user *models.User) error { return nil }

func (s *stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.byID[id], nil
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, nil
}

func (s *stubUserRepo) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	return s.byCustomer[customerID], nil
}

func (s *stubUserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.updates[id] = append(s.updates[id], updates)
	return nil
}

func (s *stubUserRepo) SetVerification(ctx context.Context, id uuid.UUID, number, hash string, sentAt time.Time) error {
	return nil
}

func (s *stubUserRepo) MarkWhatsAppValidated(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubUserRepo) ConsumeSummaryCredit(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubUserRepo) RefundSummaryCredit(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubUserRepo) ListQuotaResetDue(ctx context.Context, now time.Time, limit int) ([]models.User, error) {
	return nil, nil
}

func (s *stubUserRepo) ResetQuota(ctx context.Context, id uuid.UUID, nextReset time.Time) error {
	return nil
}

func (s *stubUserRepo) ExportSubscriptions(ctx context.Context, userID uuid.UUID) ([]models.UserChannel, error) {
	return nil, nil
}

func (s *stubUserRepo) ExportNotifications(ctx context.Context, userID uuid.UUID) ([]models.VideoNotification, error) {
	return nil, nil
}

func (s *stubUserRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubFetcher struct {
	sub *stripe.Subscription
	err error
}

func (s *stubFetcher) GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return s.sub, s.err
}

func newWebhookService(t *testing.T, billingRepo billing.Repository, userRepo users.Repository, fetcher subscriptionFetcher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		BillingRepo:       billingRepo,
		UserRepo:          userRepo,
		StripeClient:      fetcher,
		TransactionRunner: stubTxRunner{},
		Logger:            logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func subscriptionEvent(t *testing.T, eventType stripe.EventType, sub map[string]any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal event payload: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func activeSubPayload(customerID, userID string) map[string]any {
	return map[string]any{
		"id":       "sub_123",
		"status":   "active",
		"customer": map[string]any{"id": customerID},
		"metadata": map[string]string{"user_id": userID},
		"items": map[string]any{
			"data": []map[string]any{
				{
					"current_period_start": time.Now().UTC().Unix(),
					"current_period_end":   time.Now().UTC().AddDate(0, 1, 0).Unix(),
					"price": map[string]any{
						"id":          "price_monthly",
						"unit_amount": 999,
						"nickname":    "monthly",
					},
				},
			},
		},
	}
}

func TestHandleSubscriptionCreatedSyncsRowAndUser(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "u@example.com"}
	userRepo := newStubUserRepo()
	userRepo.add(user)
	billingRepo := &stubBillingRepo{}

	svc := newWebhookService(t, billingRepo, userRepo, &stubFetcher{})
	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionCreated,
		activeSubPayload("cus_123", user.ID.String()))

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if len(billingRepo.upserted) != 1 {
		t.Fatalf("expected one upsert, got %d", len(billingRepo.upserted))
	}
	row := billingRepo.upserted[0]
	if row.UserID != user.ID || row.StripeSubscriptionID != "sub_123" || row.Status != enums.SubscriptionActive {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.PriceID == nil || *row.PriceID != "price_monthly" {
		t.Fatalf("expected price id mapped, got %v", row.PriceID)
	}

	updates := userRepo.updates[user.ID]
	if len(updates) != 1 {
		t.Fatalf("expected one user update, got %d", len(updates))
	}
	if updates[0]["subscription_status"] != enums.SubscriptionActive {
		t.Fatalf("expected active status, got %v", updates[0])
	}
	if updates[0]["monthly_summary_limit"] != paidMonthlySummaryLimit {
		t.Fatalf("expected limit bump on activation, got %v", updates[0])
	}
}

func TestHandleSubscriptionDeletedMapsCanceledWithoutBump(t *testing.T) {
	customerID := "cus_del"
	user := &models.User{ID: uuid.New(), Email: "u@example.com", StripeCustomerID: &customerID}
	userRepo := newStubUserRepo()
	userRepo.add(user)
	billingRepo := &stubBillingRepo{}

	payload := activeSubPayload(customerID, "")
	payload["status"] = "canceled"
	delete(payload, "metadata")

	svc := newWebhookService(t, billingRepo, userRepo, &stubFetcher{})
	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionDeleted, payload)

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	updates := userRepo.updates[user.ID]
	if len(updates) != 1 || updates[0]["subscription_status"] != enums.SubscriptionCanceled {
		t.Fatalf("expected canceled status, got %v", updates)
	}
	if _, bumped := updates[0]["monthly_summary_limit"]; bumped {
		t.Fatal("cancellation must not touch limits")
	}
}

func TestHandleInvoicePaidFetchesSubscription(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "u@example.com"}
	userRepo := newStubUserRepo()
	userRepo.add(user)
	billingRepo := &stubBillingRepo{}

	fetched := &stripe.Subscription{
		ID:       "sub_inv",
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: "cus_inv"},
		Metadata: map[string]string{"user_id": user.ID.String()},
	}
	svc := newWebhookService(t, billingRepo, userRepo, &stubFetcher{sub: fetched})

	raw, _ := json.Marshal(map[string]any{
		"parent": map[string]any{
			"type": "subscription_details",
			"subscription_details": map[string]any{
				"subscription": "sub_inv",
			},
		},
	})
	event := &stripe.Event{
		ID:   "evt_invoice",
		Type: stripe.EventTypeInvoicePaid,
		Data: &stripe.EventData{Raw: raw},
	}

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(billingRepo.upserted) != 1 || billingRepo.upserted[0].StripeSubscriptionID != "sub_inv" {
		t.Fatalf("expected fetched subscription synced, got %+v", billingRepo.upserted)
	}
}

func TestHandleInvoicePaidWithoutSubscriptionIsNoOp(t *testing.T) {
	userRepo := newStubUserRepo()
	billingRepo := &stubBillingRepo{}
	fetcher := &stubFetcher{}
	svc := newWebhookService(t, billingRepo, userRepo, fetcher)

	for _, raw := range [][]byte{
		[]byte(`{"parent": null, "amount_due": 500}`),
		[]byte(`{"parent": {"type": "quote_details", "quote_details": {"quote": "qt_1"}}}`),
	} {
		event := &stripe.Event{
			ID:   "evt_oneoff",
			Type: stripe.EventTypeInvoicePaid,
			Data: &stripe.EventData{Raw: raw},
		}
		if err := svc.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
	}
	if len(billingRepo.upserted) != 0 {
		t.Fatalf("expected no sync for non-subscription invoice, got %+v", billingRepo.upserted)
	}
}

func TestHandleCheckoutCompletedPinsCustomer(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "u@example.com"}
	userRepo := newStubUserRepo()
	userRepo.add(user)

	raw, _ := json.Marshal(map[string]any{
		"client_reference_id": user.ID.String(),
		"customer":            map[string]any{"id": "cus_pin"},
	})
	event := &stripe.Event{
		ID:   "evt_checkout",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	}

	svc := newWebhookService(t, &stubBillingRepo{}, userRepo, &stubFetcher{})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	updates := userRepo.updates[user.ID]
	if len(updates) != 1 || updates[0]["stripe_customer_id"] != "cus_pin" {
		t.Fatalf("expected customer pinned, got %v", updates)
	}
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	svc := newWebhookService(t, &stubBillingRepo{}, newStubUserRepo(), &stubFetcher{})

	event := &stripe.Event{
		ID:   "evt_other",
		Type: stripe.EventType("charge.refunded"),
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

type fakeIdempotencyStore struct {
	keys map[string]bool
}

func (f *fakeIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	if f.keys[key] {
		return "1", nil
	}
	return "", errors.New("missing")
}

func (f *fakeIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "td:idemp:" + scope + ":" + id
}

func (f *fakeIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func TestIdempotencyGuardDeduplicatesAndReleases(t *testing.T) {
	guard, err := NewIdempotencyGuard(&fakeIdempotencyStore{}, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("NewIdempotencyGuard: %v", err)
	}
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	if err != nil || seen {
		t.Fatalf("first delivery should be fresh, seen=%v err=%v", seen, err)
	}
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	if err != nil || !seen {
		t.Fatalf("redelivery should be detected, seen=%v err=%v", seen, err)
	}

	if err := guard.Delete(ctx, "evt_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	if err != nil || seen {
		t.Fatalf("released event should be retryable, seen=%v err=%v", seen, err)
	}
}
