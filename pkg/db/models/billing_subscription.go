package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mgastelum/tubedigest-backend/pkg/enums"
)

// BillingSubscription persists Stripe subscription state per user.
// Rows are created and updated exclusively by billing webhook events.
type BillingSubscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;not null;unique"`
	StripeCustomerID     string                   `gorm:"column:stripe_customer_id;not null"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'incomplete'"`
	PlanName             *string                  `gorm:"column:plan_name"`
	PriceID              *string                  `gorm:"column:price_id"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd     time.Time                `gorm:"column:current_period_end;not null"`
	AmountCents          int64                    `gorm:"column:amount_cents;not null;default:0"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	Metadata             json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
