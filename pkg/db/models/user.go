package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mgastelum/tubedigest-backend/pkg/enums"
)

// User is the canonical identity plus the per-user quota counters the
// fan-out consumes. monthly_summary_used is the only row field mutated
// concurrently; every consume goes through a conditional UPDATE.
type User struct {
	ID                  uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email               string                   `gorm:"type:text;not null;uniqueIndex"`
	DisplayName         string                   `gorm:"column:display_name;not null"`
	WhatsAppNumber      *string                  `gorm:"column:whatsapp_number"`
	WhatsAppValidated   bool                     `gorm:"column:whatsapp_validated;not null;default:false"`
	VerificationHash    *string                  `gorm:"column:verification_hash"`
	VerificationSentAt  *time.Time               `gorm:"column:verification_sent_at"`
	SubscriptionStatus  enums.SubscriptionStatus `gorm:"column:subscription_status;type:subscription_status;not null;default:'inactive'"`
	TrialEndDate        *time.Time               `gorm:"column:trial_end_date"`
	StripeCustomerID    *string                  `gorm:"column:stripe_customer_id"`
	MonthlySummaryLimit int                      `gorm:"column:monthly_summary_limit;not null;default:30"`
	MonthlySummaryUsed  int                      `gorm:"column:monthly_summary_used;not null;default:0"`
	ExtraSummaries      int                      `gorm:"column:extra_summaries;not null;default:0"`
	SummaryResetDate    time.Time                `gorm:"column:summary_reset_date;not null"`
	MaxChannels         int                      `gorm:"column:max_channels;not null;default:3"`
	BusinessType        *string                  `gorm:"column:business_type"`
	ContentInterest     *string                  `gorm:"column:content_interest"`
	SummaryFrequency    *enums.SummaryFrequency  `gorm:"column:summary_frequency;type:text"`
	CreatedAt           time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// QuotaRemaining returns how many summary credits the user still has.
func (u *User) QuotaRemaining() int {
	remaining := u.MonthlySummaryLimit + u.ExtraSummaries - u.MonthlySummaryUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
