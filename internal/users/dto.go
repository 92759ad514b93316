package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
	"github.com/mgastelum/tubedigest-backend/pkg/enums"
)

// ProfileView is the transport shape for the authenticated user.
type ProfileView struct {
	ID                 uuid.UUID                `json:"id"`
	Email              string                   `json:"email"`
	DisplayName        string                   `json:"display_name"`
	WhatsAppNumber     *string                  `json:"whatsapp_number,omitempty"`
	WhatsAppValidated  bool                     `json:"whatsapp_validated"`
	SubscriptionStatus enums.SubscriptionStatus `json:"subscription_status"`
	TrialEndDate       *time.Time               `json:"trial_end_date,omitempty"`
	MaxChannels        int                      `json:"max_channels"`
	BusinessType       *string                  `json:"business_type,omitempty"`
	ContentInterest    *string                  `json:"content_interest,omitempty"`
	SummaryFrequency   *enums.SummaryFrequency  `json:"summary_frequency,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
}

// QuotaView reports the user's monthly summary allowance.
type QuotaView struct {
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Extra     int       `json:"extra"`
	Remaining int       `json:"remaining"`
	ResetDate time.Time `json:"reset_date"`
}

// ExportBundle is the JSON dump returned by the export endpoint.
type ExportBundle struct {
	Profile       ProfileView                `json:"profile"`
	Quota         QuotaView                  `json:"quota"`
	Subscriptions []models.UserChannel       `json:"subscriptions"`
	Notifications []models.VideoNotification `json:"notifications"`
	ExportedAt    time.Time                  `json:"exported_at"`
}

func profileFromModel(u *models.User) ProfileView {
	return ProfileView{
		ID:                 u.ID,
		Email:              u.Email,
		DisplayName:        u.DisplayName,
		WhatsAppNumber:     u.WhatsAppNumber,
		WhatsAppValidated:  u.WhatsAppValidated,
		SubscriptionStatus: u.SubscriptionStatus,
		TrialEndDate:       u.TrialEndDate,
		MaxChannels:        u.MaxChannels,
		BusinessType:       u.BusinessType,
		ContentInterest:    u.ContentInterest,
		SummaryFrequency:   u.SummaryFrequency,
		CreatedAt:          u.CreatedAt,
	}
}

func quotaFromModel(u *models.User) QuotaView {
	return QuotaView{
		Limit:     u.MonthlySummaryLimit,
		Used:      u.MonthlySummaryUsed,
		Extra:     u.ExtraSummaries,
		Remaining: u.QuotaRemaining(),
		ResetDate: u.SummaryResetDate,
	}
}
