package enums

// SubscriptionStatus mirrors the subscription_status Postgres enum.
type SubscriptionStatus string

const (
	SubscriptionInactive   SubscriptionStatus = "inactive"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

// Deliverable reports whether a user in this status should receive
// WhatsApp deliveries.
func (s SubscriptionStatus) Deliverable() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// SummaryFrequency is the user's onboarding preference for digest cadence.
type SummaryFrequency string

const (
	FrequencyInstant SummaryFrequency = "instant"
	FrequencyDaily   SummaryFrequency = "daily"
	FrequencyWeekly  SummaryFrequency = "weekly"
)

// Valid reports whether the value is a known frequency.
func (f SummaryFrequency) Valid() bool {
	switch f {
	case FrequencyInstant, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}
