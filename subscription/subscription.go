package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/toolstack/toolstack/catalog"
)

// Status is the lifecycle state of a subscription row. There is no
// explicit trialing state: a trial is an active subscription with
// TrialEnd set.
type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Subscription is one billing agreement between a user and a plan.
// A user accumulates historical rows over time; at most one row governs
// at any instant (see GovernsAt). Canceled rows are terminal; renewed
// access always means a new row.
type Subscription struct {
	ID                uuid.UUID               `json:"id"`
	UserID            uuid.UUID               `json:"user_id"`
	PlanID            uuid.UUID               `json:"plan_id"`
	ProviderSubID     string                  `json:"provider_subscription_id,omitempty"` // empty until first sync
	Status            Status                  `json:"status"`
	Interval          catalog.BillingInterval `json:"billing_interval"`
	StartDate         time.Time               `json:"start_date"` // treated as current period start, moved forward by provider updates
	EndDate           *time.Time              `json:"end_date,omitempty"`
	TrialEnd          *time.Time              `json:"trial_end,omitempty"`
	CancelAtPeriodEnd bool                    `json:"cancel_at_period_end"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// GovernsAt reports whether this row is the user's governing
// subscription at the given instant: active and not yet past its end.
func (s *Subscription) GovernsAt(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	return s.EndDate == nil || s.EndDate.After(now)
}

// IsTrialing reports whether the subscription is inside its trial window.
func (s *Subscription) IsTrialing(now time.Time) bool {
	return s.TrialEnd != nil && now.Before(*s.TrialEnd)
}

// PaymentStatus is the outcome of one invoice payment attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is an append-only record of a provider payment event. Rows
// are created only by the billing-event reconciler, never by users.
// Amount is in major currency units (the provider reports minor units).
type Payment struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	SubscriptionID    *uuid.UUID
	ProviderPaymentID string
	Amount            float64
	Currency          string
	Status            PaymentStatus
	Details           map[string]any
	CreatedAt         time.Time
}

// Summary is the well-typed subscription shape handed to the API layer,
// replacing per-endpoint ad hoc maps.
type Summary struct {
	ID                uuid.UUID               `json:"id"`
	PlanName          string                  `json:"plan_name"`
	Status            Status                  `json:"status"`
	Interval          catalog.BillingInterval `json:"billing_interval"`
	StartDate         time.Time               `json:"start_date"`
	EndDate           *time.Time              `json:"end_date,omitempty"`
	TrialEnd          *time.Time              `json:"trial_end,omitempty"`
	CancelAtPeriodEnd bool                    `json:"cancel_at_period_end"`
}
