package catalog

import (
	"time"

	"github.com/google/uuid"
)

const (
	// Unlimited indicates no limit for a grant or tool quota (-1 chosen for SQL compatibility)
	Unlimited int64 = -1
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

// BillingInterval represents the billing frequency for a subscription plan.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// Valid reports whether the interval is one of the supported billing frequencies.
func (i BillingInterval) Valid() bool {
	return i == IntervalMonthly || i == IntervalYearly
}

// Plan describes a subscription plan: pricing per interval, marketing
// features, and the provider price IDs used to match checkout sessions
// and webhook events back to the plan.
//
// Plans are versioned by replacement. Rows are never hard-deleted while
// subscriptions reference them; retirement flips IsActive instead.
type Plan struct {
	ID                     uuid.UUID `json:"id"`
	Name                   string    `json:"name"`
	Description            string    `json:"description"`
	PriceMonthly           Money     `json:"price_monthly"`
	PriceYearly            Money     `json:"price_yearly"`
	ProviderPriceIDMonthly string    `json:"provider_price_id_monthly,omitempty"` // billing provider price ID for the monthly interval
	ProviderPriceIDYearly  string    `json:"provider_price_id_yearly,omitempty"`  // billing provider price ID for the yearly interval
	Features               []string  `json:"features,omitempty"`
	ToolLimit              int64     `json:"tool_limit"` // number of distinct tools the plan covers, Unlimited for all
	IsActive               bool      `json:"is_active"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// PriceIDForInterval returns the provider price ID matching the given interval.
func (p Plan) PriceIDForInterval(interval BillingInterval) string {
	if interval == IntervalYearly {
		return p.ProviderPriceIDYearly
	}
	return p.ProviderPriceIDMonthly
}

// Tool is an invocable product feature. Premium tools are gated by the
// entitlement evaluator; non-premium tools are never gated.
type Tool struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Icon           string    `json:"icon,omitempty"`
	IsPremium      bool      `json:"is_premium"`
	FreeUsageLimit int64     `json:"free_usage_limit"` // monthly quota for premium tools without a subscription
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ToolGrant maps a (plan, tool) pair to a usage limit. Absence of a
// grant means the plan does not include the tool at all. The pair is
// unique per plan.
type ToolGrant struct {
	PlanID     uuid.UUID
	ToolID     uuid.UUID
	UsageLimit int64 // Unlimited for uncapped access
}
