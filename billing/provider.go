// Package billing abstracts the payment provider behind a small
// interface: hosted checkout, customer portal, and signed webhook
// parsing. The rest of the system only ever sees normalized events.
package billing

import (
	"context"
	"time"

	"github.com/toolstack/toolstack/catalog"
)

// Provider is the outbound interface to the payment provider. Hosted
// checkouts and portals keep card data out of this service entirely.
type Provider interface {
	// EnsureCustomer returns the provider customer reference for the
	// given email, creating the customer if none exists yet.
	EnsureCustomer(ctx context.Context, email, name string) (string, error)

	// CreateCheckoutLink creates a hosted checkout session.
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// CreatePortalLink returns a temporary link to the customer portal
	// where users update payment methods, cancel, or change plans.
	CreatePortalLink(ctx context.Context, req PortalRequest) (*PortalLink, error)

	// ParseWebhook validates the signature and normalizes the payload.
	// An invalid signature must fail here; payload contents are not to
	// be trusted before verification.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	CustomerRef string // provider customer reference
	PriceID     string // provider price ID for the chosen plan and interval
	SuccessURL  string
	CancelURL   string
}

// CheckoutLink represents a hosted checkout session.
type CheckoutLink struct {
	URL       string
	SessionID string
	ExpiresAt time.Time
}

// PortalRequest identifies the customer whose portal session to create.
type PortalRequest struct {
	CustomerRef     string
	SubscriptionRef string
	ReturnURL       string
}

// PortalLink represents a customer portal session.
type PortalLink struct {
	URL       string
	CancelURL string // direct link to the provider's cancellation flow, when available
	ExpiresAt time.Time
}

// EventType is the normalized billing event type. Provider
// implementations map their specific event names onto these.
type EventType string

const (
	EventSubscriptionCreated EventType = "subscription_created"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionDeleted EventType = "subscription_deleted"
	EventPaymentSucceeded    EventType = "payment_succeeded"
	EventPaymentFailed       EventType = "payment_failed"
	EventUnknown             EventType = "unknown"
)

// Event is a normalized webhook event. Fields are populated on a
// best-effort basis from the provider payload; Raw always carries the
// full data object for metadata passthrough.
type Event struct {
	Type          EventType
	ProviderEvent string // original provider event name
	EventID       string // provider's event ID, for log correlation

	SubscriptionRef string // provider's subscription ID
	CustomerRef     string // provider's customer ID
	Status          string // provider-reported subscription status

	PriceID  string // provider price ID of the purchased item
	Interval catalog.BillingInterval

	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	TrialEnd           *time.Time

	// Invoice fields, set on payment events. Amount is in the smallest
	// currency unit as reported by the provider.
	Amount             int64
	Currency           string
	InvoiceID          string
	InvoiceNumber      string
	AttemptCount       int
	NextPaymentAttempt *time.Time

	Raw map[string]any
}
