package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/toolstack/toolstack/catalog"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider for Paddle.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, errors.Join(ErrInvalidProviderEnvironment, fmt.Errorf("environment %q", cfg.Environment))
	}
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
	}, nil
}

// EnsureCustomer looks a customer up by email and creates one when absent.
func (p *PaddleProvider) EnsureCustomer(ctx context.Context, email, name string) (string, error) {
	if email == "" {
		return "", errors.New("customer email is required")
	}

	var existingID string
	res, err := p.client.CustomersClient.ListCustomers(ctx, &paddle.ListCustomersRequest{
		Email: []string{email},
	})
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	if err := res.Iter(ctx, func(c *paddle.Customer) (bool, error) {
		existingID = c.ID
		return false, nil
	}); err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	if existingID != "" {
		return existingID, nil
	}

	createReq := &paddle.CreateCustomerRequest{Email: email}
	if name != "" {
		createReq.Name = paddle.PtrTo(name)
	}
	customer, err := p.client.CustomersClient.CreateCustomer(ctx, createReq)
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	return customer.ID, nil
}

// CreateCheckoutLink creates a hosted checkout session in Paddle.
func (p *PaddleProvider) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}
	if req.CustomerRef == "" {
		return nil, ErrMissingCustomerRef
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(req.CustomerRef),
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	if transaction.Checkout == nil || transaction.Checkout.URL == nil || *transaction.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutLink{
		URL:       *transaction.Checkout.URL,
		SessionID: transaction.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour), // Paddle checkout links expire in 24 hours
	}, nil
}

// CreatePortalLink returns a link to Paddle's customer portal.
func (p *PaddleProvider) CreatePortalLink(ctx context.Context, req PortalRequest) (*PortalLink, error) {
	if req.CustomerRef == "" {
		return nil, ErrMissingCustomerRef
	}

	sessionReq := &paddle.CreateCustomerPortalSessionRequest{
		CustomerID: req.CustomerRef,
	}
	if req.SubscriptionRef != "" {
		sessionReq.SubscriptionIDs = []string{req.SubscriptionRef}
	}

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, sessionReq)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	link := &PortalLink{
		URL:       session.URLs.General.Overview,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	for _, subURL := range session.URLs.Subscriptions {
		if subURL.ID == req.SubscriptionRef && subURL.CancelSubscription != "" {
			link.CancelURL = subURL.CancelSubscription
			break
		}
	}

	if link.URL == "" {
		return nil, ErrNoPortalURL
	}
	return link, nil
}

// ParseWebhook verifies the Paddle signature and normalizes the payload.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	// The SDK verifier consumes an http.Request, so wrap the raw payload.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	var paddleEvent struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &paddleEvent); err != nil {
		return nil, errors.Join(ErrMalformedWebhookPayload, err)
	}

	return normalizePaddleEvent(paddleEvent.EventID, paddleEvent.EventType, paddleEvent.Data), nil
}

// normalizePaddleEvent maps a verified Paddle payload onto the
// provider-neutral Event shape. Extraction is best-effort: absent or
// oddly shaped fields stay at their zero values and the reconciler
// decides what it can act on.
func normalizePaddleEvent(eventID, eventType string, data map[string]any) *Event {
	event := &Event{
		Type:          mapPaddleEventType(eventType),
		ProviderEvent: eventType,
		EventID:       eventID,
		CustomerRef:   mapString(data, "customer_id"),
		Status:        mapString(data, "status"),
		Currency:      mapString(data, "currency_code"),
		Raw:           data,
	}

	if strings.HasPrefix(eventType, "subscription.") {
		event.SubscriptionRef = mapString(data, "id")
	} else {
		event.SubscriptionRef = mapString(data, "subscription_id")
		event.InvoiceID = mapString(data, "invoice_id")
		event.InvoiceNumber = mapString(data, "invoice_number")
	}

	// Scheduled cancellation shows up as a pending change, not a status.
	if change, ok := data["scheduled_change"].(map[string]any); ok {
		event.CancelAtPeriodEnd = mapString(change, "action") == "cancel"
	}

	if period, ok := data["current_billing_period"].(map[string]any); ok {
		if ts, err := time.Parse(time.RFC3339, mapString(period, "starts_at")); err == nil {
			event.CurrentPeriodStart = ts
		}
	}

	if items, ok := data["items"].([]any); ok && len(items) > 0 {
		if item, ok := items[0].(map[string]any); ok {
			if price, ok := item["price"].(map[string]any); ok {
				event.PriceID = mapString(price, "id")
				if cycle, ok := price["billing_cycle"].(map[string]any); ok {
					event.Interval = mapPaddleInterval(mapString(cycle, "interval"))
				}
			}
			// price_id is the flat form used on transaction items
			if event.PriceID == "" {
				event.PriceID = mapString(item, "price_id")
			}
			if trial, ok := item["trial_dates"].(map[string]any); ok {
				if ts, err := time.Parse(time.RFC3339, mapString(trial, "ends_at")); err == nil {
					event.TrialEnd = &ts
				}
			}
		}
	}

	if details, ok := data["details"].(map[string]any); ok {
		if totals, ok := details["totals"].(map[string]any); ok {
			// Paddle reports totals as strings in the smallest currency unit.
			if amount, err := strconv.ParseInt(mapString(totals, "grand_total"), 10, 64); err == nil {
				event.Amount = amount
			}
			if event.Currency == "" {
				event.Currency = mapString(totals, "currency_code")
			}
		}
	}

	if payments, ok := data["payments"].([]any); ok {
		event.AttemptCount = len(payments)
	}
	if ts, err := time.Parse(time.RFC3339, mapString(data, "next_billed_at")); err == nil {
		event.NextPaymentAttempt = &ts
	}

	return event
}

func mapString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapPaddleEventType(providerEvent string) EventType {
	switch providerEvent {
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.updated", "subscription.activated", "subscription.resumed", "subscription.past_due":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionDeleted
	case "transaction.completed", "transaction.payment_succeeded":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	default:
		return EventUnknown
	}
}

func mapPaddleInterval(interval string) catalog.BillingInterval {
	switch interval {
	case "year", "yearly", "annual":
		return catalog.IntervalYearly
	default:
		return catalog.IntervalMonthly
	}
}
