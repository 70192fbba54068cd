package billing

import "errors"

var (
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")

	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrMalformedWebhookPayload   = errors.New("malformed webhook payload")

	ErrProviderUnavailable = errors.New("billing provider request failed")
	ErrNoCheckoutURL       = errors.New("no checkout URL returned from provider")
	ErrNoPortalURL         = errors.New("no portal URL returned from provider")
	ErrMissingCustomerRef  = errors.New("provider customer reference is required")
	ErrMissingPriceID      = errors.New("price ID is required")
)
