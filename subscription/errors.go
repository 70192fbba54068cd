package subscription

import "errors"

var (
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("subscription already exists")
	ErrNoActiveSubscription      = errors.New("no active subscription found")

	ErrNoBillingAccount      = errors.New("user has no billing account with the provider")
	ErrNoPriceForInterval    = errors.New("plan has no price for the requested billing interval")
	ErrFailedToSave          = errors.New("failed to save subscription")
	ErrFailedToAppendPayment = errors.New("failed to append payment record")
)
