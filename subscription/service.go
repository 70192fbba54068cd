package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/toolstack/toolstack/billing"
	"github.com/toolstack/toolstack/catalog"
	"github.com/toolstack/toolstack/identity"
)

// Service drives the user-facing subscription flows: checkout, the
// customer portal, cancellation, and summaries. State transitions
// triggered by the provider are handled by the Reconciler instead.
type Service struct {
	store    Store
	payments PaymentStore
	plans    catalog.PlanReader
	users    identity.Store
	provider billing.Provider
	log      *slog.Logger
}

// NewService creates a subscription service. Panics if any dependency is nil.
func NewService(
	store Store,
	payments PaymentStore,
	plans catalog.PlanReader,
	users identity.Store,
	provider billing.Provider,
	log *slog.Logger,
) *Service {
	if store == nil {
		panic("subscription: store is required")
	}
	if payments == nil {
		panic("subscription: payment store is required")
	}
	if plans == nil {
		panic("subscription: plan reader is required")
	}
	if users == nil {
		panic("subscription: user store is required")
	}
	if provider == nil {
		panic("subscription: billing provider is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		payments: payments,
		plans:    plans,
		users:    users,
		provider: provider,
		log:      log,
	}
}

// CheckoutParams describes a checkout request for a plan and interval.
type CheckoutParams struct {
	PlanID     uuid.UUID
	Interval   catalog.BillingInterval
	SuccessURL string
	CancelURL  string
}

// Checkout creates a hosted checkout session for the given plan. The
// provider customer is created lazily on first checkout and its
// reference persisted on the user.
func (s *Service) Checkout(ctx context.Context, user *identity.User, params CheckoutParams) (*billing.CheckoutLink, error) {
	plan, err := s.plans.GetPlan(ctx, params.PlanID)
	if err != nil {
		return nil, err
	}

	interval := params.Interval
	if !interval.Valid() {
		interval = catalog.IntervalMonthly
	}
	priceID := plan.PriceIDForInterval(interval)
	if priceID == "" {
		return nil, ErrNoPriceForInterval
	}

	customerRef := user.BillingCustomerID
	if customerRef == "" {
		customerRef, err = s.provider.EnsureCustomer(ctx, user.Email, user.Name)
		if err != nil {
			return nil, err
		}
		if err := s.users.SetCustomerRef(ctx, user.ID, customerRef); err != nil {
			return nil, errors.Join(ErrFailedToSave, err)
		}
	}

	link, err := s.provider.CreateCheckoutLink(ctx, billing.CheckoutRequest{
		CustomerRef: customerRef,
		PriceID:     priceID,
		SuccessURL:  params.SuccessURL,
		CancelURL:   params.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "checkout session created",
		slog.String("user_id", user.ID.String()),
		slog.String("plan_id", plan.ID.String()),
		slog.String("interval", string(interval)))
	return link, nil
}

// PortalLink returns a customer portal session for the user. Fails with
// ErrNoBillingAccount for users who never went through checkout.
func (s *Service) PortalLink(ctx context.Context, user *identity.User, returnURL string) (*billing.PortalLink, error) {
	if user.BillingCustomerID == "" {
		return nil, ErrNoBillingAccount
	}

	req := billing.PortalRequest{
		CustomerRef: user.BillingCustomerID,
		ReturnURL:   returnURL,
	}
	if sub, err := s.store.GetActiveByUser(ctx, user.ID, time.Now()); err == nil {
		req.SubscriptionRef = sub.ProviderSubID
	}
	return s.provider.CreatePortalLink(ctx, req)
}

// Cancel cancels the user's governing subscription. With atPeriodEnd the
// row only gets flagged and the provider drives the eventual deletion;
// otherwise the row is canceled immediately with EndDate stamped now.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, atPeriodEnd bool) (*Subscription, error) {
	now := time.Now().UTC()
	sub, err := s.store.GetActiveByUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	// The flag is set in both modes; immediate cancellation additionally
	// ends the row right away instead of waiting for the provider.
	sub.CancelAtPeriodEnd = true
	if !atPeriodEnd {
		sub.Status = StatusCanceled
		sub.EndDate = &now
	}
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, errors.Join(ErrFailedToSave, err)
	}

	s.log.InfoContext(ctx, "subscription canceled",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("user_id", userID.String()),
		slog.Bool("at_period_end", atPeriodEnd))
	return sub, nil
}

// GetCurrent returns the user's governing subscription at the current
// instant, or ErrNoActiveSubscription.
func (s *Service) GetCurrent(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.store.GetActiveByUser(ctx, userID, time.Now())
}

// Summarize resolves the plan name and builds the API-facing summary.
func (s *Service) Summarize(ctx context.Context, sub *Subscription) (*Summary, error) {
	planName := ""
	if plan, err := s.plans.GetPlan(ctx, sub.PlanID); err == nil {
		planName = plan.Name
	} else if !errors.Is(err, catalog.ErrPlanNotFound) {
		return nil, err
	}

	return &Summary{
		ID:                sub.ID,
		PlanName:          planName,
		Status:            sub.Status,
		Interval:          sub.Interval,
		StartDate:         sub.StartDate,
		EndDate:           sub.EndDate,
		TrialEnd:          sub.TrialEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}, nil
}

// ListPayments returns the user's payment history, newest first.
func (s *Service) ListPayments(ctx context.Context, userID uuid.UUID) ([]Payment, error) {
	return s.payments.ListByUser(ctx, userID)
}

// ListSubscriptions is the admin listing, optionally filtered by status.
func (s *Service) ListSubscriptions(ctx context.Context, status Status, limit, offset int) ([]Subscription, error) {
	return s.store.List(ctx, status, limit, offset)
}
