package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/toolstack/toolstack/billing"
	"github.com/toolstack/toolstack/catalog"
	"github.com/toolstack/toolstack/identity"
)

// Reconciler applies normalized billing events to the subscription
// store. Events are applied last-write-wins in delivery order; the
// provider retries on non-2xx, so only transient failures (store or
// lookup errors) are surfaced. Events referencing unknown customers or
// subscriptions are logged and swallowed so the provider stops
// redelivering them.
type Reconciler struct {
	store    Store
	payments PaymentStore
	plans    catalog.PlanReader
	users    identity.Store
	log      *slog.Logger
}

// NewReconciler creates a billing-event reconciler. Panics if any
// dependency is nil.
func NewReconciler(
	store Store,
	payments PaymentStore,
	plans catalog.PlanReader,
	users identity.Store,
	log *slog.Logger,
) *Reconciler {
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
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		store:    store,
		payments: payments,
		plans:    plans,
		users:    users,
		log:      log,
	}
}

// Apply dispatches one normalized event. Unknown event types are
// acknowledged without action.
func (r *Reconciler) Apply(ctx context.Context, event *billing.Event) error {
	switch event.Type {
	case billing.EventSubscriptionCreated:
		return r.applyCreated(ctx, event)
	case billing.EventSubscriptionUpdated:
		return r.applyUpdated(ctx, event)
	case billing.EventSubscriptionDeleted:
		return r.applyDeleted(ctx, event)
	case billing.EventPaymentSucceeded:
		return r.applyPayment(ctx, event, PaymentSucceeded)
	case billing.EventPaymentFailed:
		return r.applyPayment(ctx, event, PaymentFailed)
	default:
		r.log.InfoContext(ctx, "ignoring billing event",
			slog.String("event_type", event.ProviderEvent),
			slog.String("event_id", event.EventID))
		return nil
	}
}

func (r *Reconciler) applyCreated(ctx context.Context, event *billing.Event) error {
	user, err := r.users.GetByCustomerRef(ctx, event.CustomerRef)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			r.log.WarnContext(ctx, "billing event for unknown customer",
				slog.String("event_id", event.EventID),
				slog.String("customer_ref", event.CustomerRef))
			return nil
		}
		return err
	}

	plan, err := r.plans.FindPlanByPriceID(ctx, event.PriceID, event.Interval)
	if err != nil {
		if errors.Is(err, catalog.ErrPlanNotFound) {
			r.log.WarnContext(ctx, "billing event with unmatched price",
				slog.String("event_id", event.EventID),
				slog.String("price_id", event.PriceID),
				slog.String("interval", string(event.Interval)))
			return nil
		}
		return err
	}

	// Redelivered created events target the already-synced row.
	if existing, err := r.store.GetByProviderRef(ctx, event.SubscriptionRef); err == nil {
		r.syncFromEvent(existing, event)
		existing.PlanID = plan.ID
		existing.Interval = event.Interval
		if err := r.store.Update(ctx, existing); err != nil {
			return errors.Join(ErrFailedToSave, err)
		}
		return nil
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return err
	}

	sub := &Subscription{
		UserID:        user.ID,
		PlanID:        plan.ID,
		ProviderSubID: event.SubscriptionRef,
		Interval:      event.Interval,
		StartDate:     time.Now().UTC(),
	}
	r.syncFromEvent(sub, event)
	if err := r.store.Create(ctx, sub); err != nil {
		if errors.Is(err, ErrSubscriptionAlreadyExists) {
			return nil
		}
		return errors.Join(ErrFailedToSave, err)
	}

	r.log.InfoContext(ctx, "subscription created from billing event",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("user_id", user.ID.String()),
		slog.String("plan_id", plan.ID.String()))
	return nil
}

func (r *Reconciler) applyUpdated(ctx context.Context, event *billing.Event) error {
	sub, err := r.store.GetByProviderRef(ctx, event.SubscriptionRef)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			r.log.WarnContext(ctx, "billing event for unknown subscription",
				slog.String("event_id", event.EventID),
				slog.String("subscription_ref", event.SubscriptionRef))
			return nil
		}
		return err
	}

	r.syncFromEvent(sub, event)

	// Plan switches arrive as updates carrying the new price. An
	// unmatched price leaves the current plan in place.
	if event.PriceID != "" {
		plan, err := r.plans.FindPlanByPriceID(ctx, event.PriceID, event.Interval)
		switch {
		case err == nil:
			sub.PlanID = plan.ID
			sub.Interval = event.Interval
		case errors.Is(err, catalog.ErrPlanNotFound):
			r.log.WarnContext(ctx, "update with unmatched price, keeping current plan",
				slog.String("event_id", event.EventID),
				slog.String("price_id", event.PriceID))
		default:
			return err
		}
	}

	if err := r.store.Update(ctx, sub); err != nil {
		return errors.Join(ErrFailedToSave, err)
	}
	return nil
}

func (r *Reconciler) applyDeleted(ctx context.Context, event *billing.Event) error {
	sub, err := r.store.GetByProviderRef(ctx, event.SubscriptionRef)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			r.log.WarnContext(ctx, "deletion event for unknown subscription",
				slog.String("event_id", event.EventID),
				slog.String("subscription_ref", event.SubscriptionRef))
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	sub.Status = StatusCanceled
	if sub.EndDate == nil {
		sub.EndDate = &now
	}
	if err := r.store.Update(ctx, sub); err != nil {
		return errors.Join(ErrFailedToSave, err)
	}

	r.log.InfoContext(ctx, "subscription ended by provider",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("event_id", event.EventID))
	return nil
}

// applyPayment appends a ledger row and, on failure, moves the affected
// subscription to past_due. A success never moves past_due back to
// active on its own; the provider's subscription update does that.
func (r *Reconciler) applyPayment(ctx context.Context, event *billing.Event, status PaymentStatus) error {
	user, err := r.users.GetByCustomerRef(ctx, event.CustomerRef)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			r.log.WarnContext(ctx, "payment event for unknown customer",
				slog.String("event_id", event.EventID),
				slog.String("customer_ref", event.CustomerRef))
			return nil
		}
		return err
	}

	var sub *Subscription
	if event.SubscriptionRef != "" {
		found, err := r.store.GetByProviderRef(ctx, event.SubscriptionRef)
		if err != nil {
			if errors.Is(err, ErrSubscriptionNotFound) {
				r.log.WarnContext(ctx, "payment event for unknown subscription",
					slog.String("event_id", event.EventID),
					slog.String("subscription_ref", event.SubscriptionRef))
				return nil
			}
			return err
		}
		sub = found
	}

	details := map[string]any{
		"event_id":       event.EventID,
		"invoice_number": event.InvoiceNumber,
		"attempt_count":  event.AttemptCount,
	}
	if event.NextPaymentAttempt != nil {
		details["next_payment_attempt"] = *event.NextPaymentAttempt
	}

	payment := &Payment{
		UserID:            user.ID,
		ProviderPaymentID: event.InvoiceID,
		Amount:            float64(event.Amount) / 100,
		Currency:          event.Currency,
		Status:            status,
		Details:           details,
	}
	if sub != nil {
		payment.SubscriptionID = &sub.ID
	}
	if err := r.payments.Append(ctx, payment); err != nil {
		return errors.Join(ErrFailedToAppendPayment, err)
	}

	if status == PaymentFailed && sub != nil && sub.Status == StatusActive {
		sub.Status = StatusPastDue
		if err := r.store.Update(ctx, sub); err != nil {
			return errors.Join(ErrFailedToSave, err)
		}
		r.log.WarnContext(ctx, "subscription past due after failed payment",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("user_id", user.ID.String()),
			slog.Int("attempt_count", event.AttemptCount))
	}
	return nil
}

// syncFromEvent copies the provider-reported state onto the row.
func (r *Reconciler) syncFromEvent(sub *Subscription, event *billing.Event) {
	if st := normalizeStatus(event.Status); st != "" {
		sub.Status = st
	}
	if !event.CurrentPeriodStart.IsZero() {
		sub.StartDate = event.CurrentPeriodStart
	}
	sub.CancelAtPeriodEnd = event.CancelAtPeriodEnd
	if event.TrialEnd != nil {
		trial := *event.TrialEnd
		sub.TrialEnd = &trial
	}
	if sub.Status == StatusCanceled && sub.EndDate == nil {
		now := time.Now().UTC()
		sub.EndDate = &now
	}
}

// normalizeStatus maps provider subscription statuses onto the three
// local states. Trials count as active; the trial window lives in
// TrialEnd. Unrecognized statuses leave the row untouched.
func normalizeStatus(providerStatus string) Status {
	switch providerStatus {
	case "active", "trialing":
		return StatusActive
	case "past_due", "paused":
		return StatusPastDue
	case "canceled", "cancelled", "deleted", "expired":
		return StatusCanceled
	default:
		return ""
	}
}
