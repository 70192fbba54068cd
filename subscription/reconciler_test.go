package subscription_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolstack/toolstack/billing"
	"github.com/toolstack/toolstack/catalog"
	"github.com/toolstack/toolstack/identity"
	"github.com/toolstack/toolstack/subscription"
)

type reconcilerFixture struct {
	store      subscription.Store
	payments   subscription.PaymentStore
	users      identity.Store
	plan       catalog.Plan
	yearlyPlan catalog.Plan
	user       identity.User
	reconciler *subscription.Reconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	ctx := context.Background()

	repo := catalog.NewMemoryRepository()
	plan, err := repo.CreatePlan(ctx, catalog.Plan{
		Name:                   "Starter",
		ProviderPriceIDMonthly: "pri_starter_m",
		ProviderPriceIDYearly:  "pri_starter_y",
		IsActive:               true,
	})
	require.NoError(t, err)
	yearlyPlan, err := repo.CreatePlan(ctx, catalog.Plan{
		Name:                   "Pro",
		ProviderPriceIDMonthly: "pri_pro_m",
		ProviderPriceIDYearly:  "pri_pro_y",
		IsActive:               true,
	})
	require.NoError(t, err)

	user := identity.User{
		ID:                uuid.New(),
		Email:             "jo@example.com",
		BillingCustomerID: "ctm_123",
		IsActive:          true,
	}

	store := subscription.NewMemoryStore()
	payments := subscription.NewMemoryPaymentStore()
	users := identity.NewMemoryStore(user)

	return &reconcilerFixture{
		store:      store,
		payments:   payments,
		users:      users,
		plan:       plan,
		yearlyPlan: yearlyPlan,
		user:       user,
		reconciler: subscription.NewReconciler(store, payments, repo, users, slog.Default()),
	}
}

func createdEvent(f *reconcilerFixture) *billing.Event {
	return &billing.Event{
		Type:            billing.EventSubscriptionCreated,
		EventID:         "evt_1",
		SubscriptionRef: "sub_123",
		CustomerRef:     f.user.BillingCustomerID,
		Status:          "active",
		PriceID:         "pri_starter_m",
		Interval:        catalog.IntervalMonthly,
	}
}

func TestReconciler_SubscriptionCreated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)

	require.NoError(t, f.reconciler.Apply(ctx, createdEvent(f)))

	sub, err := f.store.GetByProviderRef(ctx, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, sub.UserID)
	assert.Equal(t, f.plan.ID, sub.PlanID)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, catalog.IntervalMonthly, sub.Interval)
}

func TestReconciler_CreatedRedeliveryTargetsSameRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)

	require.NoError(t, f.reconciler.Apply(ctx, createdEvent(f)))
	require.NoError(t, f.reconciler.Apply(ctx, createdEvent(f)))

	subs, err := f.store.ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestReconciler_UnknownCustomerSwallowed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)

	event := createdEvent(f)
	event.CustomerRef = "ctm_ghost"

	// Unknown references must ack with nil so the provider stops retrying.
	require.NoError(t, f.reconciler.Apply(ctx, event))

	subs, err := f.store.ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestReconciler_UnmatchedPriceOnCreateSwallowed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)

	event := createdEvent(f)
	event.PriceID = "pri_unknown"

	require.NoError(t, f.reconciler.Apply(ctx, event))

	subs, err := f.store.ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestReconciler_UpdateOverwritesState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)
	require.NoError(t, f.reconciler.Apply(ctx, createdEvent(f)))

	periodStart := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	require.NoError(t, f.reconciler.Apply(ctx, &billing.Event{
		Type:               billing.EventSubscriptionUpdated,
		EventID:            "evt_2",
		SubscriptionRef:    "sub_123",
		Status:             "active",
		PriceID:            "pri_starter_m",
		Interval:           catalog.IntervalMonthly,
		CancelAtPeriodEnd:  true,
		CurrentPeriodStart: periodStart,
	}))

	sub, err := f.store.GetByProviderRef(ctx, "sub_123")
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.True(t, periodStart.Equal(sub.StartDate))
}

func TestReconciler_UpdateSwitchesPlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)
	require.NoError(t, f.reconciler.Apply(ctx, createdEvent(f)))

	require.NoError(t, f.reconciler.Apply(ctx, &billing.Event{
		Type:            billing.EventSubscriptionUpdated,
		EventID:         "evt_2",
		SubscriptionRef: "sub_123",
		Status:          "active",
		PriceID:         "pri_pro_y",
		Interval:        catalog.IntervalYearly,
	}))

	sub, err := f.store.GetByProviderRef(ctx, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, f.yearlyPlan.ID, sub.PlanID)
	assert.Equal(t, catalog.IntervalYearly, sub.Interval)
}

func TestReconciler_UpdateUnmatchedPriceKeepsPlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)
	require.NoError(t, f.reconciler.Apply(ctx, createdEvent(f)))

	require.NoError(t, f.reconciler.Apply(ctx, &billing.Event{
		Type:            billing.EventSubscriptionUpdated,
		EventID:         "evt_2",
		SubscriptionRef: "sub_123",
		Status:          "active",
		PriceID:         "pri_retired",
		Interval:        catalog.IntervalMonthly,
	}))

	sub, err := f.store.GetByProviderRef(ctx, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, f.plan.ID, sub.PlanID)
}

func TestReconciler_UpdateUnknownSubscriptionSwallowed(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture(t)
	require.NoError(t, f.reconciler.Apply(context.Background(), &billing.Event{
		Type:            billing.EventSubscriptionUpdated,
		EventID:         "evt_9",
		SubscriptionRef: "sub_ghost",
		Status:          "active",
	}))
}

func TestReconciler_DeletedCancelsAndIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)
	require.NoError(t, f.reconciler.Apply(ctx, createdEvent(f)))

	deleted := &billing.Event{
		Type:            billing.EventSubscriptionDeleted,
		EventID:         "evt_3",
		SubscriptionRef: "sub_123",
	}
	require.NoError(t, f.reconciler.Apply(ctx, deleted))
	require.NoError(t, f.reconciler.Apply(ctx, deleted))

	sub, err := f.store.GetByProviderRef(ctx, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, sub.Status)
	require.NotNil(t, sub.EndDate)

	subs, err := f.store.ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestReconciler_PaymentFailedMarksPastDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)
	require.NoError(t, f.reconciler.Apply(ctx, createdEvent(f)))

	nextAttempt := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, f.reconciler.Apply(ctx, &billing.Event{
		Type:               billing.EventPaymentFailed,
		EventID:            "evt_4",
		SubscriptionRef:    "sub_123",
		CustomerRef:        f.user.BillingCustomerID,
		Amount:             2900,
		Currency:           "USD",
		InvoiceID:          "inv_1",
		AttemptCount:       2,
		NextPaymentAttempt: &nextAttempt,
	}))

	sub, err := f.store.GetByProviderRef(ctx, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, sub.Status)

	payments, err := f.payments.ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, subscription.PaymentFailed, payments[0].Status)
	assert.InDelta(t, 29.00, payments[0].Amount, 0.001)

	// Retry metadata from the provider survives on the ledger row.
	assert.Equal(t, 2, payments[0].Details["attempt_count"])
	assert.Equal(t, nextAttempt, payments[0].Details["next_payment_attempt"])
}

// A successful payment never reactivates a past_due subscription by
// itself; only the provider's subscription update does that.
func TestReconciler_PaymentSucceededDoesNotReactivate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)
	require.NoError(t, f.reconciler.Apply(ctx, createdEvent(f)))

	failed := &billing.Event{
		Type:            billing.EventPaymentFailed,
		EventID:         "evt_4",
		SubscriptionRef: "sub_123",
		CustomerRef:     f.user.BillingCustomerID,
		InvoiceID:       "inv_1",
	}
	require.NoError(t, f.reconciler.Apply(ctx, failed))

	require.NoError(t, f.reconciler.Apply(ctx, &billing.Event{
		Type:            billing.EventPaymentSucceeded,
		EventID:         "evt_5",
		SubscriptionRef: "sub_123",
		CustomerRef:     f.user.BillingCustomerID,
		Amount:          2900,
		Currency:        "USD",
		InvoiceID:       "inv_2",
	}))

	sub, err := f.store.GetByProviderRef(ctx, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, sub.Status)
}

// Payment events carry no idempotency handling: a redelivered invoice
// event appends another ledger row.
func TestReconciler_RedeliveredPaymentAppendsAgain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)
	require.NoError(t, f.reconciler.Apply(ctx, createdEvent(f)))

	succeeded := &billing.Event{
		Type:            billing.EventPaymentSucceeded,
		EventID:         "evt_6",
		SubscriptionRef: "sub_123",
		CustomerRef:     f.user.BillingCustomerID,
		Amount:          2900,
		Currency:        "USD",
		InvoiceID:       "inv_3",
	}
	require.NoError(t, f.reconciler.Apply(ctx, succeeded))
	require.NoError(t, f.reconciler.Apply(ctx, succeeded))

	payments, err := f.payments.ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestReconciler_PaymentForUnknownCustomerSwallowed(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture(t)
	require.NoError(t, f.reconciler.Apply(context.Background(), &billing.Event{
		Type:        billing.EventPaymentSucceeded,
		EventID:     "evt_7",
		CustomerRef: "ctm_ghost",
		InvoiceID:   "inv_4",
	}))

	payments, err := f.payments.ListByUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

// A payment referencing a subscription that was never synced is dropped
// without appending an orphan ledger row.
func TestReconciler_PaymentForUnknownSubscriptionSwallowed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)

	require.NoError(t, f.reconciler.Apply(ctx, &billing.Event{
		Type:            billing.EventPaymentSucceeded,
		EventID:         "evt_8",
		SubscriptionRef: "sub_never_seen",
		CustomerRef:     f.user.BillingCustomerID,
		Amount:          2900,
		Currency:        "USD",
		InvoiceID:       "inv_5",
	}))

	payments, err := f.payments.ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestReconciler_TrialingStatusStoredAsActive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newReconcilerFixture(t)

	trialEnd := time.Now().Add(14 * 24 * time.Hour)
	event := createdEvent(f)
	event.Status = "trialing"
	event.TrialEnd = &trialEnd

	require.NoError(t, f.reconciler.Apply(ctx, event))

	sub, err := f.store.GetByProviderRef(ctx, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	require.NotNil(t, sub.TrialEnd)
	assert.True(t, sub.IsTrialing(time.Now()))
}
