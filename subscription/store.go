package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store persists subscriptions. Historical rows accumulate per user;
// implementations must keep provider references unique so redelivered
// events target the same row.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	GetByProviderRef(ctx context.Context, providerSubID string) (*Subscription, error)

	// GetActiveByUser returns the row satisfying the governing-subscription
	// predicate at the given instant, or ErrNoActiveSubscription.
	GetActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*Subscription, error)

	ListByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error)
	List(ctx context.Context, status Status, limit, offset int) ([]Subscription, error)
}

// PaymentStore is the append-only payment ledger.
type PaymentStore interface {
	Append(ctx context.Context, payment *Payment) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Payment, error)
}

// PlanSource adapts a Store to the entitlement evaluator's
// ActivePlanSource interface.
type PlanSource struct {
	store Store
}

// NewPlanSource wraps the store for the evaluator.
func NewPlanSource(store Store) *PlanSource {
	return &PlanSource{store: store}
}

// ActivePlanID resolves the plan of the user's governing subscription.
// A user without one is on the free tier, which is not an error.
func (s *PlanSource) ActivePlanID(ctx context.Context, userID uuid.UUID, now time.Time) (uuid.UUID, bool, error) {
	sub, err := s.store.GetActiveByUser(ctx, userID, now)
	if err != nil {
		if errors.Is(err, ErrNoActiveSubscription) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return sub.PlanID, true, nil
}
