package subscription

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore is an in-memory Store for tests and development.
type memoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]Subscription
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{subs: make(map[uuid.UUID]Subscription)}
}

func copySubscription(s Subscription) Subscription {
	if s.EndDate != nil {
		end := *s.EndDate
		s.EndDate = &end
	}
	if s.TrialEnd != nil {
		trial := *s.TrialEnd
		s.TrialEnd = &trial
	}
	return s
}

func (m *memoryStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.ProviderSubID != "" {
		for _, existing := range m.subs {
			if existing.ProviderSubID == sub.ProviderSubID {
				return ErrSubscriptionAlreadyExists
			}
		}
	}

	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	m.subs[sub.ID] = copySubscription(*sub)
	return nil
}

func (m *memoryStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.subs[sub.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}

	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now().UTC()
	m.subs[sub.ID] = copySubscription(*sub)
	return nil
}

func (m *memoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	out := copySubscription(sub)
	return &out, nil
}

func (m *memoryStore) GetByProviderRef(ctx context.Context, providerSubID string) (*Subscription, error) {
	if providerSubID == "" {
		return nil, ErrSubscriptionNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subs {
		if sub.ProviderSubID == providerSubID {
			out := copySubscription(sub)
			return &out, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (m *memoryStore) GetActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var newest *Subscription
	for _, sub := range m.subs {
		if sub.UserID != userID || !sub.GovernsAt(now) {
			continue
		}
		if newest == nil || sub.StartDate.After(newest.StartDate) {
			candidate := copySubscription(sub)
			newest = &candidate
		}
	}
	if newest == nil {
		return nil, ErrNoActiveSubscription
	}
	return newest, nil
}

func (m *memoryStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var subs []Subscription
	for _, sub := range m.subs {
		if sub.UserID == userID {
			subs = append(subs, copySubscription(sub))
		}
	}
	slices.SortFunc(subs, func(a, b Subscription) int {
		return b.StartDate.Compare(a.StartDate)
	})
	return subs, nil
}

func (m *memoryStore) List(ctx context.Context, status Status, limit, offset int) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var subs []Subscription
	for _, sub := range m.subs {
		if status != "" && sub.Status != status {
			continue
		}
		subs = append(subs, copySubscription(sub))
	}
	slices.SortFunc(subs, func(a, b Subscription) int {
		return b.StartDate.Compare(a.StartDate)
	})

	if offset >= len(subs) {
		return nil, nil
	}
	subs = subs[offset:]
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

// memoryPaymentStore is an in-memory PaymentStore.
type memoryPaymentStore struct {
	mu       sync.RWMutex
	payments []Payment
}

// NewMemoryPaymentStore returns an empty in-memory PaymentStore.
func NewMemoryPaymentStore() PaymentStore {
	return &memoryPaymentStore{}
}

func (m *memoryPaymentStore) Append(ctx context.Context, payment *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now().UTC()

	stored := *payment
	stored.Details = maps.Clone(payment.Details)
	m.payments = append(m.payments, stored)
	return nil
}

func (m *memoryPaymentStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var payments []Payment
	for i := len(m.payments) - 1; i >= 0; i-- {
		if m.payments[i].UserID == userID {
			p := m.payments[i]
			p.Details = maps.Clone(p.Details)
			payments = append(payments, p)
		}
	}
	return payments, nil
}
