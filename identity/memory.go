package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// memoryStore is an in-memory Store for tests and development.
type memoryStore struct {
	mu            sync.RWMutex
	byID          map[uuid.UUID]User
	byCustomerRef map[string]uuid.UUID
}

// NewMemoryStore returns an in-memory Store pre-populated with the given users.
func NewMemoryStore(users ...User) Store {
	s := &memoryStore{
		byID:          make(map[uuid.UUID]User, len(users)),
		byCustomerRef: make(map[string]uuid.UUID),
	}
	for _, u := range users {
		s.byID[u.ID] = u
		if u.BillingCustomerID != "" {
			s.byCustomerRef[u.BillingCustomerID] = u.ID
		}
	}
	return s
}

func (s *memoryStore) GetByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (s *memoryStore) GetByCustomerRef(ctx context.Context, customerRef string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byCustomerRef[customerRef]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := s.byID[userID]
	return &user, nil
}

func (s *memoryStore) SetCustomerRef(ctx context.Context, userID uuid.UUID, customerRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	if user.BillingCustomerID != "" {
		delete(s.byCustomerRef, user.BillingCustomerID)
	}
	user.BillingCustomerID = customerRef
	s.byID[userID] = user
	s.byCustomerRef[customerRef] = userID
	return nil
}
