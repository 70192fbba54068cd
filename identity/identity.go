// Package identity carries the authenticated user across the request
// boundary. Authentication mechanics (password hashing, token issuance)
// live outside this service; handlers trust the user loader wired in at
// startup.
package identity

import (
	"context"

	"github.com/google/uuid"
)

// User is the authenticated principal as seen by the entitlement and
// billing layers. BillingCustomerID is the billing provider's customer
// reference, empty until the first checkout creates one.
type User struct {
	ID                uuid.UUID
	Email             string
	Name              string
	BillingCustomerID string
	IsActive          bool
}

// Store resolves and updates users. The billing-event reconciler looks
// users up by their provider customer reference; the checkout flow
// persists a newly created reference.
type Store interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*User, error)
	GetByCustomerRef(ctx context.Context, customerRef string) (*User, error)
	SetCustomerRef(ctx context.Context, userID uuid.UUID, customerRef string) error
}

type userContextKey struct{}

// SetUserToContext stores the authenticated user in context for middleware chain access.
func SetUserToContext(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUserFromContext retrieves the authenticated user from context.
// Returns nil if no user was previously stored.
func GetUserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}
