package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolstack/toolstack/pkg/pg"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore returns a Store backed by the users table.
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const userColumns = `id, email, name, COALESCE(billing_customer_id, ''), is_active`

func (s *pgStore) GetByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID,
	).Scan(&user.ID, &user.Email, &user.Name, &user.BillingCustomerID, &user.IsActive)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *pgStore) GetByCustomerRef(ctx context.Context, customerRef string) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE billing_customer_id = $1`, customerRef,
	).Scan(&user.ID, &user.Email, &user.Name, &user.BillingCustomerID, &user.IsActive)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *pgStore) SetCustomerRef(ctx context.Context, userID uuid.UUID, customerRef string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET billing_customer_id = $2, updated_at = now() WHERE id = $1`,
		userID, customerRef,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
