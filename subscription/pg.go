package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolstack/toolstack/pkg/pg"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore returns a Store backed by the subscriptions table.
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, COALESCE(provider_subscription_id, ''), status,
	billing_interval, start_date, end_date, trial_end, cancel_at_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.ProviderSubID, &sub.Status,
		&sub.Interval, &sub.StartDate, &sub.EndDate, &sub.TrialEnd,
		&sub.CancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func providerRefOrNull(ref string) any {
	if ref == "" {
		return nil
	}
	return ref
}

func (s *pgStore) Create(ctx context.Context, sub *Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (
			id, user_id, plan_id, provider_subscription_id, status,
			billing_interval, start_date, end_date, trial_end,
			cancel_at_period_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sub.ID, sub.UserID, sub.PlanID, providerRefOrNull(sub.ProviderSubID), sub.Status,
		sub.Interval, sub.StartDate, sub.EndDate, sub.TrialEnd,
		sub.CancelAtPeriodEnd, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrSubscriptionAlreadyExists
		}
		return err
	}
	return nil
}

func (s *pgStore) Update(ctx context.Context, sub *Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions SET
			plan_id = $2, provider_subscription_id = $3, status = $4,
			billing_interval = $5, start_date = $6, end_date = $7,
			trial_end = $8, cancel_at_period_end = $9, updated_at = $10
		WHERE id = $1`,
		sub.ID, sub.PlanID, providerRefOrNull(sub.ProviderSubID), sub.Status,
		sub.Interval, sub.StartDate, sub.EndDate,
		sub.TrialEnd, sub.CancelAtPeriodEnd, sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *pgStore) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	return scanSubscription(row)
}

func (s *pgStore) GetByProviderRef(ctx context.Context, providerSubID string) (*Subscription, error) {
	if providerSubID == "" {
		return nil, ErrSubscriptionNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_subscription_id = $1`,
		providerSubID)
	return scanSubscription(row)
}

func (s *pgStore) GetActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = $1 AND status = 'active' AND (end_date IS NULL OR end_date > $2)
		 ORDER BY start_date DESC LIMIT 1`,
		userID, now)
	sub, err := scanSubscription(row)
	if err != nil {
		if err == ErrSubscriptionNotFound {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}
	return sub, nil
}

func (s *pgStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = $1 ORDER BY start_date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *pgStore) List(ctx context.Context, status Status, limit, offset int) ([]Subscription, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+subscriptionColumns+` FROM subscriptions
			 WHERE status = $1 ORDER BY start_date DESC LIMIT $2 OFFSET $3`,
			status, limit, offset)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+subscriptionColumns+` FROM subscriptions
			 ORDER BY start_date DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]Subscription, error) {
	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// pgPaymentStore is the PostgreSQL-backed PaymentStore.
type pgPaymentStore struct {
	pool *pgxpool.Pool
}

// NewPgPaymentStore returns a PaymentStore backed by the payments table.
func NewPgPaymentStore(pool *pgxpool.Pool) PaymentStore {
	return &pgPaymentStore{pool: pool}
}

func (s *pgPaymentStore) Append(ctx context.Context, payment *Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO payments (id, user_id, subscription_id, provider_payment_id, amount, currency, status, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		payment.ID, payment.UserID, payment.SubscriptionID, payment.ProviderPaymentID,
		payment.Amount, payment.Currency, payment.Status, payment.Details, payment.CreatedAt,
	)
	if err != nil {
		return err
	}
	return nil
}

func (s *pgPaymentStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Payment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, subscription_id, provider_payment_id, amount, currency, status, details, created_at
		 FROM payments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.SubscriptionID, &p.ProviderPaymentID,
			&p.Amount, &p.Currency, &p.Status, &p.Details, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
