package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Reserver atomically claims one use slot for the current calendar
// month before an invocation is recorded. It exists to close the
// check-then-act race between two concurrent invocations near the quota
// boundary: the evaluator's read and the ledger append are not a single
// transaction, so the gate has to be a conditional increment.
type Reserver interface {
	// Reserve claims a slot against the given limit. A negative limit
	// means unlimited and always succeeds. Returns ErrQuotaExhausted
	// when the month's quota is already consumed.
	Reserve(ctx context.Context, userID, toolID uuid.UUID, limit int64, now time.Time) error

	// Release returns a previously reserved slot, used when the
	// invocation was reserved but never recorded.
	Release(ctx context.Context, userID, toolID uuid.UUID, now time.Time) error
}

func monthKey(userID, toolID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("usage:%s:%s:%s", userID, toolID, now.Format("2006-01"))
}

// redisReserver keeps per-user-per-tool-per-month counters in Redis.
// Counters are backfilled from the ledger on first touch each month so
// restarts and cold keys do not reset consumed quota.
type redisReserver struct {
	client   redis.UniversalClient
	backfill Counter
}

// NewRedisReserver returns a Reserver backed by Redis counters.
// backfill supplies the authoritative ledger count for cold keys.
func NewRedisReserver(client redis.UniversalClient, backfill Counter) Reserver {
	return &redisReserver{client: client, backfill: backfill}
}

func (r *redisReserver) Reserve(ctx context.Context, userID, toolID uuid.UUID, limit int64, now time.Time) error {
	if limit < 0 {
		return nil
	}

	key := monthKey(userID, toolID, now)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return errors.Join(ErrFailedToReserve, err)
	}
	if exists == 0 {
		count, err := r.backfill.CountSince(ctx, userID, toolID, MonthStart(now))
		if err != nil {
			return errors.Join(ErrFailedToReserve, err)
		}
		// SetNX keeps a concurrent backfill from clobbering the counter.
		if err := r.client.SetNX(ctx, key, count, ttlUntilNextMonth(now)).Err(); err != nil {
			return errors.Join(ErrFailedToReserve, err)
		}
	}

	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return errors.Join(ErrFailedToReserve, err)
	}
	if n > limit {
		// Roll the speculative increment back so a later retry within
		// the same month still sees the true count.
		if err := r.client.Decr(ctx, key).Err(); err != nil {
			return errors.Join(ErrFailedToReserve, err)
		}
		return ErrQuotaExhausted
	}
	return nil
}

func (r *redisReserver) Release(ctx context.Context, userID, toolID uuid.UUID, now time.Time) error {
	if err := r.client.Decr(ctx, monthKey(userID, toolID, now)).Err(); err != nil {
		return errors.Join(ErrFailedToReserve, err)
	}
	return nil
}

// ttlUntilNextMonth expires counters shortly after their window closes.
// The day of grace covers clock skew between app servers and Redis.
func ttlUntilNextMonth(now time.Time) time.Duration {
	next := MonthStart(now).AddDate(0, 1, 0)
	return next.Sub(now) + 24*time.Hour
}

// memoryReserver mirrors the Redis semantics for tests and single-node
// runs without a Redis deployment.
type memoryReserver struct {
	mu       sync.Mutex
	counts   map[string]int64
	backfill Counter
}

// NewMemoryReserver returns an in-process Reserver.
func NewMemoryReserver(backfill Counter) Reserver {
	return &memoryReserver{
		counts:   make(map[string]int64),
		backfill: backfill,
	}
}

func (r *memoryReserver) Reserve(ctx context.Context, userID, toolID uuid.UUID, limit int64, now time.Time) error {
	if limit < 0 {
		return nil
	}

	key := monthKey(userID, toolID, now)

	r.mu.Lock()
	defer r.mu.Unlock()

	count, ok := r.counts[key]
	if !ok {
		backfilled, err := r.backfill.CountSince(ctx, userID, toolID, MonthStart(now))
		if err != nil {
			return errors.Join(ErrFailedToReserve, err)
		}
		count = backfilled
	}

	if count+1 > limit {
		r.counts[key] = count
		return ErrQuotaExhausted
	}
	r.counts[key] = count + 1
	return nil
}

func (r *memoryReserver) Release(ctx context.Context, userID, toolID uuid.UUID, now time.Time) error {
	key := monthKey(userID, toolID, now)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.counts[key] > 0 {
		r.counts[key]--
	}
	return nil
}
