package usage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolstack/toolstack/usage"
)

// fixedCounter stands in for the ledger when backfilling cold counters.
type fixedCounter struct {
	count int64
}

func (c fixedCounter) CountSince(ctx context.Context, userID, toolID uuid.UUID, since time.Time) (int64, error) {
	return c.count, nil
}

func TestReserver_EnforcesLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reserver := usage.NewMemoryReserver(fixedCounter{})
	userID, toolID := uuid.New(), uuid.New()
	now := time.Now()

	for i := range 3 {
		require.NoError(t, reserver.Reserve(ctx, userID, toolID, 3, now), "reservation %d", i+1)
	}
	assert.ErrorIs(t, reserver.Reserve(ctx, userID, toolID, 3, now), usage.ErrQuotaExhausted)
}

func TestReserver_UnlimitedNeverBlocks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reserver := usage.NewMemoryReserver(fixedCounter{count: 1_000_000})
	userID, toolID := uuid.New(), uuid.New()

	for range 10 {
		require.NoError(t, reserver.Reserve(ctx, userID, toolID, -1, time.Now()))
	}
}

func TestReserver_BackfillsFromLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	// The ledger already holds 4 records this month. With a limit of 5
	// only one cold reservation may succeed.
	reserver := usage.NewMemoryReserver(fixedCounter{count: 4})
	userID, toolID := uuid.New(), uuid.New()
	now := time.Now()

	require.NoError(t, reserver.Reserve(ctx, userID, toolID, 5, now))
	assert.ErrorIs(t, reserver.Reserve(ctx, userID, toolID, 5, now), usage.ErrQuotaExhausted)
}

func TestReserver_ReleaseReturnsSlot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reserver := usage.NewMemoryReserver(fixedCounter{})
	userID, toolID := uuid.New(), uuid.New()
	now := time.Now()

	require.NoError(t, reserver.Reserve(ctx, userID, toolID, 1, now))
	assert.ErrorIs(t, reserver.Reserve(ctx, userID, toolID, 1, now), usage.ErrQuotaExhausted)

	require.NoError(t, reserver.Release(ctx, userID, toolID, now))
	assert.NoError(t, reserver.Reserve(ctx, userID, toolID, 1, now))
}

func TestReserver_MonthRollover(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reserver := usage.NewMemoryReserver(fixedCounter{})
	userID, toolID := uuid.New(), uuid.New()

	march := time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC)
	april := time.Date(2025, time.April, 1, 1, 0, 0, 0, time.UTC)

	require.NoError(t, reserver.Reserve(ctx, userID, toolID, 1, march))
	assert.ErrorIs(t, reserver.Reserve(ctx, userID, toolID, 1, march), usage.ErrQuotaExhausted)

	// A new calendar month opens a fresh window.
	assert.NoError(t, reserver.Reserve(ctx, userID, toolID, 1, april))
}

func TestReserver_ConcurrentBoundary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reserver := usage.NewMemoryReserver(fixedCounter{})
	userID, toolID := uuid.New(), uuid.New()
	now := time.Now()

	const attempts = 20
	const limit = 5

	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = reserver.Reserve(ctx, userID, toolID, limit, now)
		}()
	}
	wg.Wait()

	var granted int
	for _, err := range results {
		switch {
		case err == nil:
			granted++
		default:
			assert.ErrorIs(t, err, usage.ErrQuotaExhausted)
		}
	}
	assert.Equal(t, limit, granted)
}
