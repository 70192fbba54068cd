package usage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolstack/toolstack/usage"
)

func TestStore_AppendStartsRecord(t *testing.T) {
	t.Parallel()

	store := usage.NewMemoryStore()
	userID, toolID := uuid.New(), uuid.New()

	record, err := store.Append(context.Background(), userID, toolID, map[string]any{"size": "1024x768"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, usage.StatusStarted, record.Status)
	assert.Equal(t, "1024x768", record.InputData["size"])
	assert.Nil(t, record.CompletedAt)
	assert.False(t, record.StartedAt.IsZero())
}

func TestStore_UpdateLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := usage.NewMemoryStore()
	userID, toolID := uuid.New(), uuid.New()

	record, err := store.Append(ctx, userID, toolID, nil)
	require.NoError(t, err)

	record, err = store.Update(ctx, record.ID, userID, usage.StatusInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, usage.StatusInProgress, record.Status)
	assert.Nil(t, record.CompletedAt)

	record, err = store.Update(ctx, record.ID, userID, usage.StatusCompleted, map[string]any{"url": "https://cdn.example.com/out.png"})
	require.NoError(t, err)
	assert.Equal(t, usage.StatusCompleted, record.Status)
	require.NotNil(t, record.CompletedAt)
	assert.Equal(t, "https://cdn.example.com/out.png", record.ResultData["url"])

	// Terminal records are frozen.
	_, err = store.Update(ctx, record.ID, userID, usage.StatusFailed, nil)
	assert.ErrorIs(t, err, usage.ErrRecordFinalized)
}

func TestStore_UpdateOwnerOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := usage.NewMemoryStore()
	owner := uuid.New()

	record, err := store.Append(ctx, owner, uuid.New(), nil)
	require.NoError(t, err)

	_, err = store.Update(ctx, record.ID, uuid.New(), usage.StatusCompleted, nil)
	assert.ErrorIs(t, err, usage.ErrNotRecordOwner)

	// The failed attempt must not have touched the record.
	stored, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, usage.StatusStarted, stored.Status)
}

func TestStore_UpdateValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := usage.NewMemoryStore()
	userID := uuid.New()

	record, err := store.Append(ctx, userID, uuid.New(), nil)
	require.NoError(t, err)

	_, err = store.Update(ctx, record.ID, userID, usage.Status("done"), nil)
	assert.ErrorIs(t, err, usage.ErrInvalidStatus)

	_, err = store.Update(ctx, uuid.New(), userID, usage.StatusCompleted, nil)
	assert.ErrorIs(t, err, usage.ErrRecordNotFound)
}

func TestStore_CountSinceIgnoresStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := usage.NewMemoryStore()
	userID, toolID := uuid.New(), uuid.New()

	first, err := store.Append(ctx, userID, toolID, nil)
	require.NoError(t, err)
	_, err = store.Update(ctx, first.ID, userID, usage.StatusFailed, nil)
	require.NoError(t, err)

	_, err = store.Append(ctx, userID, toolID, nil)
	require.NoError(t, err)

	// Other tool and other user stay out of the count.
	_, err = store.Append(ctx, userID, uuid.New(), nil)
	require.NoError(t, err)
	_, err = store.Append(ctx, uuid.New(), toolID, nil)
	require.NoError(t, err)

	count, err := store.CountSince(ctx, userID, toolID, usage.MonthStart(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestStore_StatsSince(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := usage.NewMemoryStore()
	userID := uuid.New()
	remover, resizer := uuid.New(), uuid.New()

	for range 3 {
		_, err := store.Append(ctx, userID, remover, nil)
		require.NoError(t, err)
	}
	_, err := store.Append(ctx, userID, resizer, nil)
	require.NoError(t, err)

	stats, err := store.StatsSince(ctx, userID, usage.MonthStart(time.Now()))
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, remover, stats[0].ToolID)
	assert.Equal(t, int64(3), stats[0].Count)
	assert.Equal(t, int64(1), stats[1].Count)
}

func TestStore_ListByUserPagination(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := usage.NewMemoryStore()
	userID, toolID := uuid.New(), uuid.New()

	var ids []uuid.UUID
	for range 5 {
		record, err := store.Append(ctx, userID, toolID, nil)
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}

	page, err := store.ListByUser(ctx, userID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	// Newest first.
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	page, err = store.ListByUser(ctx, userID, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
}

func TestMonthStart(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.March, 17, 14, 30, 12, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), usage.MonthStart(now))
}
