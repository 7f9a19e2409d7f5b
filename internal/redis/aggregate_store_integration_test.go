package redis

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	livex_errors "livex/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *AggregateStore {
	return NewAggregateStore(setupTestClient(t), AggregateStoreConfig{DefaultCurrency: "USD", DedupeTTL: time.Hour})
}

func TestAggregateStore_CreateAndRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agg, err := store.Create(ctx, "W1", "USD", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), agg.TotalCents)

	got, err := store.Read(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, "W1", got.WidgetID)
	assert.Equal(t, int64(500), got.TotalCents)
	assert.Equal(t, "USD", got.Currency)
}

func TestAggregateStore_CreateIsIdempotentPerCurrency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "W1", "EUR", 100)
	require.NoError(t, err)

	again, err := store.Create(ctx, "W1", "EUR", 999)
	require.NoError(t, err)
	assert.Equal(t, int64(100), again.TotalCents, "existing total must not be reset")

	_, err = store.Create(ctx, "W1", "USD", 0)
	assert.ErrorIs(t, err, livex_errors.ErrConflict)
}

func TestAggregateStore_ReadUnknownWidget(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, livex_errors.ErrWidgetNotFound)
	assert.NotErrorIs(t, err, livex_errors.ErrServiceUnavailable)
}

func TestAggregateStore_IncrementScenario(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "W1", "USD", 500)
	require.NoError(t, err)

	agg, err := store.Increment(ctx, "W1", uuid.New(), 250)
	require.NoError(t, err)
	assert.Equal(t, int64(750), agg.TotalCents)
	assert.Equal(t, "USD", agg.Currency)
}

func TestAggregateStore_IncrementAutoCreates(t *testing.T) {
	store := newTestStore(t)

	agg, err := store.Increment(context.Background(), "fresh", uuid.New(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), agg.TotalCents)
	assert.Equal(t, "USD", agg.Currency)
}

func TestAggregateStore_IncrementDeduplicatesEventID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	eventID := uuid.New()

	first, err := store.Increment(ctx, "W1", eventID, 100)
	require.NoError(t, err)
	second, err := store.Increment(ctx, "W1", eventID, 100)
	require.NoError(t, err)

	assert.Equal(t, int64(100), first.TotalCents)
	assert.Equal(t, int64(100), second.TotalCents)
}

func TestAggregateStore_ConcurrentIncrementsLoseNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, "W1", "USD", 1000)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(delta int64) {
			defer wg.Done()
			_, err := store.Increment(ctx, "W1", uuid.New(), delta)
			assert.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()

	got, err := store.Read(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000+n*(n+1)/2), got.TotalCents)
}

func TestAggregateStore_IncrementOverflowKeepsTotal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, "W1", "USD", math.MaxInt64)
	require.NoError(t, err)

	eventID := uuid.New()
	_, err = store.Increment(ctx, "W1", eventID, 1)
	assert.ErrorIs(t, err, livex_errors.ErrTotalOverflow)
	assert.NotErrorIs(t, err, livex_errors.ErrServiceUnavailable)

	got, err := store.Read(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got.TotalCents)

	// the rejected event left no dedupe marker behind
	again, err := store.Increment(ctx, "W1", eventID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), again.TotalCents)
}
