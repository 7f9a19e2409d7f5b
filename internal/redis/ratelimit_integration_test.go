package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowIngest(t *testing.T) {
	limiter := NewRateLimiter(setupTestClient(t), RateLimitConfig{IngestLimit: 2, IngestWindow: time.Minute})
	ctx := context.Background()

	first, err := limiter.AllowIngest(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	second, err := limiter.AllowIngest(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, second.Allowed)

	third, err := limiter.AllowIngest(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.Equal(t, 2, third.Limit)

	other, err := limiter.AllowIngest(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}
