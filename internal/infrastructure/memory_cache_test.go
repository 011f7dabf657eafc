package infrastructure

import (
	"context"
	"testing"
	"time"

	"project_associa/internal/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "tenant:abrace", "{}", 30*time.Second))
	v, err := c.Get(ctx, "tenant:abrace")
	require.NoError(t, err)
	assert.Equal(t, "{}", v)

	now = now.Add(30 * time.Second)
	_, err = c.Get(ctx, "tenant:abrace")
	assert.ErrorIs(t, err, interfaces.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.Del(ctx, "k", "missing"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, interfaces.ErrCacheMiss)
}
