package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitdeck/transitdeck/internal/provider"
	"github.com/transitdeck/transitdeck/internal/store"
)

func newTestCache() *Arrivals {
	return NewArrivals(store.NewMemory(), zerolog.Nop())
}

func TestArrivals_SetGet(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	payload := provider.Payload{"line": "L", "stop": "Lorimer St"}
	require.NoError(t, c.Set(ctx, "prov:arrivals:stop=x", payload, 30, now))

	entry, ok, err := c.Get(ctx, "prov:arrivals:stop=x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now.UnixMilli(), entry.FetchedAt)
	assert.Equal(t, now.UnixMilli()+30_000, entry.ExpiresAt)
	assert.Equal(t, "L", entry.Payload["line"])
	assert.False(t, entry.Expired(now))
	assert.False(t, entry.Expired(now.Add(29*time.Second)))
	assert.True(t, entry.Expired(now.Add(30*time.Second)))
}

func TestArrivals_TTLFloor(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	now := time.Now()

	// Zero and negative TTLs are floored so the entry is never born expired.
	for _, ttl := range []int{0, -5} {
		require.NoError(t, c.Set(ctx, "k", provider.Payload{}, ttl, now))
		entry, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, now.UnixMilli()+1000, entry.ExpiresAt, "ttl %d", ttl)
	}
}

func TestArrivals_Fresh(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, c.Set(ctx, "k", provider.Payload{"line": "7"}, 10, now))

	_, ok, err := c.Fresh(ctx, "k", now)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = c.Fresh(ctx, "k", now.Add(11*time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must not be returned as fresh")

	_, ok, err = c.Fresh(ctx, "absent", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArrivals_MarkExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("fresh entry becomes expired, payload kept", func(t *testing.T) {
		c := newTestCache()
		require.NoError(t, c.Set(ctx, "k", provider.Payload{"line": "L"}, 300, now))
		require.NoError(t, c.MarkExpired(ctx, "k", now))

		entry, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, entry.Expired(now))
		assert.Equal(t, "L", entry.Payload["line"], "payload survives forced expiry")
	})

	t.Run("absent key gets an expired placeholder", func(t *testing.T) {
		c := newTestCache()
		require.NoError(t, c.MarkExpired(ctx, "ghost", now))

		entry, ok, err := c.Get(ctx, "ghost")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, entry.Expired(now))
		assert.Nil(t, entry.Payload)
		assert.Equal(t, entry.FetchedAt, entry.ExpiresAt)
	})

	t.Run("idempotent on an already expired entry", func(t *testing.T) {
		c := newTestCache()
		require.NoError(t, c.Set(ctx, "k", provider.Payload{}, 5, now))
		require.NoError(t, c.MarkExpired(ctx, "k", now))
		first, _, err := c.Get(ctx, "k")
		require.NoError(t, err)

		require.NoError(t, c.MarkExpired(ctx, "k", now.Add(time.Minute)))
		second, _, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, first.ExpiresAt, second.ExpiresAt, "expiry must not move forward")
	})
}

func TestArrivals_Entries(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, c.Set(ctx, "p:arrivals:a=1", provider.Payload{"line": "A"}, 30, now))
	require.NoError(t, c.Set(ctx, "p:arrivals:b=2", provider.Payload{"line": "B"}, 30, now))

	entries, err := c.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries["p:arrivals:a=1"].Payload["line"])
	assert.Equal(t, "B", entries["p:arrivals:b=2"].Payload["line"])
}

func TestArrivals_EntriesEmpty(t *testing.T) {
	c := newTestCache()
	entries, err := c.Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
