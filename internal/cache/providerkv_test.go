package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitdeck/transitdeck/internal/store"
)

func TestProviderKV_JSON(t *testing.T) {
	p := NewProviderKV(store.NewMemory())
	ctx := context.Background()

	type session struct {
		Token string `json:"token"`
	}

	require.NoError(t, p.SetJSON(ctx, "mta", "session", session{Token: "abc"}, time.Minute))

	var got session
	ok, err := p.GetJSON(ctx, "mta", "session", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", got.Token)

	// Namespaces are per provider.
	ok, err = p.GetJSON(ctx, "bart", "session", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProviderKV_Bytes(t *testing.T) {
	p := NewProviderKV(store.NewMemory())
	ctx := context.Background()

	require.NoError(t, p.SetBytes(ctx, "mta", "feed", []byte{0x1, 0x2}, 0))
	val, ok, err := p.GetBytes(ctx, "mta", "feed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0x1, 0x2}, val)

	require.NoError(t, p.Del(ctx, "mta", "feed"))
	_, ok, err = p.GetBytes(ctx, "mta", "feed")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProviderKV_JSONAndArrivalsShareStore(t *testing.T) {
	kv := store.NewMemory()
	p := NewProviderKV(kv)
	c := NewArrivals(kv, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, p.SetBytes(ctx, "mta", "k", []byte("x"), 0))
	entries, err := c.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "provider keys live outside the arrivals namespace")
}
