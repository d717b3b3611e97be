// Package cache holds the normalized arrival payloads keyed by request
// fingerprint, plus a provider-scoped scratch KV. Entries carry their own
// logical expiry; the physical store TTL is padded so an expired entry stays
// readable until the scheduler refreshes it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/transitdeck/transitdeck/internal/provider"
	"github.com/transitdeck/transitdeck/internal/store"
)

const (
	arrivalsPrefix = "arrivals-cache:"

	// minTTL floors provider TTLs so an entry is never born expired.
	minTTL = time.Second

	// expiredResidual keeps a force-expired entry visible long enough for
	// the next scheduler tick to observe "expired entry exists" rather
	// than absence.
	expiredResidual = 30 * time.Second

	// physicalGrace pads the store TTL past the logical expiry so the
	// scheduler can distinguish stale refreshes from first fetches.
	physicalGrace = time.Minute
)

// Entry is one cached payload. ExpiresAt == FetchedAt marks an expired
// placeholder. Timestamps are epoch milliseconds.
type Entry struct {
	Payload   provider.Payload `json:"payload"`
	FetchedAt int64            `json:"fetchedAt"`
	ExpiresAt int64            `json:"expiresAt"`
}

// Expired reports whether the entry's logical TTL has lapsed at now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt <= now.UnixMilli()
}

// Arrivals is the TTL cache of arrival payloads on top of a KV store.
// Writes for one key are serialized by the engine's single-flight
// discipline; the cache itself only guarantees atomic per-key reads and
// writes.
type Arrivals struct {
	kv  store.KV
	log zerolog.Logger
}

func NewArrivals(kv store.KV, log zerolog.Logger) *Arrivals {
	return &Arrivals{kv: kv, log: log.With().Str("component", "arrivals-cache").Logger()}
}

// Get returns the raw entry, expired or not. Callers that need freshness
// check Expired themselves (the scheduler counts hits and misses that way).
func (c *Arrivals) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, ok, err := c.kv.Get(ctx, arrivalsPrefix+key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !ok {
		return Entry{}, false, nil
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return entry, true, nil
}

// Fresh returns the entry only when it is still within its logical TTL.
func (c *Arrivals) Fresh(ctx context.Context, key string, now time.Time) (Entry, bool, error) {
	entry, ok, err := c.Get(ctx, key)
	if err != nil || !ok || entry.Expired(now) {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Set overwrites the entry for key with a fresh payload. The TTL is floored
// to one second.
func (c *Arrivals) Set(ctx context.Context, key string, payload provider.Payload, ttlSeconds int, now time.Time) error {
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl < minTTL {
		ttl = minTTL
	}
	entry := Entry{
		Payload:   payload,
		FetchedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
	return c.write(ctx, key, entry, ttl+physicalGrace)
}

// MarkExpired forces the entry for key to be expired at now, keeping its
// payload. When no entry exists it inserts a payload-less placeholder with a
// short residual store TTL, so a subsequent Get sees an expired entry rather
// than absence.
func (c *Arrivals) MarkExpired(ctx context.Context, key string, now time.Time) error {
	entry, ok, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	nowMs := now.UnixMilli()
	if !ok {
		entry = Entry{Payload: nil, FetchedAt: nowMs, ExpiresAt: nowMs}
		return c.write(ctx, key, entry, expiredResidual)
	}
	if entry.ExpiresAt <= nowMs {
		// Already expired; repeated calls are a no-op beyond refreshing
		// the residual window.
		entry.ExpiresAt = min64(entry.ExpiresAt, nowMs)
	} else {
		entry.ExpiresAt = nowMs
	}
	return c.write(ctx, key, entry, expiredResidual)
}

// Entries returns a snapshot of all cached entries keyed by fingerprint.
func (c *Arrivals) Entries(ctx context.Context) (map[string]Entry, error) {
	storeKeys, err := c.kv.Scan(ctx, arrivalsPrefix)
	if err != nil {
		return nil, fmt.Errorf("cache scan: %w", err)
	}
	if len(storeKeys) == 0 {
		return map[string]Entry{}, nil
	}
	raws, err := c.kv.MGet(ctx, storeKeys...)
	if err != nil {
		return nil, fmt.Errorf("cache mget: %w", err)
	}
	out := make(map[string]Entry, len(storeKeys))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			c.log.Warn().Str("key", storeKeys[i]).Err(err).Msg("skipping undecodable cache entry")
			continue
		}
		out[strings.TrimPrefix(storeKeys[i], arrivalsPrefix)] = entry
	}
	return out, nil
}

func (c *Arrivals) write(ctx context.Context, key string, entry Entry, storeTTL time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.kv.Set(ctx, arrivalsPrefix+key, raw, storeTTL); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
