// Package provider defines the plugin contract for upstream transit feeds
// and the process-wide plugin registry. A plugin knows how to turn a
// subscription config into a canonical key and how to fetch that key.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/transitdeck/transitdeck/internal/keys"
)

var (
	// ErrUnknown is returned when no plugin is registered for a provider id.
	ErrUnknown = errors.New("unknown provider")
	// ErrUnsupportedType is returned when a plugin does not serve a
	// subscription type.
	ErrUnsupportedType = errors.New("unsupported subscription type")
	// ErrFetch marks a transient upstream failure. The entry stays expired
	// and the next scheduler tick retries.
	ErrFetch = errors.New("provider fetch failed")
	// ErrConfig marks missing or invalid upstream credentials.
	ErrConfig = errors.New("provider configuration invalid")
	// ErrUpstreamUnavailable marks an unreachable upstream.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Payload is the opaque document a provider returns for a key. The engine
// stores and forwards it without inspection; the composer applies its schema
// defensively, treating missing or ill-typed fields as absent.
type Payload map[string]any

// FetchRequest carries the per-fetch context handed to a plugin.
type FetchRequest struct {
	Key string
	Now time.Time
	Log zerolog.Logger
}

// FetchResult is a successful fetch: the payload plus how long it stays
// fresh. TTLSeconds below 1 is floored to 1 by the cache.
type FetchResult struct {
	Payload    Payload
	TTLSeconds int
}

// Plugin adapts one upstream transit feed. Implementations own their request
// timeouts; the engine imposes none.
type Plugin interface {
	ID() string
	Supports(typ string) bool
	ToKey(typ string, config map[string]string) (string, error)
	ParseKey(key string) (keys.Parsed, error)
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}
