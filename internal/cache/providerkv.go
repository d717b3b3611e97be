package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/transitdeck/transitdeck/internal/store"
)

const providerPrefix = "provider:"

// ProviderKV is an opaque, provider-scoped scratch store with TTLs. Plugins
// use it for upstream session tokens, static feed snapshots, and similar
// state the engine never inspects. JSON and binary variants share one
// namespace.
type ProviderKV struct {
	kv store.KV
}

func NewProviderKV(kv store.KV) *ProviderKV {
	return &ProviderKV{kv: kv}
}

func providerKey(providerID, key string) string {
	return providerPrefix + providerID + ":" + key
}

// SetJSON stores a JSON-encoded value under the provider's namespace.
func (p *ProviderKV) SetJSON(ctx context.Context, providerID, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("provider kv encode %s/%s: %w", providerID, key, err)
	}
	return p.kv.Set(ctx, providerKey(providerID, key), raw, ttl)
}

// GetJSON decodes the stored value into dst. The second return is false when
// the key is absent or expired.
func (p *ProviderKV) GetJSON(ctx context.Context, providerID, key string, dst any) (bool, error) {
	raw, ok, err := p.kv.Get(ctx, providerKey(providerID, key))
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("provider kv decode %s/%s: %w", providerID, key, err)
	}
	return true, nil
}

// SetBytes stores an opaque binary value under the provider's namespace.
func (p *ProviderKV) SetBytes(ctx context.Context, providerID, key string, value []byte, ttl time.Duration) error {
	return p.kv.Set(ctx, providerKey(providerID, key), value, ttl)
}

// GetBytes is the binary-returning variant of GetJSON.
func (p *ProviderKV) GetBytes(ctx context.Context, providerID, key string) ([]byte, bool, error) {
	return p.kv.Get(ctx, providerKey(providerID, key))
}

// Del removes one key from the provider's namespace.
func (p *ProviderKV) Del(ctx context.Context, providerID, key string) error {
	return p.kv.Del(ctx, providerKey(providerID, key))
}
