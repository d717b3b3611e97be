package engine

import (
	"context"
	"time"

	"github.com/transitdeck/transitdeck/internal/keys"
	"github.com/transitdeck/transitdeck/internal/metrics"
	"github.com/transitdeck/transitdeck/internal/provider"
)

// inflightCall is the shared handle for one running fetch. Concurrent
// callers wait on done and read err afterwards.
type inflightCall struct {
	done chan struct{}
	err  error
}

// fetchKey coalesces fetches per key: at most one provider call runs at a
// time, and every concurrent caller shares its outcome. The handle is
// removed from the inflight map unconditionally on completion.
func (e *Engine) fetchKey(ctx context.Context, key string) error {
	e.inflightMu.Lock()
	if call, ok := e.inflight[key]; ok {
		e.inflightMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	e.inflight[key] = call
	e.inflightMu.Unlock()

	call.err = e.doFetch(ctx, key)

	e.inflightMu.Lock()
	delete(e.inflight, key)
	e.inflightMu.Unlock()
	close(call.done)

	return call.err
}

func (e *Engine) doFetch(ctx context.Context, key string) error {
	parsed, err := keys.Parse(key)
	if err != nil {
		// Keys on this path come from the codec via providers, so this
		// is a programming error, not an operational one.
		e.log.Warn().Str("key", key).Err(err).Msg("refusing to fetch malformed key")
		return err
	}

	plugin, ok := e.registry.Get(parsed.Provider)
	if !ok {
		e.log.Warn().Str("key", key).Str("provider", parsed.Provider).Msg("no plugin for key; skipping fetch")
		return nil
	}

	tags := map[string]string{"provider": parsed.Provider}
	now := time.Now()
	start := now

	result, err := plugin.Fetch(ctx, provider.FetchRequest{
		Key: key,
		Now: now,
		Log: e.log.With().Str("provider", parsed.Provider).Str("key", key).Logger(),
	})
	e.metrics.Histogram(metrics.FetchDuration, time.Since(start).Seconds(), tags)
	if err != nil {
		e.metrics.Increment(metrics.FetchError, 1, tags)
		e.log.Error().Err(err).
			Str("provider", parsed.Provider).
			Str("key", key).
			Msg("provider fetch failed")
		return err
	}

	if err := e.cache.Set(ctx, key, result.Payload, result.TTLSeconds, time.Now()); err != nil {
		// A store outage is handled like a fetch error: the entry stays
		// expired and the next tick retries.
		e.metrics.Increment(metrics.FetchError, 1, tags)
		e.log.Error().Err(err).Str("key", key).Msg("cache write failed")
		return err
	}

	e.publishKey(ctx, key)
	return nil
}

func (e *Engine) inflightCount() int {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	return len(e.inflight)
}
