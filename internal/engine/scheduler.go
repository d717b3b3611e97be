package engine

import (
	"context"
	"time"

	"github.com/transitdeck/transitdeck/internal/metrics"
)

// The two loops are single-flight at the loop level: a tick arriving while
// the previous body still runs is dropped. That is the whole backpressure
// story; slow upstreams must not stack duplicate passes.

func (e *Engine) refreshLoop() {
	defer e.loops.Done()
	ticker := time.NewTicker(e.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if !e.refreshBusy.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer e.refreshBusy.Store(false)
				e.refreshOnce(e.ctx)
			}()
		}
	}
}

func (e *Engine) pushLoop() {
	defer e.loops.Done()
	ticker := time.NewTicker(e.pushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if !e.pushBusy.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer e.pushBusy.Store(false)
				e.pushOnce(e.ctx)
			}()
		}
	}
}

// refreshOnce fetches every expired key that has at least one active
// subscriber. Individual fetches are fire-and-forget; a single key's failure
// never touches the others.
func (e *Engine) refreshOnce(ctx context.Context) {
	fan := e.fan.Load()
	if len(fan.ByKey) == 0 {
		return
	}
	now := time.Now()

	active, err := e.activity.ActiveIDs(ctx, fan.DeviceIDs(), now)
	if err != nil {
		e.log.Warn().Err(err).Msg("refresh tick: activity lookup failed")
		return
	}

	for key, devices := range fan.ByKey {
		subscribed := false
		for id := range devices {
			if _, ok := active[id]; ok {
				subscribed = true
				break
			}
		}
		if !subscribed {
			continue
		}

		entry, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.log.Warn().Err(err).Str("key", key).Msg("refresh tick: cache read failed")
			continue
		}
		if ok && !entry.Expired(now) {
			e.metrics.Increment(metrics.CacheHit, 1, nil)
			continue
		}
		if ok {
			e.log.Debug().Str("key", key).Msg("refreshing stale entry")
		} else {
			e.log.Debug().Str("key", key).Msg("first fetch for key")
		}
		e.metrics.Increment(metrics.CacheMiss, 1, nil)

		// In-flight fetches outlive Stop; they complete on the
		// provider's own timeout.
		go e.fetchKey(context.WithoutCancel(ctx), key)
	}

	e.metrics.Gauge(metrics.Inflight, float64(e.inflightCount()), nil)
}

// pushOnce sends a freshly composed command to every active device.
func (e *Engine) pushOnce(ctx context.Context) {
	fan := e.fan.Load()
	ids := fan.DeviceIDs()
	if len(ids) == 0 {
		return
	}

	active, err := e.activity.ActiveIDs(ctx, ids, time.Now())
	if err != nil {
		e.log.Warn().Err(err).Msg("push tick: activity lookup failed")
		return
	}
	for _, id := range ids {
		if _, ok := active[id]; !ok {
			continue
		}
		e.publishDevice(ctx, id, fan)
	}
}
