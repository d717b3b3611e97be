// Package engine coordinates the aggregator core: it owns the fanout
// snapshot and the inflight map, drives the refresh and push loops, and is
// the only writer of both. The cache and activity store are shared,
// injected capabilities.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/transitdeck/transitdeck/internal/activity"
	"github.com/transitdeck/transitdeck/internal/bus"
	"github.com/transitdeck/transitdeck/internal/cache"
	"github.com/transitdeck/transitdeck/internal/compose"
	"github.com/transitdeck/transitdeck/internal/fanout"
	"github.com/transitdeck/transitdeck/internal/metrics"
	"github.com/transitdeck/transitdeck/internal/provider"
	"github.com/transitdeck/transitdeck/internal/subs"
)

// ErrUnknownDevice is returned by RefreshDevice for a device with no
// subscriptions in the current fanout.
var ErrUnknownDevice = errors.New("device has no subscriptions")

// Options configures a new Engine. Cache, Activity, and Subs are required;
// everything else has a working default.
type Options struct {
	Registry *provider.Registry
	Cache    *cache.Arrivals
	Activity *activity.Store
	Subs     subs.Source
	Bus      bus.Publisher
	Metrics  metrics.Sink
	Labels   compose.LabelResolver
	Log      zerolog.Logger

	RefreshInterval time.Duration
	PushInterval    time.Duration
}

// Engine is the public facade of the aggregator core.
type Engine struct {
	registry *provider.Registry
	cache    *cache.Arrivals
	activity *activity.Store
	source   subs.Source
	bus      bus.Publisher
	metrics  metrics.Sink
	labels   compose.LabelResolver
	log      zerolog.Logger

	refreshEvery time.Duration
	pushEvery    time.Duration

	// fan holds the current fanout snapshot; readers observe either the
	// old or the new maps, never a partial rebuild.
	fan atomic.Pointer[fanout.Maps]

	inflightMu sync.Mutex
	inflight   map[string]*inflightCall

	refreshBusy atomic.Bool
	pushBusy    atomic.Bool

	readyCh chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	started atomic.Bool
}

func New(opts Options) *Engine {
	if opts.Registry == nil {
		opts.Registry = provider.Default()
	}
	if opts.Bus == nil {
		opts.Bus = bus.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Labels == nil {
		opts.Labels = compose.NopResolver()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Second
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		registry:     opts.Registry,
		cache:        opts.Cache,
		activity:     opts.Activity,
		source:       opts.Subs,
		bus:          opts.Bus,
		metrics:      opts.Metrics,
		labels:       opts.Labels,
		log:          opts.Log.With().Str("component", "engine").Logger(),
		refreshEvery: opts.RefreshInterval,
		pushEvery:    opts.PushInterval,
		inflight:     make(map[string]*inflightCall),
		readyCh:      make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
	e.fan.Store(fanout.Empty())
	return e
}

// Start restores persisted device activity, builds the first fanout
// snapshot, runs one refresh pass, then launches the periodic loops. Ready
// is closed once the first pass completes.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}

	restored, err := e.activity.RestoreActive(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("restoring active devices failed; continuing with none")
	} else if len(restored) > 0 {
		e.log.Info().Int("devices", len(restored)).Msg("restored active devices")
	}

	if err := e.rebuildFanout(ctx); err != nil {
		return fmt.Errorf("initial fanout build: %w", err)
	}
	e.refreshOnce(ctx)
	close(e.readyCh)

	e.loops.Add(2)
	go e.refreshLoop()
	go e.pushLoop()
	return nil
}

// Ready is closed after the initial restore, fanout build, and first
// scheduler pass.
func (e *Engine) Ready() <-chan struct{} { return e.readyCh }

// WaitReady blocks until Ready or the context is done.
func (e *Engine) WaitReady(ctx context.Context) error {
	select {
	case <-e.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the loop timers. In-flight fetches run to completion on their
// own provider timeouts.
func (e *Engine) Stop() {
	e.cancel()
	e.loops.Wait()
}

// RefreshKey force-expires a key and, when it is subscribed, fetches it
// immediately.
func (e *Engine) RefreshKey(ctx context.Context, key string) error {
	if err := e.cache.MarkExpired(ctx, key, time.Now()); err != nil {
		return err
	}
	if err := e.WaitReady(ctx); err != nil {
		return err
	}
	if _, ok := e.fan.Load().ByKey[key]; !ok {
		return nil
	}
	return e.fetchKey(ctx, key)
}

// RefreshDevice marks a device active and re-fetches all of its keys
// concurrently, awaiting the lot.
func (e *Engine) RefreshDevice(ctx context.Context, deviceID string) error {
	if err := e.WaitReady(ctx); err != nil {
		return err
	}
	if err := e.activity.MarkActive(ctx, deviceID, time.Now()); err != nil {
		return err
	}
	keysFor := e.fan.Load().KeysForDevice(deviceID)
	if len(keysFor) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	errs := make([]error, len(keysFor))
	var wg sync.WaitGroup
	for i, key := range keysFor {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			if err := e.cache.MarkExpired(ctx, key, time.Now()); err != nil {
				errs[i] = err
				return
			}
			errs[i] = e.fetchKey(ctx, key)
		}(i, key)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// ReloadSubscriptions pulls a fresh subscription snapshot, rebuilds fanout,
// and runs the refresh pass once.
func (e *Engine) ReloadSubscriptions(ctx context.Context) error {
	if err := e.rebuildFanout(ctx); err != nil {
		return err
	}
	e.refreshOnce(ctx)
	return nil
}

// MarkDeviceActive records presence online and rebuilds fanout so the
// current-online filter in the subscription source is reflected.
func (e *Engine) MarkDeviceActive(ctx context.Context, deviceID string) error {
	if err := e.activity.MarkActive(ctx, deviceID, time.Now()); err != nil {
		return err
	}
	return e.rebuildFanout(ctx)
}

// MarkDeviceInactive records presence offline and rebuilds fanout.
func (e *Engine) MarkDeviceInactive(ctx context.Context, deviceID string) error {
	if err := e.activity.MarkInactive(ctx, deviceID); err != nil {
		return err
	}
	return e.rebuildFanout(ctx)
}

func (e *Engine) rebuildFanout(ctx context.Context) error {
	subscriptions, err := e.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	maps := fanout.Build(subscriptions, e.registry, e.log)
	e.fan.Store(maps)
	e.log.Debug().
		Int("keys", len(maps.ByKey)).
		Int("devices", len(maps.ByDevice)).
		Msg("fanout rebuilt")
	return nil
}

// publishKey composes and publishes a command to every currently-active
// device subscribed to key. One message per device, never a broadcast.
func (e *Engine) publishKey(ctx context.Context, key string) {
	fan := e.fan.Load()
	devices, ok := fan.ByKey[key]
	if !ok {
		return
	}
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	active, err := e.activity.ActiveIDs(ctx, ids, time.Now())
	if err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("activity lookup failed; skipping publish")
		return
	}
	for id := range active {
		e.publishDevice(ctx, id, fan)
	}
}

// publishDevice composes the device command from whatever is cached and
// publishes it. A device with no cached data still gets a command so the
// display can render "no data".
func (e *Engine) publishDevice(ctx context.Context, deviceID string, fan *fanout.Maps) {
	inputs := make([]compose.Input, 0, len(fan.ByDevice[deviceID]))
	for _, key := range fan.KeysForDevice(deviceID) {
		entry, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.log.Warn().Err(err).Str("key", key).Msg("cache read failed while composing")
			continue
		}
		if !ok {
			continue
		}
		inputs = append(inputs, compose.Input{Key: key, Entry: entry})
	}

	cmd := compose.Device(inputs, fan.OptionsFor(deviceID), e.labels, time.Now())
	payload, err := json.Marshal(cmd)
	if err != nil {
		e.log.Error().Err(err).Str("device", deviceID).Msg("command encode failed")
		return
	}
	if err := e.bus.Publish(ctx, compose.Topic(deviceID), payload); err != nil {
		// At-most-once: log, never retry.
		e.log.Error().Err(err).Str("device", deviceID).Msg("publish failed")
	}
}
