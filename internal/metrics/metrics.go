// Package metrics defines the telemetry sink the engine reports into, plus
// a prometheus-backed implementation and a no-op for tests.
package metrics

// Engine metric names.
const (
	FetchDuration = "engine.fetch.duration"
	Inflight      = "engine.inflight"
	CacheHit      = "engine.cache.hit"
	CacheMiss     = "engine.cache.miss"
	FetchError    = "engine.fetch.error"
)

// Sink receives engine telemetry. Implementations must not panic or block;
// the engine calls them on hot paths and never checks for errors.
type Sink interface {
	Increment(name string, value float64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Histogram(name string, value float64, tags map[string]string)
}

// Nop discards all telemetry.
type Nop struct{}

func (Nop) Increment(string, float64, map[string]string) {}
func (Nop) Gauge(string, float64, map[string]string)     {}
func (Nop) Histogram(string, float64, map[string]string) {}
