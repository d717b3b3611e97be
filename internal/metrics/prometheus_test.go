package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func TestPrometheus_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheus(reg)

	sink.Increment(CacheHit, 1, nil)
	sink.Increment(CacheHit, 1, nil)
	sink.Increment(CacheMiss, 1, nil)
	sink.Increment(FetchError, 1, map[string]string{"provider": "mta"})

	families := gather(t, reg)

	hits := families["transitdeck_cache_hits_total"]
	require.NotNil(t, hits)
	assert.Equal(t, float64(2), hits.Metric[0].Counter.GetValue())

	misses := families["transitdeck_cache_misses_total"]
	require.NotNil(t, misses)
	assert.Equal(t, float64(1), misses.Metric[0].Counter.GetValue())

	errs := families["transitdeck_fetch_errors_total"]
	require.NotNil(t, errs)
	require.Len(t, errs.Metric, 1)
	assert.Equal(t, "provider", errs.Metric[0].Label[0].GetName())
	assert.Equal(t, "mta", errs.Metric[0].Label[0].GetValue())
	assert.Equal(t, float64(1), errs.Metric[0].Counter.GetValue())
}

func TestPrometheus_Gauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheus(reg)

	sink.Gauge(Inflight, 4, nil)
	sink.Gauge(Inflight, 2, nil)

	families := gather(t, reg)
	inflight := families["transitdeck_inflight_fetches"]
	require.NotNil(t, inflight)
	assert.Equal(t, float64(2), inflight.Metric[0].Gauge.GetValue())
}

func TestPrometheus_Histogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheus(reg)

	sink.Histogram(FetchDuration, 0.2, map[string]string{"provider": "mta"})
	sink.Histogram(FetchDuration, 0.4, map[string]string{"provider": "mta"})

	families := gather(t, reg)
	durations := families["transitdeck_fetch_duration_seconds"]
	require.NotNil(t, durations)
	require.Len(t, durations.Metric, 1)
	hist := durations.Metric[0].Histogram
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 0.6, hist.GetSampleSum(), 1e-9)
}

func TestPrometheus_UnknownNamesDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheus(reg)

	// Must not panic or register anything new.
	sink.Increment("bogus", 1, nil)
	sink.Gauge("bogus", 1, nil)
	sink.Histogram("bogus", 1, nil)
}

func TestNop(t *testing.T) {
	var sink Sink = Nop{}
	sink.Increment(CacheHit, 1, nil)
	sink.Gauge(Inflight, 1, nil)
	sink.Histogram(FetchDuration, 1, nil)
}
