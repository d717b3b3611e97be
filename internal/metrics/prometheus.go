package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus maps the engine's metric names onto registered collectors.
// Unknown names are dropped silently so the sink stays non-throwing.
type Prometheus struct {
	fetchDuration *prometheus.HistogramVec
	inflight      prometheus.Gauge
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	fetchErrors   *prometheus.CounterVec
}

// NewPrometheus registers the engine collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transitdeck_fetch_duration_seconds",
				Help:    "Duration of provider fetches in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"provider"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "transitdeck_inflight_fetches",
				Help: "Number of fetches currently in flight",
			},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "transitdeck_cache_hits_total",
				Help: "Scheduler ticks that found a fresh cache entry",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "transitdeck_cache_misses_total",
				Help: "Scheduler ticks that found a missing or expired entry",
			},
		),
		fetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transitdeck_fetch_errors_total",
				Help: "Provider fetch failures",
			},
			[]string{"provider"},
		),
	}
	reg.MustRegister(p.fetchDuration, p.inflight, p.cacheHits, p.cacheMisses, p.fetchErrors)
	return p
}

func (p *Prometheus) Increment(name string, value float64, tags map[string]string) {
	switch name {
	case CacheHit:
		p.cacheHits.Add(value)
	case CacheMiss:
		p.cacheMisses.Add(value)
	case FetchError:
		p.fetchErrors.WithLabelValues(tags["provider"]).Add(value)
	}
}

func (p *Prometheus) Gauge(name string, value float64, tags map[string]string) {
	if name == Inflight {
		p.inflight.Set(value)
	}
}

func (p *Prometheus) Histogram(name string, value float64, tags map[string]string) {
	if name == FetchDuration {
		p.fetchDuration.WithLabelValues(tags["provider"]).Observe(value)
	}
}
