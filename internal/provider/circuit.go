package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker around a plugin's Fetch.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes again
// after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

type breakered struct {
	Plugin
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps a plugin's Fetch in a circuit breaker so a flapping
// upstream stops consuming scheduler ticks while open.
func WithBreaker(p Plugin, cfg BreakerConfig) Plugin {
	settings := gobreaker.Settings{
		Name:        p.ID(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
	}
	return &breakered{
		Plugin:  p,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *breakered) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.Plugin.Fetch(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return FetchResult{}, fmt.Errorf("%w: circuit open for %s", ErrUpstreamUnavailable, b.ID())
		}
		return FetchResult{}, err
	}
	return out.(FetchResult), nil
}
