package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimited wraps a plugin so its fetches respect a token bucket. Upstream
// transit APIs meter by requests per second; the limiter blocks until a
// token is available or the context is done.
type rateLimited struct {
	Plugin
	limiter *rate.Limiter
}

// WithRateLimit caps the wrapped plugin at rps requests per second with the
// given burst.
func WithRateLimit(p Plugin, rps float64, burst int) Plugin {
	return &rateLimited{
		Plugin:  p,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *rateLimited) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return FetchResult{}, fmt.Errorf("%w: rate limit wait: %v", ErrFetch, err)
	}
	return r.Plugin.Fetch(ctx, req)
}
