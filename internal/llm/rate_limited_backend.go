package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type rateLimitedBackend struct {
	delegate Backend
	limiter  *rate.Limiter
}

// NewRateLimitedBackend returns a Backend that allows at most perMinute calls
// per minute with the given burst. A non-positive perMinute disables
// throttling.
func NewRateLimitedBackend(base Backend, perMinute, burst int) Backend {
	if base == nil || perMinute <= 0 {
		return base
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedBackend{
		delegate: base,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

func (b *rateLimitedBackend) Generate(ctx context.Context, turns []Turn) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return b.delegate.Generate(ctx, turns)
}
