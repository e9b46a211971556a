package notify

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles deliveries to next with a token bucket.
type RateLimited struct {
	next    Notifier
	limiter *rate.Limiter
}

// NewRateLimited wraps next. A non-positive perSec disables throttling.
func NewRateLimited(next Notifier, perSec float64, burst int) *RateLimited {
	limit := rate.Inf
	if perSec > 0 {
		limit = rate.Limit(perSec)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Notify waits for a token, then delivers. A cancelled wait is a delivery failure.
func (r *RateLimited) Notify(ctx context.Context, event Event) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Notify(ctx, event)
}
