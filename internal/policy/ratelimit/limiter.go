// Package ratelimit implements the process-wide token bucket that gates every
// call made against the source and destination APIs.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/readlater-migrate/internal/metrics"
)

// Config expresses the ceiling as Count operations per Window.
type Config struct {
	Name   string
	Count  int
	Window time.Duration
	Burst  int
}

// Limiter is safe for concurrent use; the underlying rate.Limiter serializes
// access to its window state.
type Limiter struct {
	name    string
	limiter *rate.Limiter
}

// New creates a Limiter. A non-positive Count or Window disables throttling.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Count > 0 && cfg.Window > 0 {
		limit = rate.Limit(float64(cfg.Count) / cfg.Window.Seconds())
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	name := cfg.Name
	if name == "" {
		name = "global"
	}
	return &Limiter{name: name, limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a slot is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(l.name, waited)
	}
	return nil
}

// Wrap admits one operation and then runs op.
func (l *Limiter) Wrap(ctx context.Context, op func(context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	return op(ctx)
}

// Interval is the minimum spacing between admissions once the burst is spent.
// It is zero when throttling is disabled.
func (l *Limiter) Interval() time.Duration {
	limit := l.limiter.Limit()
	if limit == rate.Inf || limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(limit))
}
