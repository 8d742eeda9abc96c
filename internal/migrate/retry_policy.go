package migrate

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/JakeFAU/readlater-migrate/internal/metrics"
)

// RetryConfig tunes an ExponentialRetryPolicy.
type RetryConfig struct {
	// Name labels retry metrics, e.g. "fetch" or "write".
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Classifier decides whether an error is retryable.
type Classifier func(err error) bool

// ExponentialRetryPolicy retries an operation with jittered, doubling backoff.
type ExponentialRetryPolicy struct {
	name        string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	classify    Classifier
}

// NewExponentialRetryPolicy builds a policy. Zero values fall back to 3
// attempts, 250ms base and 5s cap; a nil classifier uses IsTransient.
func NewExponentialRetryPolicy(cfg RetryConfig, classify Classifier) *ExponentialRetryPolicy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if classify == nil {
		classify = IsTransient
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	return &ExponentialRetryPolicy{
		name:        cfg.Name,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		classify:    classify,
	}
}

// MaxAttempts returns the total attempt budget, including the first try.
func (p *ExponentialRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether another attempt follows attempt (1-based).
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	return p.classify(err)
}

// Backoff returns the wait before the attempt following attempt (1-based).
// Half the delay is fixed and half is random.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

// Do runs op until it succeeds, the classifier rejects its error, or the
// attempt budget is spent. The attempt number is passed to op.
func (p *ExponentialRetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	return p.DoWithCondition(ctx, op, p.classify)
}

// DoWithCondition is Do with a caller-supplied classifier. It returns the
// number of attempts made.
func (p *ExponentialRetryPolicy) DoWithCondition(
	ctx context.Context,
	op func(ctx context.Context, attempt int) error,
	classify Classifier,
) (int, error) {
	if classify == nil {
		classify = p.classify
	}
	for attempt := 1; ; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		retryable := classify(err)
		if !retryable {
			return attempt, err
		}
		if attempt >= p.maxAttempts {
			return attempt, fmt.Errorf("all %d attempts failed: %w", attempt, err)
		}
		delay := p.Backoff(attempt)
		if after := RetryAfter(err); after > delay {
			delay = after
		}
		metrics.ObserveRetry(p.name)
		if err := sleep(ctx, delay); err != nil {
			return attempt, fmt.Errorf("retry canceled: %w", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
