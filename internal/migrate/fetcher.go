package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// PageFetcher walks the source listing one page per call. It keeps the
// cursor itself so callers cannot rewind or skip pages.
type PageFetcher struct {
	source  Source
	limiter Limiter
	retry   *ExponentialRetryPolicy
	logger  *zap.Logger

	mu     sync.Mutex
	cursor string
	done   bool
	pages  int
}

// NewPageFetcher wires a fetcher. A nil limiter disables throttling and a nil
// policy uses the default retry budget.
func NewPageFetcher(source Source, limiter Limiter, retry *ExponentialRetryPolicy, logger *zap.Logger) *PageFetcher {
	if retry == nil {
		retry = NewExponentialRetryPolicy(RetryConfig{Name: "fetch"}, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageFetcher{
		source:  source,
		limiter: limiter,
		retry:   retry,
		logger:  logger,
	}
}

// Next fetches the page after the last one returned. The first call carries
// no cursor. Once the source reports no further pages it returns
// ErrNoMorePages without touching the source again. Failures other than
// context cancellation come back as *FatalFetchError.
func (f *PageFetcher) Next(ctx context.Context) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done {
		return Page{}, ErrNoMorePages
	}
	cursor := f.cursor

	var page Page
	attempts, err := f.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		p, err := f.source.ListSavedItems(ctx, cursor)
		if err != nil {
			f.logger.Warn("page fetch attempt failed",
				zap.Int("page", f.pages+1),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return Page{}, f.escalate(ctx, err)
	}

	if page.HasNext && page.Cursor == "" {
		return Page{}, &FatalFetchError{Op: "fetch page", Err: errors.New("source reported more pages without a cursor")}
	}
	if page.HasNext && cursor != "" && page.Cursor == cursor {
		return Page{}, &FatalFetchError{Op: "fetch page", Err: fmt.Errorf("cursor %q did not advance", cursor)}
	}

	f.pages++
	f.cursor = page.Cursor
	f.done = !page.HasNext
	f.logger.Debug("page fetched",
		zap.Int("page", f.pages),
		zap.Int("records", len(page.Records)),
		zap.Bool("has_next", page.HasNext),
		zap.Int("attempts", attempts),
	)
	return page, nil
}

// Pages returns how many pages have been fetched.
func (f *PageFetcher) Pages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages
}

func (f *PageFetcher) escalate(ctx context.Context, err error) error {
	var fatal *FatalFetchError
	if errors.As(err, &fatal) {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("fetch page: %w", err)
	}
	return &FatalFetchError{Op: "fetch page", Err: err}
}
