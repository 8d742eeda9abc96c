package migrate

import (
	"context"
	"time"
)

// Source lists saved items page by page. An empty cursor requests the first page.
type Source interface {
	ListSavedItems(ctx context.Context, cursor string) (Page, error)
}

// ItemSource loads a single saved item by its source identifier.
type ItemSource interface {
	GetSavedItem(ctx context.Context, id string) (RawRecord, error)
}

// Destination saves one page (article) at the target service.
type Destination interface {
	SavePage(ctx context.Context, payload Payload) (SaveResult, error)
}

// Limiter admits callers at the configured rate.
type Limiter interface {
	Wait(ctx context.Context) error
}

// ReportWriter persists the failure report under name and returns its URI.
type ReportWriter interface {
	WriteReport(ctx context.Context, name string, failures []FailureRecord) (string, error)
}

// FailureRecorder accepts failed records.
type FailureRecorder interface {
	Record(failure FailureRecord)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces idempotency keys.
type IDGenerator interface {
	NewV4ID() (string, error)
}
