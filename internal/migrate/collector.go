package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyFlushed is returned by a second Flush.
var ErrAlreadyFlushed = errors.New("failure report already flushed")

// ReportName is the report file name for a run on the given date (UTC).
func ReportName(t time.Time) string {
	return fmt.Sprintf("error_%s.csv", t.UTC().Format("2006-01-02"))
}

// Collector accumulates failed records and writes them once at the end of a run.
type Collector struct {
	writer ReportWriter
	clock  Clock
	logger *zap.Logger

	mu       sync.Mutex
	failures []FailureRecord
	flushed  bool
}

// NewCollector builds a Collector that flushes through writer.
func NewCollector(writer ReportWriter, clock Clock, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{writer: writer, clock: clock, logger: logger}
}

// Record appends failure. Safe for concurrent use.
func (c *Collector) Record(failure FailureRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flushed {
		c.logger.Error("failure recorded after report flush",
			zap.String("url", failure.URL),
			zap.String("title", failure.Title),
			zap.String("reason", failure.Reason),
		)
		return
	}
	c.failures = append(c.failures, failure)
}

// Len returns the number of recorded failures.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failures)
}

// Failures returns a copy of the recorded failures.
func (c *Collector) Failures() []FailureRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FailureRecord(nil), c.failures...)
}

// Flush writes the dated report when at least one failure was recorded and
// returns its URI. With no failures nothing is written and the URI is empty.
func (c *Collector) Flush(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.flushed {
		c.mu.Unlock()
		return "", ErrAlreadyFlushed
	}
	c.flushed = true
	failures := append([]FailureRecord(nil), c.failures...)
	c.mu.Unlock()

	if len(failures) == 0 {
		return "", nil
	}
	if c.writer == nil {
		return "", errors.New("no report writer configured")
	}
	now := time.Now().UTC()
	if c.clock != nil {
		now = c.clock.Now()
	}
	uri, err := c.writer.WriteReport(ctx, ReportName(now), failures)
	if err != nil {
		return "", fmt.Errorf("write failure report: %w", err)
	}
	c.logger.Info("failure report written", zap.String("uri", uri), zap.Int("failures", len(failures)))
	return uri, nil
}
