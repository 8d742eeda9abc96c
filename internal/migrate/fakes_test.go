package migrate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/readlater-migrate/internal/progress"
)

type scriptedSource struct {
	mu      sync.Mutex
	pages   []Page
	errs    map[int][]error // call index -> errors to return before succeeding
	cursors []string
	served  int
}

func (s *scriptedSource) ListSavedItems(_ context.Context, cursor string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors = append(s.cursors, cursor)
	if pending := s.errs[s.served]; len(pending) > 0 {
		err := pending[0]
		s.errs[s.served] = pending[1:]
		return Page{}, err
	}
	if s.served >= len(s.pages) {
		return Page{}, fmt.Errorf("page %d requested past the end", s.served)
	}
	p := s.pages[s.served]
	s.served++
	return p, nil
}

func (s *scriptedSource) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cursors...)
}

type countingLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (l *countingLimiter) Wait(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits++
	return l.err
}

func (l *countingLimiter) Waits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waits
}

type fakeDestination struct {
	mu       sync.Mutex
	errs     []error
	panicMsg string
	payloads []Payload
}

func (d *fakeDestination) SavePage(_ context.Context, p Payload) (SaveResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.panicMsg != "" {
		panic(d.panicMsg)
	}
	d.payloads = append(d.payloads, p)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return SaveResult{}, err
		}
	}
	return SaveResult{URL: p.URL, ClientRequestID: p.ClientRequestID}, nil
}

func (d *fakeDestination) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.payloads)
}

type sequenceIDs struct {
	mu  sync.Mutex
	n   int
	err error
}

func (g *sequenceIDs) NewV4ID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.n++
	return fmt.Sprintf("key-%d", g.n), nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type memoryReport struct {
	mu     sync.Mutex
	writes map[string][]FailureRecord
	err    error
}

func (m *memoryReport) WriteReport(_ context.Context, name string, failures []FailureRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.writes == nil {
		m.writes = make(map[string][]FailureRecord)
	}
	m.writes[name] = append([]FailureRecord(nil), failures...)
	return "memory://" + name, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func fastRetry(name string, attempts int) *ExponentialRetryPolicy {
	return NewExponentialRetryPolicy(RetryConfig{
		Name:        name,
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}, nil)
}

func record(id string, tags ...string) RawRecord {
	return RawRecord{
		ID:        id,
		URL:       "https://example.com/" + id,
		Title:     "Title " + id,
		CreatedAt: 1700000000,
		Tags:      tags,
	}
}
