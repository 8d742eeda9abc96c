package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/readlater-migrate/internal/migrate"
)

// eventLog is a shared, ordered trace of source and destination calls.
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *eventLog) index(entry string) int {
	for i, e := range l.snapshot() {
		if e == entry {
			return i
		}
	}
	return -1
}

type pagedSource struct {
	pages []migrate.Page
	// fatalAt makes the call with this index fail permanently; -1 disables.
	fatalAt int
	log     *eventLog
	calls   atomic.Int32
}

func (s *pagedSource) ListSavedItems(_ context.Context, _ string) (migrate.Page, error) {
	call := int(s.calls.Add(1)) - 1
	if s.log != nil {
		s.log.add(fmt.Sprintf("fetch:%d", call))
	}
	if call == s.fatalAt {
		return migrate.Page{}, &migrate.FatalFetchError{Op: "list saved items", Err: fmt.Errorf("unauthorized")}
	}
	if call >= len(s.pages) {
		return migrate.Page{}, fmt.Errorf("page %d requested past the end", call)
	}
	return s.pages[call], nil
}

type scriptedDestination struct {
	mu      sync.Mutex
	fail    map[string]error // url -> error returned on every attempt
	saved   []string
	log     *eventLog
	delay   time.Duration
	entered chan string
	release chan struct{}
}

func (d *scriptedDestination) SavePage(_ context.Context, p migrate.Payload) (migrate.SaveResult, error) {
	if d.log != nil {
		d.log.add("save:" + p.Title)
	}
	if d.entered != nil {
		select {
		case d.entered <- p.Title:
		default:
		}
	}
	if d.release != nil {
		<-d.release
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[p.URL]; err != nil {
		return migrate.SaveResult{}, err
	}
	d.saved = append(d.saved, p.URL)
	return migrate.SaveResult{URL: p.URL, ClientRequestID: p.ClientRequestID}, nil
}

func (d *scriptedDestination) Saved() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.saved...)
}

type counterIDs struct{ n atomic.Int64 }

func (c *counterIDs) NewV4ID() (string, error) {
	return fmt.Sprintf("key-%d", c.n.Add(1)), nil
}

type memoryReport struct {
	mu     sync.Mutex
	writes map[string][]migrate.FailureRecord
}

func (m *memoryReport) WriteReport(_ context.Context, name string, failures []migrate.FailureRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writes == nil {
		m.writes = make(map[string][]migrate.FailureRecord)
	}
	m.writes[name] = append([]migrate.FailureRecord(nil), failures...)
	return "memory://" + name, nil
}

func (m *memoryReport) Rows() []migrate.FailureRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []migrate.FailureRecord
	for _, rows := range m.writes {
		out = append(out, rows...)
	}
	return out
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []any
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return fmt.Sprintf("msg-%d", len(p.payloads)), nil
}

func rec(id string) migrate.RawRecord {
	return migrate.RawRecord{
		ID:        id,
		URL:       "https://example.com/" + id,
		Title:     id,
		CreatedAt: 1700000000,
		Tags:      []string{"t"},
	}
}

func pages(ids ...[]string) []migrate.Page {
	out := make([]migrate.Page, len(ids))
	for i, group := range ids {
		records := make([]migrate.RawRecord, len(group))
		for j, id := range group {
			records[j] = rec(id)
		}
		out[i] = migrate.Page{Records: records, HasNext: i < len(ids)-1}
		if out[i].HasNext {
			out[i].Cursor = fmt.Sprintf("cursor-%d", i)
		}
	}
	return out
}
