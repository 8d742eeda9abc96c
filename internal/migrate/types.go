package migrate

import (
	"strings"
	"time"
)

// Page is one response of the paginated source listing.
type Page struct {
	Records []RawRecord
	// Cursor resumes pagination after this page. Required when HasNext is set.
	Cursor  string
	HasNext bool
}

// Metadata is optional per-article enrichment. Sources may leave it nil.
type Metadata struct {
	Excerpt     string
	Domain      string
	TopImageURL string
	Authors     []string
}

// RawRecord is the source's view of a single saved article.
type RawRecord struct {
	ID          string
	URL         string
	ResolvedURL string
	Title       string
	Content     string
	// CreatedAt is the save time in seconds since the epoch.
	CreatedAt int64
	// Published is the raw publish date as returned by the source.
	Published  string
	IsArchived bool
	IsFavorite bool
	Tags       []string
	Meta       *Metadata
}

// TargetURL returns the URL that should be saved, preferring the given URL.
func (r RawRecord) TargetURL() string {
	if u := strings.TrimSpace(r.URL); u != "" {
		return u
	}
	return strings.TrimSpace(r.ResolvedURL)
}

// ArchiveState is the destination's reading state enum.
type ArchiveState string

// Destination states.
const (
	StateSucceeded ArchiveState = "SUCCEEDED"
	StateArchived  ArchiveState = "ARCHIVED"
)

// Label is a destination label reference.
type Label struct {
	Name string `json:"name"`
}

// Payload is the destination-shaped save request for one record.
type Payload struct {
	URL             string
	Title           string
	Content         string
	ClientRequestID string
	// Labels is nil when the record carries no labels; never an empty slice.
	Labels      []Label
	State       ArchiveState
	SavedAt     time.Time
	PublishedAt *time.Time
	Source      string
}

// SaveResult echoes the destination's acknowledgement.
type SaveResult struct {
	URL             string
	ClientRequestID string
}

// FailureRecord is one row of the failure report.
type FailureRecord struct {
	URL       string
	Title     string
	Tags      string
	Timestamp int64
	Reason    string
}

// NewFailureRecord captures the auditable fields of rec.
func NewFailureRecord(rec RawRecord, cause error) FailureRecord {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return FailureRecord{
		URL:       rec.TargetURL(),
		Title:     rec.Title,
		Tags:      strings.Join(rec.Tags, ","),
		Timestamp: rec.CreatedAt,
		Reason:    reason,
	}
}

// Outcome reports how a record left the sink.
type Outcome struct {
	Saved    bool
	Attempts int
	Err      error
}

// QueueItem carries one record from the producer to a consumer.
type QueueItem struct {
	Page   int
	Index  int
	Record RawRecord

	ack chan<- struct{}
}

// NewQueueItem builds an item that signals ack once a consumer takes it.
func NewQueueItem(page, index int, rec RawRecord, ack chan<- struct{}) QueueItem {
	return QueueItem{Page: page, Index: index, Record: rec, ack: ack}
}

// Ack tells the producer this item has been handed to a consumer. The ack
// channel is sized to the page so the send never blocks.
func (q QueueItem) Ack() {
	if q.ack == nil {
		return
	}
	select {
	case q.ack <- struct{}{}:
	default:
	}
}
