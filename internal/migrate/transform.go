package migrate

import (
	"strings"
	"time"
)

// DefaultSaveSource is the source tag the destination records for API imports.
const DefaultSaveSource = "api"

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// TransformConfig holds the optional labels applied during transform.
type TransformConfig struct {
	// FavoriteLabel is appended to records flagged as favorites.
	FavoriteLabel string
	// GlobalLabel is appended to every record.
	GlobalLabel string
	// Source is sent as the payload's source field.
	Source string
}

// Transformer maps source records to destination payloads without I/O.
type Transformer struct {
	ids IDGenerator
	cfg TransformConfig
}

// NewTransformer builds a Transformer that draws idempotency keys from ids.
func NewTransformer(ids IDGenerator, cfg TransformConfig) *Transformer {
	cfg.FavoriteLabel = strings.TrimSpace(cfg.FavoriteLabel)
	cfg.GlobalLabel = strings.TrimSpace(cfg.GlobalLabel)
	if cfg.Source == "" {
		cfg.Source = DefaultSaveSource
	}
	return &Transformer{ids: ids, cfg: cfg}
}

// Transform shapes rec into a Payload. The idempotency key is generated here,
// once per record, and reused by every write attempt.
func (t *Transformer) Transform(rec RawRecord) (Payload, error) {
	url := rec.TargetURL()
	if url == "" {
		return Payload{}, &TransformError{ID: rec.ID, Reason: "record has no url"}
	}
	key, err := t.ids.NewV4ID()
	if err != nil {
		return Payload{}, &TransformError{ID: rec.ID, Reason: "generate client request id", Err: err}
	}
	state := StateSucceeded
	if rec.IsArchived {
		state = StateArchived
	}
	return Payload{
		URL:             url,
		Title:           rec.Title,
		Content:         rec.Content,
		ClientRequestID: key,
		Labels:          t.labels(rec),
		State:           state,
		SavedAt:         time.Unix(rec.CreatedAt, 0).UTC(),
		PublishedAt:     ParsePublished(rec.Published),
		Source:          t.cfg.Source,
	}, nil
}

func (t *Transformer) labels(rec RawRecord) []Label {
	var labels []Label
	for _, tag := range rec.Tags {
		if name := strings.TrimSpace(tag); name != "" {
			labels = append(labels, Label{Name: name})
		}
	}
	if rec.IsFavorite && t.cfg.FavoriteLabel != "" {
		labels = append(labels, Label{Name: t.cfg.FavoriteLabel})
	}
	if t.cfg.GlobalLabel != "" {
		labels = append(labels, Label{Name: t.cfg.GlobalLabel})
	}
	// The destination rejects an empty array, so no labels stays nil.
	return labels
}

// ParsePublished converts the source publish date into an instant. Unknown or
// empty values yield nil rather than a default.
func ParsePublished(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		ts, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if ts.Year() <= 1 {
			return nil
		}
		ts = ts.UTC()
		return &ts
	}
	return nil
}
