// Package progress defines the event structures emitted while a migration runs.
package progress

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageRunAborted    Stage = "RUN_ABORTED"
	StagePageFetched   Stage = "PAGE_FETCHED"
	StageRecordAttempt Stage = "RECORD_ATTEMPT"
	StageRecordSaved   Stage = "RECORD_SAVED"
	StageRecordFailed  Stage = "RECORD_FAILED"
)

// Event captures a single step of migration progress.
type Event struct {
	// RunID identifies the migration run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Site is the host of the record URL, used for per-site aggregates.
	Site string
	// URL is the article being written, if any.
	URL string
	// Title is the article title, for operator-facing sinks.
	Title string
	// Records is the record count of a fetched page.
	Records int64
	// Attempt is the 1-based write attempt for record stages.
	Attempt int
	// Dur captures write latency or total run time.
	Dur time.Duration
	// Note carries low-volume context such as the failure reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunAborted, StageRecordFailed:
	case StagePageFetched:
		if e.Records < 0 {
			return errors.New("page record count must be >= 0")
		}
	case StageRecordAttempt, StageRecordSaved:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// SiteOf returns the lowercase host of rawURL, or "unknown".
func SiteOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
}
