package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/readlater-migrate/internal/progress"
	"github.com/JakeFAU/readlater-migrate/internal/store"
)

// StoreSink persists run lifecycle and per-site counters through a
// store.RunRepository. Record events are collapsed per (run, site) within a
// batch so each batch costs one upsert per site.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies batch to the repository. Run starts are written before site
// counters and completions after, so a single batch spanning a whole run
// still lands in order.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[siteKey]*siteAgg)
	var completions []progress.Event

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.UpsertRunStart(ctx, runID, evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageRunDone, progress.StageRunAborted:
			completions = append(completions, evt)
		case progress.StageRecordAttempt, progress.StageRecordSaved, progress.StageRecordFailed:
			accumulate(stats, runID, evt)
		}
	}

	for key, agg := range stats {
		if agg.delta.Zero() {
			continue
		}
		if err := s.repo.UpsertSiteStats(ctx, key.runID, key.site, agg.delta, agg.at); err != nil {
			return fmt.Errorf("upsert site stats: %w", err)
		}
	}

	for _, evt := range completions {
		status := store.RunDone
		var note *string
		if evt.Stage == progress.StageRunAborted {
			status = store.RunAborted
			if evt.Note != "" {
				msg := evt.Note
				note = &msg
			}
		}
		if err := s.repo.CompleteRun(ctx, evt.RunUUID(), evt.TS, status, note); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

func accumulate(stats map[siteKey]*siteAgg, runID uuid.UUID, evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = progress.SiteOf(evt.URL)
	}
	key := siteKey{runID: runID, site: site}
	agg := stats[key]
	if agg == nil {
		agg = &siteAgg{}
		stats[key] = agg
	}
	switch evt.Stage {
	case progress.StageRecordAttempt:
		agg.delta.Attempts++
	case progress.StageRecordSaved:
		agg.delta.Saved++
	case progress.StageRecordFailed:
		agg.delta.Failed++
	}
	if evt.TS.After(agg.at) {
		agg.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type siteKey struct {
	runID uuid.UUID
	site  string
}

type siteAgg struct {
	delta store.SiteDelta
	at    time.Time
}
