package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/readlater-migrate/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StagePageFetched, Records: 2},
		{RunID: runID, TS: now, Stage: progress.StageRecordAttempt, Site: "example.com", URL: "https://example.com/a", Attempt: 1},
		{RunID: runID, TS: now, Stage: progress.StageRecordSaved, Site: "example.com", URL: "https://example.com/a", Dur: 200 * time.Millisecond},
		{RunID: runID, TS: now, Stage: progress.StageRecordFailed, Site: "other.org", URL: "https://other.org/b"},
		{RunID: runID, TS: now.Add(15 * time.Second), Stage: progress.StageRunDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("done")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("aborted")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesFetched))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.recordsFetched))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.recordAttempts.WithLabelValues("example.com")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.recordsSaved.WithLabelValues("example.com")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.recordsFailed.WithLabelValues("other.org")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.writeDuration, "migrate_record_write_seconds"))
}

func TestPrometheusSinkTracksRunningGauge(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	start := progress.Event{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsActive))

	abort := progress.Event{RunID: runID, TS: time.Now(), Stage: progress.StageRunAborted}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{abort, abort}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("aborted")))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
