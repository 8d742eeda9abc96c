package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/readlater-migrate/internal/progress"
)

func TestLogSinkLevelsByStage(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	runID := uuid.New()
	id := progress.UUIDToBytes(runID)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: id, TS: time.Now(), Stage: progress.StagePageFetched, Records: 30},
		{RunID: id, TS: time.Now(), Stage: progress.StageRecordAttempt, URL: "https://a.example/x", Attempt: 1},
		{RunID: id, TS: time.Now(), Stage: progress.StageRecordFailed, URL: "https://a.example/x", Note: "boom"},
	}))

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, int64(30), entries[0].ContextMap()["records"])
	require.Equal(t, runID.String(), entries[0].ContextMap()["run_id"])
	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
	require.Equal(t, zapcore.WarnLevel, entries[2].Level)
	require.Equal(t, "boom", entries[2].ContextMap()["note"])
	require.NoError(t, sink.Close(context.Background()))
}
