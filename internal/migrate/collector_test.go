package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollectorNoFailuresWritesNothing(t *testing.T) {
	t.Parallel()

	report := &memoryReport{}
	c := NewCollector(report, fixedClock{now: time.Now()}, nil)

	uri, err := c.Flush(context.Background())
	require.NoError(t, err)
	require.Empty(t, uri)
	require.Empty(t, report.writes)
}

func TestCollectorFlushWritesDatedReport(t *testing.T) {
	t.Parallel()

	report := &memoryReport{}
	clock := fixedClock{now: time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC)}
	c := NewCollector(report, clock, nil)
	c.Record(NewFailureRecord(record("a", "x", "y"), errors.New("boom")))

	uri, err := c.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, "memory://error_2024-02-29.csv", uri)
	rows := report.writes["error_2024-02-29.csv"]
	require.Len(t, rows, 1)
	require.Equal(t, "x,y", rows[0].Tags)
	require.Equal(t, "boom", rows[0].Reason)
}

func TestCollectorFlushesOnce(t *testing.T) {
	t.Parallel()

	c := NewCollector(&memoryReport{}, fixedClock{now: time.Now()}, nil)
	c.Record(NewFailureRecord(record("a"), nil))

	_, err := c.Flush(context.Background())
	require.NoError(t, err)
	_, err = c.Flush(context.Background())
	require.ErrorIs(t, err, ErrAlreadyFlushed)

	c.Record(NewFailureRecord(record("b"), nil))
	require.Equal(t, 1, c.Len())
}

func TestCollectorFlushSurfacesWriterError(t *testing.T) {
	t.Parallel()

	c := NewCollector(&memoryReport{err: errors.New("disk full")}, fixedClock{now: time.Now()}, nil)
	c.Record(NewFailureRecord(record("a"), nil))

	_, err := c.Flush(context.Background())
	require.ErrorContains(t, err, "disk full")
}

func TestCollectorConcurrentRecord(t *testing.T) {
	t.Parallel()

	c := NewCollector(&memoryReport{}, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Record(NewFailureRecord(record(fmt.Sprintf("r%d", i)), nil))
		}(i)
	}
	wg.Wait()
	require.Equal(t, 50, c.Len())
}

func TestReportName(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+9", 9*3600)
	require.Equal(t, "error_2024-01-01.csv", ReportName(time.Date(2024, 1, 2, 8, 0, 0, 0, loc)))
}
