package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/readlater-migrate/internal/progress"
)

// PrometheusSink exports migration progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	pagesFetched   prometheus.Counter
	recordsFetched prometheus.Counter
	recordAttempts *prometheus.CounterVec
	recordsSaved   *prometheus.CounterVec
	recordsFailed  *prometheus.CounterVec
	writeDuration  prometheus.Histogram

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "migrate_runs_started_total",
			Help: "Migration runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migrate_runs_completed_total",
			Help: "Migration runs completed, partitioned by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "migrate_runs_running",
			Help: "Migration runs currently in progress.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "migrate_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"result"}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "migrate_pages_fetched_total",
			Help: "Source pages fetched.",
		}),
		recordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "migrate_records_fetched_total",
			Help: "Records received from the source.",
		}),
		recordAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migrate_record_attempts_total",
			Help: "Destination write attempts per site.",
		}, []string{"site"}),
		recordsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migrate_records_saved_total",
			Help: "Records saved to the destination per site.",
		}, []string{"site"}),
		recordsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migrate_records_failed_total",
			Help: "Records that ended in the failure report per site.",
		}, []string{"site"}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "migrate_record_write_seconds",
			Help:    "Time from first attempt to a saved record.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runRuntime,
		s.pagesFetched,
		s.recordsFetched,
		s.recordAttempts,
		s.recordsSaved,
		s.recordsFailed,
		s.writeDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StageRunDone:
		s.finishRun(evt, "done")
	case progress.StageRunAborted:
		s.finishRun(evt, "aborted")
	case progress.StagePageFetched:
		s.pagesFetched.Inc()
		s.recordsFetched.Add(float64(evt.Records))
	case progress.StageRecordAttempt:
		s.recordAttempts.WithLabelValues(site).Inc()
	case progress.StageRecordSaved:
		s.recordsSaved.WithLabelValues(site).Inc()
		if evt.Dur > 0 {
			s.writeDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageRecordFailed:
		s.recordsFailed.WithLabelValues(site).Inc()
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsActive.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
