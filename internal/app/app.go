// Package app assembles the migration's long-lived services from configuration
// and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/readlater-migrate/internal/api"
	"github.com/JakeFAU/readlater-migrate/internal/clock/system"
	"github.com/JakeFAU/readlater-migrate/internal/config"
	"github.com/JakeFAU/readlater-migrate/internal/destination/omnivore"
	idgen "github.com/JakeFAU/readlater-migrate/internal/id/uuid"
	"github.com/JakeFAU/readlater-migrate/internal/logging"
	"github.com/JakeFAU/readlater-migrate/internal/migrate"
	"github.com/JakeFAU/readlater-migrate/internal/pipeline"
	"github.com/JakeFAU/readlater-migrate/internal/policy/ratelimit"
	"github.com/JakeFAU/readlater-migrate/internal/progress"
	progresssinks "github.com/JakeFAU/readlater-migrate/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/readlater-migrate/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/readlater-migrate/internal/publisher/pubsub"
	"github.com/JakeFAU/readlater-migrate/internal/report"
	"github.com/JakeFAU/readlater-migrate/internal/source/export"
	"github.com/JakeFAU/readlater-migrate/internal/source/pocket"
	gcsstorage "github.com/JakeFAU/readlater-migrate/internal/storage/gcs"
	localstorage "github.com/JakeFAU/readlater-migrate/internal/storage/local"
	pgstore "github.com/JakeFAU/readlater-migrate/internal/storage/postgres"
	"github.com/JakeFAU/readlater-migrate/internal/store"
	"github.com/JakeFAU/readlater-migrate/internal/telemetry"
)

const serviceName = "readlater-migrate"

// Source is what a migration reads from: the Pocket API or an export file.
type Source interface {
	migrate.Source
	migrate.ItemSource
}

// Option customizes Build.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	httpClient *http.Client
	source     Source
}

// WithLogger skips logger construction from the logging config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers progress metrics somewhere other than the default
// Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithHTTPClient replaces the client used for both GraphQL APIs.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithSource replaces the configured source.
func WithSource(src Source) Option {
	return func(o *options) { o.source = src }
}

// App contains one migration's dependencies. It serves a single run or a
// single-item import.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  uuid.UUID
	clock  *system.Clock

	source      Source
	destination migrate.Destination
	limiter     *ratelimit.Limiter
	fetchRetry  *migrate.ExponentialRetryPolicy

	gcsStore  *gcsstorage.BlobStore
	runStore  *pgstore.RunStore
	runRepo   store.RunRepository
	hub       *progress.Hub
	publisher pipeline.Publisher
	gcpPub    *gcppublisher.Publisher

	collector   *migrate.Collector
	transformer *migrate.Transformer
	sink        *migrate.Sink
	fetcher     *migrate.PageFetcher

	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies. On error everything opened
// so far is closed again.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}

	ids := idgen.New()
	runID, err := ids.NewRunID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger.With(zap.String("run_id", runID.String())),
		runID:  runID,
		clock:  system.New(),
	}
	defer func() {
		if err != nil {
			a.closeInfrastructure(context.WithoutCancel(ctx))
		}
	}()

	a.logger.Info("building application dependencies",
		zap.Bool("export_file", cfg.Source.ExportFile != ""),
		zap.Int("rate_limit_count", cfg.RateLimit.Count),
		zap.Duration("rate_limit_window", cfg.RateLimit.Window),
		zap.Int("concurrency", cfg.Pipeline.Concurrency),
	)

	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown

	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.HTTP.Timeout}
	}

	if o.source != nil {
		a.source = o.source
	} else if a.source, err = setupSource(a, hc); err != nil {
		return nil, err
	}
	a.destination = omnivore.New(omnivore.Config{
		Endpoint: cfg.Destination.Endpoint,
		APIKey:   cfg.Destination.APIKey,
		Timeout:  cfg.HTTP.Timeout,
	}, hc, a.logger.Named("omnivore"))

	blobStore, err := setupStorage(ctx, a)
	if err != nil {
		return nil, err
	}
	if err = setupDatabase(ctx, a); err != nil {
		return nil, err
	}
	if err = setupPublisher(ctx, a); err != nil {
		return nil, err
	}
	emitter, err := setupProgress(a, o.registerer)
	if err != nil {
		return nil, err
	}

	a.limiter = ratelimit.New(ratelimit.Config{
		Name:   "api",
		Count:  cfg.RateLimit.Count,
		Window: cfg.RateLimit.Window,
		Burst:  cfg.RateLimit.Burst,
	})
	a.fetchRetry = migrate.NewExponentialRetryPolicy(migrate.RetryConfig{
		Name:        "fetch",
		MaxAttempts: cfg.Retry.FetchMaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, nil)
	writeRetry := migrate.NewExponentialRetryPolicy(migrate.RetryConfig{
		Name:        "write",
		MaxAttempts: cfg.Retry.WriteMaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, nil)

	a.collector = migrate.NewCollector(report.NewWriter(blobStore), a.clock, a.logger.Named("collector"))
	a.transformer = migrate.NewTransformer(ids, migrate.TransformConfig{
		FavoriteLabel: cfg.Labels.Favorite,
		GlobalLabel:   cfg.Labels.Global,
	})
	a.sink = migrate.NewSink(
		a.destination,
		a.limiter,
		writeRetry,
		a.collector,
		emitter,
		a.clock,
		migrate.SinkConfig{
			ValidationRetries: cfg.Retry.ValidationRetries,
			RunID:             progress.UUIDToBytes(runID),
		},
		a.logger.Named("sink"),
	)
	a.fetcher = migrate.NewPageFetcher(a.source, a.limiter, a.fetchRetry, a.logger.Named("fetcher"))

	return a, nil
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunID identifies this run in logs, progress rows and the summary message.
func (a *App) RunID() uuid.UUID {
	return a.runID
}

// Migrate runs the full migration. SIGINT and SIGTERM abort the run; the
// failure report is still flushed before Migrate returns.
func (a *App) Migrate(ctx context.Context) (pipeline.Summary, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, span := telemetry.StartRun(ctx, "migration.run", a.runID.String())
	defer span.End()

	orch := pipeline.New(a.runID, pipeline.Components{
		Fetcher:     a.fetcher,
		Transformer: a.transformer,
		Sink:        a.sink,
		Collector:   a.collector,
		Emitter:     a.emitter(),
		Publisher:   a.publisher,
		Clock:       a.clock,
	}, pipeline.Config{
		BufferSize:   a.cfg.Pipeline.BufferSize,
		Concurrency:  a.cfg.Pipeline.Concurrency,
		FlushTimeout: a.cfg.Pipeline.FlushTimeout,
		SummaryTopic: a.cfg.PubSub.Topic,
	}, a.logger.Named("pipeline"))

	stopServer := a.startServer(ctx, orch)
	defer stopServer()

	summary, err := orch.Run(ctx)
	fields := []zap.Field{
		zap.String("state", string(summary.State)),
		zap.Int("pages", summary.Pages),
		zap.Int("fetched", summary.Fetched),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.String("report", summary.ReportURI),
		zap.String("trace_id", telemetry.TraceID(ctx)),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aborted")
		a.logger.Error("run aborted", append(fields, zap.Error(err))...)
		return summary, err
	}
	a.logger.Info("run complete", fields...)
	return summary, nil
}

// ImportOne migrates the single saved item id through the same limiter,
// retry policy, sink and report as a full run.
func (a *App) ImportOne(ctx context.Context, id string) (migrate.Outcome, string, error) {
	if id == "" {
		return migrate.Outcome{}, "", errors.New("item id is required")
	}
	ctx, span := telemetry.StartRun(ctx, "migration.import_one", a.runID.String())
	defer span.End()
	emitter := a.emitter()
	emitter.Emit(progress.Event{RunID: progress.UUIDToBytes(a.runID), TS: a.clock.Now(), Stage: progress.StageRunStart})

	var rec migrate.RawRecord
	_, err := a.fetchRetry.Do(ctx, func(ctx context.Context, _ int) error {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		var gerr error
		rec, gerr = a.source.GetSavedItem(ctx, id)
		return gerr
	})
	if err != nil {
		err = fmt.Errorf("get saved item %s: %w", id, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		emitter.Emit(progress.Event{
			RunID: progress.UUIDToBytes(a.runID),
			TS:    a.clock.Now(),
			Stage: progress.StageRunAborted,
			Note:  err.Error(),
		})
		return migrate.Outcome{}, "", err
	}

	var out migrate.Outcome
	payload, terr := a.transformer.Transform(rec)
	if terr != nil {
		out = a.sink.Fail(rec, terr)
	} else {
		out = a.sink.Write(ctx, rec, payload)
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.flushTimeout())
	defer cancel()
	uri, ferr := a.collector.Flush(flushCtx)
	if ferr != nil {
		ferr = fmt.Errorf("flush failure report: %w", ferr)
	}
	emitter.Emit(progress.Event{
		RunID: progress.UUIDToBytes(a.runID),
		TS:    a.clock.Now(),
		Stage: progress.StageRunDone,
	})
	a.logger.Info("single item import finished",
		zap.String("id", id),
		zap.String("url", rec.TargetURL()),
		zap.Bool("saved", out.Saved),
		zap.Int("attempts", out.Attempts),
		zap.String("report", uri),
	)
	return out, uri, ferr
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		// stderr and stdout reject fsync on most terminals.
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.gcpPub != nil {
		if err := a.gcpPub.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.runStore != nil {
		a.runStore.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func (a *App) emitter() progress.Emitter {
	if a.hub == nil {
		return progress.NopEmitter{}
	}
	return a.hub
}

func (a *App) flushTimeout() time.Duration {
	if a.cfg.Pipeline.FlushTimeout > 0 {
		return a.cfg.Pipeline.FlushTimeout
	}
	return 30 * time.Second
}

// startServer runs the status server for the lifetime of the run. The
// returned func stops it and waits for shutdown.
func (a *App) startServer(ctx context.Context, status api.StatusSource) func() {
	if a.cfg.Server.Addr == "" {
		return func() {}
	}
	srv := api.NewServer(status, a.runRepo, a.logger.Named("api"))
	srvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(srvCtx, a.cfg.Server.Addr); err != nil {
			a.logger.Error("status server error", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func setupSource(a *App, hc *http.Client) (Source, error) {
	if path := a.cfg.Source.ExportFile; path != "" {
		src, err := export.Open(path, a.cfg.Source.PageSize)
		if err != nil {
			return nil, fmt.Errorf("export source init failed: %w", err)
		}
		a.logger.Info("using export file source", zap.String("path", path), zap.Int("records", src.Len()))
		return src, nil
	}
	a.logger.Info("using pocket api source", zap.String("endpoint", a.cfg.Source.Endpoint))
	return pocket.New(pocket.Config{
		Endpoint:    a.cfg.Source.Endpoint,
		ConsumerKey: a.cfg.Source.ConsumerKey,
		Cookie:      a.cfg.Source.Cookie,
		PageSize:    a.cfg.Source.PageSize,
		Timeout:     a.cfg.HTTP.Timeout,
	}, hc, a.logger.Named("pocket")), nil
}

func setupStorage(ctx context.Context, a *App) (report.BlobStore, error) {
	if bucket := a.cfg.Report.GCSBucket; bucket != "" {
		bs, err := gcsstorage.Open(ctx, gcsstorage.Config{
			Bucket: bucket,
			Prefix: a.cfg.Report.Prefix,
		}, a.logger.Named("gcs"))
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcsStore = bs
		a.logger.Info("using GCS report storage", zap.String("bucket", bucket))
		return bs, nil
	}
	bs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Report.Dir})
	if err != nil {
		return nil, fmt.Errorf("local blob store init failed: %w", err)
	}
	a.logger.Debug("using local report storage", zap.String("dir", a.cfg.Report.Dir))
	return bs, nil
}

func setupDatabase(ctx context.Context, a *App) error {
	if a.cfg.Progress.DSN == "" {
		a.logger.Debug("no progress DSN configured, run history is not persisted")
		return nil
	}
	rs, err := pgstore.Open(ctx, pgstore.Config{DSN: a.cfg.Progress.DSN})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.runStore = rs
	if err := rs.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("run store schema: %w", err)
	}
	a.runRepo = rs
	a.logger.Info("run store initialized")
	return nil
}

func setupPublisher(ctx context.Context, a *App) error {
	if !a.cfg.PubSub.Enabled() {
		a.logger.Debug("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.gcpPub = pub
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

func setupProgress(a *App, reg prometheus.Registerer) (progress.Emitter, error) {
	var sinkList []progress.Sink
	if a.runRepo != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.runRepo, a.logger.Named("progress_store")))
	}
	if a.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatch,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Debug("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return a.hub, nil
}
