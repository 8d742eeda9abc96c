package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/readlater-migrate/internal/progress"
)

// SinkConfig tunes the retrying sink.
type SinkConfig struct {
	// ValidationRetries is how many extra attempts a destination validation
	// error gets. Values above 1 are clamped to 1.
	ValidationRetries int
	// RunID tags emitted progress events.
	RunID [16]byte
}

// Sink writes payloads to the destination with rate limiting and retries.
// It never returns an error: failed records go to the recorder instead.
type Sink struct {
	dest     Destination
	limiter  Limiter
	retry    *ExponentialRetryPolicy
	recorder FailureRecorder
	emitter  progress.Emitter
	clock    Clock
	cfg      SinkConfig
	logger   *zap.Logger
}

// NewSink wires a Sink. emitter and limiter may be nil.
func NewSink(
	dest Destination,
	limiter Limiter,
	retry *ExponentialRetryPolicy,
	recorder FailureRecorder,
	emitter progress.Emitter,
	clock Clock,
	cfg SinkConfig,
	logger *zap.Logger,
) *Sink {
	if retry == nil {
		retry = NewExponentialRetryPolicy(RetryConfig{Name: "write"}, nil)
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ValidationRetries < 0 {
		cfg.ValidationRetries = 0
	}
	if cfg.ValidationRetries > 1 {
		cfg.ValidationRetries = 1
	}
	return &Sink{
		dest:     dest,
		limiter:  limiter,
		retry:    retry,
		recorder: recorder,
		emitter:  emitter,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Write saves payload, retrying transient failures. Each attempt logs the
// record and passes the limiter before calling the destination.
func (s *Sink) Write(ctx context.Context, rec RawRecord, payload Payload) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("destination panic: %v", r)
			s.logger.Error("recovered panic while saving", zap.String("url", payload.URL), zap.Any("panic", r))
			out = s.Fail(rec, err)
		}
	}()

	start := s.now()
	validationLeft := s.cfg.ValidationRetries
	classify := func(err error) bool {
		var validation *ValidationError
		if errors.As(err, &validation) {
			if validationLeft > 0 {
				validationLeft--
				return true
			}
			return false
		}
		return IsTransient(err)
	}

	attempts, err := s.retry.DoWithCondition(ctx, func(ctx context.Context, attempt int) error {
		s.logger.Info("saving article",
			zap.String("title", payload.Title),
			zap.String("url", payload.URL),
			zap.Int("attempt", attempt),
		)
		s.emit(progress.Event{
			Stage:   progress.StageRecordAttempt,
			URL:     payload.URL,
			Title:   payload.Title,
			Attempt: attempt,
		})
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		res, err := s.dest.SavePage(ctx, payload)
		if err != nil {
			return err
		}
		if res.ClientRequestID != "" && res.ClientRequestID != payload.ClientRequestID {
			s.logger.Warn("destination echoed a different client request id",
				zap.String("url", payload.URL),
				zap.String("sent", payload.ClientRequestID),
				zap.String("received", res.ClientRequestID),
			)
		}
		return nil
	}, classify)
	if err != nil {
		out = s.Fail(rec, err)
		out.Attempts = attempts
		return out
	}

	s.emit(progress.Event{
		Stage:   progress.StageRecordSaved,
		URL:     payload.URL,
		Title:   payload.Title,
		Attempt: attempts,
		Dur:     s.now().Sub(start),
	})
	return Outcome{Saved: true, Attempts: attempts}
}

// Fail records rec as failed without writing it. Upstream stages use it for
// records that never reach the destination.
func (s *Sink) Fail(rec RawRecord, cause error) Outcome {
	failure := NewFailureRecord(rec, cause)
	s.logger.Error("failed to save article",
		zap.String("title", failure.Title),
		zap.String("url", failure.URL),
		zap.Error(cause),
	)
	if s.recorder != nil {
		s.recorder.Record(failure)
	}
	s.emit(progress.Event{
		Stage: progress.StageRecordFailed,
		URL:   failure.URL,
		Title: failure.Title,
		Note:  failure.Reason,
	})
	return Outcome{Saved: false, Err: cause}
}

func (s *Sink) emit(evt progress.Event) {
	if s.cfg.RunID == [16]byte{} {
		return
	}
	evt.RunID = s.cfg.RunID
	evt.TS = s.now()
	if evt.URL != "" {
		evt.Site = progress.SiteOf(evt.URL)
	}
	s.emitter.Emit(evt)
}

func (s *Sink) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
