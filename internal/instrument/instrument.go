// Package instrument wraps remote calls so each one is tracked in the
// loading store, timed, counted and logged, without changing what the
// caller gets back.
package instrument

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/truthboard/internal/domain"
	"github.com/vadiminshakov/truthboard/internal/observability"
)

// ErrTimedOut is recorded for calls force-settled by the tracking timeout.
var ErrTimedOut = errors.New("remote call exceeded tracking timeout")

// Tracker receives lifecycle events of tracked requests.
type Tracker interface {
	Begin(req domain.TrackedRequest)
	Settle(id string, outcome domain.Outcome)
}

// Instrumenter reports remote calls to a Tracker.
type Instrumenter struct {
	tracker Tracker
	logger  *zap.Logger
	metrics *observability.Metrics
	timeout time.Duration
	now     func() time.Time
	seq     atomic.Uint64
}

// Option configures an Instrumenter.
type Option func(*Instrumenter)

// WithMetrics records call counters and durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(in *Instrumenter) {
		in.metrics = m
	}
}

// WithTimeout force-settles calls still pending after d as failures.
// The call itself keeps running and its caller still gets the real result.
// Zero disables the timeout: a hung call stays active.
func WithTimeout(d time.Duration) Option {
	return func(in *Instrumenter) {
		in.timeout = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(in *Instrumenter) {
		in.now = now
	}
}

// New creates an Instrumenter reporting to tracker.
func New(tracker Tracker, logger *zap.Logger, opts ...Option) *Instrumenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	in := &Instrumenter{
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Call runs a blocking remote call under tracking and returns exactly what fn returned.
func Call[T any](ctx context.Context, in *Instrumenter, service, method string, fn func(ctx context.Context) (T, error)) (T, error) {
	c := in.begin(service, method)
	defer func() {
		if r := recover(); r != nil {
			c.settle(nil, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	v, err := fn(ctx)
	c.settle(v, err)
	return v, err
}

// Do tracks a synchronous, local call: the request is registered and
// deregistered around fn.
func Do[T any](in *Instrumenter, service, method string, fn func() T) T {
	c := in.begin(service, method)
	defer func() {
		if r := recover(); r != nil {
			c.settle(nil, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	v := fn()
	c.settle(v, nil)
	return v
}

func (in *Instrumenter) begin(service, method string) *call {
	started := in.now()
	c := &call{
		in: in,
		req: domain.TrackedRequest{
			ID:        in.newID(service, method, started),
			Service:   service,
			Method:    method,
			StartedAt: started,
		},
	}

	guard(in.logger, "begin", func() {
		in.tracker.Begin(c.req)
	})

	if in.timeout > 0 {
		c.timer = time.AfterFunc(in.timeout, c.expire)
	}
	return c
}

// newID composes service, method, start time, a sequence number and a random suffix.
func (in *Instrumenter) newID(service, method string, started time.Time) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s.%s.%d.%d.%s", service, method, started.UnixNano(), in.seq.Add(1), suffix)
}

// call is one tracked invocation; it settles exactly once.
type call struct {
	in    *Instrumenter
	req   domain.TrackedRequest
	once  sync.Once
	timer *time.Timer
}

func (c *call) settle(v any, err error) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.once.Do(func() {
		outcome := domain.Outcome{
			EndedAt: c.in.now(),
			Success: err == nil,
			Err:     err,
		}
		if err == nil {
			outcome.ResponseSize = responseSize(c.in.logger, v)
		}
		c.report(outcome, false)
	})
}

func (c *call) expire() {
	c.once.Do(func() {
		c.report(domain.Outcome{EndedAt: c.in.now(), Err: ErrTimedOut}, true)
	})
}

// report never panics; each sink is guarded separately so a failing
// logger cannot keep the request in the active set.
func (c *call) report(outcome domain.Outcome, timedOut bool) {
	in := c.in
	settled := c.req.Apply(outcome)

	guard(in.logger, "settle", func() {
		in.tracker.Settle(c.req.ID, outcome)
	})

	if in.metrics != nil {
		guard(in.logger, "metrics", func() {
			in.metrics.RemoteCalls.WithLabelValues(c.req.Service, c.req.Method, observability.StatusLabel(settled.Success)).Inc()
			in.metrics.RemoteCallDuration.WithLabelValues(c.req.Service, c.req.Method).Observe(settled.Duration.Seconds())
			if timedOut {
				in.metrics.RemoteCallTimeouts.WithLabelValues(c.req.Service, c.req.Method).Inc()
			}
		})
	}

	guard(nil, "log", func() {
		fields := []zap.Field{
			zap.String("service", settled.Service),
			zap.String("method", settled.Method),
			zap.String("request_id", settled.ID),
			zap.Int64("duration_ms", settled.Duration.Milliseconds()),
			zap.Bool("success", settled.Success),
		}
		if settled.Success {
			if settled.ResponseSize > 0 {
				fields = append(fields, zap.Int("response_size_chars", settled.ResponseSize))
			}
			in.logger.Info("remote call settled", fields...)
			return
		}
		fields = append(fields, zap.String("error", settled.Error))
		in.logger.Warn("remote call failed", fields...)
	})
}

var jsonNull = []byte("null")

// responseSize is zero for nil results, including typed nil pointers,
// maps and slices.
func responseSize(logger *zap.Logger, v any) int {
	if v == nil {
		return 0
	}
	size := 0
	guard(logger, "response size", func() {
		payload, err := json.Marshal(v)
		if err != nil || bytes.Equal(payload, jsonNull) {
			return
		}
		size = len(payload)
	})
	return size
}

// guard runs fn and swallows any panic it raises.
func guard(logger *zap.Logger, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			func() {
				defer func() { _ = recover() }()
				logger.Error("instrumentation bookkeeping failed", zap.String("stage", stage), zap.Any("panic", r))
			}()
		}
	}()
	fn()
}
