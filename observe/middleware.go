package observe

import (
	"context"
	"time"
)

// ProduceFunc computes a value after a cache miss.
type ProduceFunc func(ctx context.Context) ([]byte, error)

// Middleware instruments cache fetches with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use; WrapProducer returns a thread-safe func.
//   - Errors: producer errors are recorded and propagated unchanged.
//   - Ownership: produced values are passed through without modification.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NewNopMiddleware returns a Middleware that records nothing.
func NewNopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger {
	return m.logger
}

// WrapProducer wraps fn with a span, producer metrics and a completion log.
func (m *Middleware) WrapProducer(op Op, fn ProduceFunc) ProduceFunc {
	return func(ctx context.Context) ([]byte, error) {
		ctx, span := m.tracer.StartSpan(ctx, op)
		start := time.Now()

		value, err := fn(ctx)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordProduce(ctx, op, duration, err)

		fields := []Field{
			{Key: "cache.op", Value: op.Name},
			{Key: "cache.key", Value: op.Key},
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			m.logger.Error(ctx, "cache producer failed", fields...)
		} else {
			fields = append(fields, Field{Key: "bytes", Value: len(value)})
			m.logger.Debug(ctx, "cache producer completed", fields...)
		}

		return value, err
	}
}

// RecordLookup records a store read.
func (m *Middleware) RecordLookup(ctx context.Context, op Op, hit bool) {
	m.metrics.RecordLookup(ctx, op, hit)
}

// RecordStoreFailure logs and counts a value that could not be written.
func (m *Middleware) RecordStoreFailure(ctx context.Context, op Op, err error) {
	m.metrics.RecordStoreFailure(ctx, op)
	m.logger.Warn(ctx, "cache write failed, value served uncached",
		Field{Key: "cache.op", Value: op.Name},
		Field{Key: "cache.key", Value: op.Key},
		Field{Key: "error", Value: err.Error()},
	)
}
