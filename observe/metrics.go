package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup counts a store read as a hit or a miss.
	RecordLookup(ctx context.Context, op Op, hit bool)

	// RecordProduce records a producer run after a miss.
	RecordProduce(ctx context.Context, op Op, duration time.Duration, err error)

	// RecordStoreFailure counts a write that did not reach the store.
	RecordStoreFailure(ctx context.Context, op Op)
}

type metricsImpl struct {
	lookups       metric.Int64Counter
	produced      metric.Int64Counter
	produceErrors metric.Int64Counter
	produceHist   metric.Float64Histogram
	storeErrors   metric.Int64Counter
}

// NewMetrics creates the cache instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	lookups, err := meter.Int64Counter(
		"cache.lookup.total",
		metric.WithDescription("Cache reads by result (hit or miss)"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	produced, err := meter.Int64Counter(
		"cache.produce.total",
		metric.WithDescription("Producer runs after a cache miss"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	produceErrors, err := meter.Int64Counter(
		"cache.produce.errors",
		metric.WithDescription("Producer runs that failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	produceHist, err := meter.Float64Histogram(
		"cache.produce.duration_ms",
		metric.WithDescription("Producer run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	storeErrors, err := meter.Int64Counter(
		"cache.store.errors",
		metric.WithDescription("Computed values that could not be written to the store"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		lookups:       lookups,
		produced:      produced,
		produceErrors: produceErrors,
		produceHist:   produceHist,
		storeErrors:   storeErrors,
	}, nil
}

func opAttr(op Op) attribute.KeyValue {
	return attribute.String("cache.op", op.Name)
}

func (m *metricsImpl) RecordLookup(ctx context.Context, op Op, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(opAttr(op), attribute.String("cache.result", result)))
}

func (m *metricsImpl) RecordProduce(ctx context.Context, op Op, duration time.Duration, err error) {
	opt := metric.WithAttributes(opAttr(op))

	m.produced.Add(ctx, 1, opt)
	if err != nil {
		m.produceErrors.Add(ctx, 1, opt)
	}
	m.produceHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordStoreFailure(ctx context.Context, op Op) {
	m.storeErrors.Add(ctx, 1, metric.WithAttributes(opAttr(op)))
}

type noopMetrics struct{}

func (noopMetrics) RecordLookup(context.Context, Op, bool)                   {}
func (noopMetrics) RecordProduce(context.Context, Op, time.Duration, error) {}
func (noopMetrics) RecordStoreFailure(context.Context, Op)                   {}
