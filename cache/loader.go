package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/viewcache/observe"
)

// ProducerFunc computes the value to cache on a miss. It is expected to be
// free of side effects; it may be expensive.
type ProducerFunc func(ctx context.Context) ([]byte, error)

// DefaultOpName labels fetches that were not given a name.
const DefaultOpName = "fetch"

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPolicy sets the TTL policy applied to writes.
func WithPolicy(p Policy) LoaderOption {
	return func(l *Loader) {
		l.policy = p
	}
}

// WithMiddleware instruments lookups, producer runs and write failures.
func WithMiddleware(mw *observe.Middleware) LoaderOption {
	return func(l *Loader) {
		if mw != nil {
			l.mw = mw
		}
	}
}

// WithSingleflight collapses concurrent misses for the same key into a
// single producer run. Off by default: without it, concurrent misses each
// run the producer and the last write wins.
//
// The shared run is detached from the first caller's cancellation, so one
// disconnecting client does not fail the others waiting on the same key.
// A caller whose own context ends still receives the shared result.
func WithSingleflight() LoaderOption {
	return func(l *Loader) {
		l.flight = &singleflight.Group{}
	}
}

// Loader performs read-through caching over a Store.
type Loader struct {
	store  Store
	policy Policy
	mw     *observe.Middleware
	flight *singleflight.Group
}

// NewLoader creates a read-through loader over store.
func NewLoader(store Store, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:  store,
		policy: DefaultPolicy(),
		mw:     observe.NewNopMiddleware(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying store.
func (l *Loader) Store() Store {
	return l.store
}

// Fetch returns the cached value for key, running produce on a miss.
func (l *Loader) Fetch(ctx context.Context, key string, opts Options, produce ProducerFunc) ([]byte, error) {
	return l.FetchNamed(ctx, DefaultOpName, key, opts, produce)
}

// FetchNamed is Fetch with an operation name used to label telemetry.
//
// On a fresh hit the stored value is returned unchanged and produce is not
// called. On a miss produce runs; its errors are returned and never cached.
// A failed write is recorded and the computed value is still returned,
// except for encoding failures, which are propagated.
func (l *Loader) FetchNamed(ctx context.Context, name, key string, opts Options, produce ProducerFunc) ([]byte, error) {
	if l.store == nil {
		return nil, ErrNilStore
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if produce == nil {
		return nil, fmt.Errorf("%w: producer is nil", ErrInvalidArgument)
	}

	op := observe.Op{Name: name, Key: key}

	if value, ok := l.store.Get(ctx, key); ok {
		l.mw.RecordLookup(ctx, op, true)
		return value, nil
	}
	l.mw.RecordLookup(ctx, op, false)

	if l.flight == nil {
		return l.fill(ctx, op, opts, produce)
	}

	v, err, _ := l.flight.Do(key, func() (any, error) {
		value, err := l.fill(context.WithoutCancel(ctx), op, opts, produce)
		return value, err
	})
	if err != nil {
		return nil, err
	}
	value, _ := v.([]byte)
	return value, nil
}

func (l *Loader) fill(ctx context.Context, op observe.Op, opts Options, produce ProducerFunc) ([]byte, error) {
	value, err := l.mw.WrapProducer(op, observe.ProduceFunc(produce))(ctx)
	if err != nil {
		var encErr *EncodingError
		if errors.As(err, &encErr) && encErr.Key == "" {
			encErr.Key = op.Key
		}
		return nil, err
	}

	if err := l.store.Set(ctx, op.Key, value, l.policy.Resolve(opts)); err != nil {
		if errors.Is(err, ErrEncoding) {
			return nil, err
		}
		// Serve the computed value uncached.
		l.mw.RecordStoreFailure(ctx, op, err)
	}

	return value, nil
}

// JSONProducer adapts a typed producer into a ProducerFunc rendering JSON.
// Marshal failures are reported as *EncodingError.
func JSONProducer[T any](fn func(ctx context.Context) (T, error)) ProducerFunc {
	return func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, &EncodingError{Err: err}
		}
		return data, nil
	}
}
