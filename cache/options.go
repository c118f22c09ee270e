package cache

import (
	"github.com/jonwraymond/viewcache/observe"
	"github.com/jonwraymond/viewcache/resilience"
)

// StoreOption configures a MemoryStore or BackendStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	clock    Clock
	logger   observe.Logger
	executor *resilience.Executor
}

func newStoreConfig(opts []StoreOption) storeConfig {
	cfg := storeConfig{
		clock:  SystemClock{},
		logger: observe.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithClock sets the time source used to stamp and judge entries.
func WithClock(c Clock) StoreOption {
	return func(cfg *storeConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// WithLogger sets the logger used to report fail-open reads.
func WithLogger(l observe.Logger) StoreOption {
	return func(cfg *storeConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithExecutor guards every backend call with the given executor. Only
// BackendStore uses it.
func WithExecutor(e *resilience.Executor) StoreOption {
	return func(cfg *storeConfig) {
		cfg.executor = e
	}
}
