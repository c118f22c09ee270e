package health

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/jonwraymond/viewcache/resilience"
)

// PingFunc probes a dependency.
type PingFunc func(ctx context.Context) error

type pingChecker struct {
	name string
	ping PingFunc
	slow time.Duration
}

// NewPingChecker reports Unhealthy when ping fails and Degraded when it
// takes longer than slow. A zero slow disables the latency check.
func NewPingChecker(name string, ping PingFunc, slow time.Duration) Checker {
	return &pingChecker{name: name, ping: ping, slow: slow}
}

func (c *pingChecker) Name() string { return c.name }

func (c *pingChecker) Check(ctx context.Context) Result {
	start := time.Now()
	err := c.ping(ctx)
	rtt := time.Since(start)
	details := map[string]any{"rtt": rtt.String()}

	switch {
	case err != nil:
		return Unhealthy(fmt.Sprintf("%s unreachable", c.name), err).WithDetails(details)
	case c.slow > 0 && rtt > c.slow:
		return Degraded(fmt.Sprintf("%s slow: %s", c.name, rtt.Round(time.Millisecond))).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("%s reachable", c.name)).WithDetails(details)
	}
}

type breakerChecker struct {
	cb *resilience.CircuitBreaker
}

// NewBreakerChecker reports the state of the breaker guarding a backend.
// Closed is Healthy; open and half-open are Degraded.
func NewBreakerChecker(cb *resilience.CircuitBreaker) Checker {
	return &breakerChecker{cb: cb}
}

func (c *breakerChecker) Name() string {
	if n := c.cb.Name(); n != "" {
		return n + "_breaker"
	}
	return "breaker"
}

func (c *breakerChecker) Check(context.Context) Result {
	m := c.cb.Metrics()
	details := map[string]any{
		"state":    m.State.String(),
		"failures": m.Failures,
		"rejected": m.Rejected,
	}
	if m.State == resilience.StateClosed {
		return Healthy("circuit closed").WithDetails(details)
	}
	details["opened_at"] = m.OpenedAt.UTC().Format(time.RFC3339)
	return Degraded(fmt.Sprintf("circuit %s, serving uncached", m.State)).WithDetails(details)
}

// Sizer reports how many entries a store physically holds.
type Sizer interface {
	Len() int
}

// StoreCheckerConfig configures NewStoreChecker.
type StoreCheckerConfig struct {
	// WarnEntries marks the store Degraded at or above this many entries.
	// Default: 100000
	WarnEntries int

	// MaxEntries marks the store Unhealthy at or above this many entries.
	// Default: 10 * WarnEntries
	MaxEntries int
}

type storeChecker struct {
	store  Sizer
	config StoreCheckerConfig
}

// NewStoreChecker watches the entry count of an in-process store. Stale
// entries stay resident until swept, so a growing count usually means the
// sweep job stopped.
func NewStoreChecker(store Sizer, config StoreCheckerConfig) Checker {
	if config.WarnEntries <= 0 {
		config.WarnEntries = 100_000
	}
	if config.MaxEntries <= config.WarnEntries {
		config.MaxEntries = 10 * config.WarnEntries
	}
	return &storeChecker{store: store, config: config}
}

func (c *storeChecker) Name() string { return "store" }

func (c *storeChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	n := c.store.Len()
	details := map[string]any{
		"entries":      n,
		"warn_entries": c.config.WarnEntries,
		"max_entries":  c.config.MaxEntries,
		"heap_alloc":   mem.HeapAlloc,
		"num_gc":       mem.NumGC,
	}

	switch {
	case n >= c.config.MaxEntries:
		return Unhealthy(fmt.Sprintf("store holds %d entries", n), ErrCheckFailed).WithDetails(details)
	case n >= c.config.WarnEntries:
		return Degraded(fmt.Sprintf("store holds %d entries", n)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("store holds %d entries", n)).WithDetails(details)
	}
}
