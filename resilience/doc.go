// Package resilience guards calls to cache backends and catalog producers.
//
// Four patterns are provided and composed by Executor:
//
//   - CircuitBreaker: stops calling a backend that keeps failing and probes
//     it again after a cool-down.
//   - Retry: re-runs an operation with exponential backoff.
//   - Bulkhead: caps how many operations run at once.
//   - Timeout: bounds a single attempt.
//
// A BackendStore typically runs every memcached or SQLite call through an
// executor with a breaker and a short timeout, so a dead backend degrades
// reads to misses quickly instead of stalling each request:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	        Name:         "memcache",
//	        MaxFailures:  5,
//	        ResetTimeout: 10 * time.Second,
//	    })),
//	    resilience.WithTimeout(250*time.Millisecond),
//	)
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return backend.Set(ctx, key, value, ttl)
//	})
package resilience
