// Package health reports whether the cache and its backends can serve.
//
// A Checker reports a Result with a Status of Healthy, Degraded or
// Unhealthy. The package ships checkers for the cache stack:
//
//   - NewPingChecker probes a backend (memcached, SQLite) and flags slow
//     round trips as degraded.
//   - NewBreakerChecker reports the circuit breaker guarding a backend. An
//     open breaker is Degraded, not Unhealthy: reads fail open and the
//     service keeps answering, only without caching.
//   - NewStoreChecker watches the number of entries held by an in-process
//     store so a stalled sweeper is noticed before memory runs out.
//
// Checkers are combined by an Aggregator and exposed over HTTP:
//
//	agg := health.NewAggregator()
//	agg.Register("memcache", health.NewPingChecker("memcache", store.Ping, 50*time.Millisecond))
//	agg.Register("breaker", health.NewBreakerChecker(cb))
//
//	r := chi.NewRouter()
//	health.Mount(r, agg)  // /healthz, /readyz, /health
package health
