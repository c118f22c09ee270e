// Package cache provides a keyed, time-bounded response cache for expensive
// per-request computations.
//
// It provides deterministic key derivation (Keyer), a TTL-aware Store with
// in-memory and backend-adapting implementations, and a read-through Loader
// that runs a producer only on a miss. Staleness is purely time-based and is
// evaluated lazily on each read.
package cache
