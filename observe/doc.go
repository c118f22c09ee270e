// Package observe provides observability primitives for cache operations.
//
// It wires structured logging (zerolog), OpenTelemetry tracing and metrics,
// and a Middleware that instruments cache lookups, producer runs and failed
// writes. It performs no caching itself.
package observe
