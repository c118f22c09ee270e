package config

import "errors"

var (
	// ErrInvalidConfig is returned when a value fails to parse or validate.
	ErrInvalidConfig = errors.New("config: invalid")

	// ErrUnknownBackend is returned for a cache backend other than
	// memory, memcache or sqlite.
	ErrUnknownBackend = errors.New("config: unknown cache backend")
)
