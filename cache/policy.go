package cache

import "time"

// FiltersExpiry is how long rendered storefront filter listings (taxons and
// properties) stay fresh.
const FiltersExpiry = 30 * time.Second

// Policy configures the TTL a Loader applies to its writes.
type Policy struct {
	// DefaultTTL is used when a write does not name ExpiresIn.
	// If zero, such writes are not cached.
	DefaultTTL time.Duration

	// MaxTTL clamps requested TTLs. If zero, no maximum is enforced.
	MaxTTL time.Duration
}

// DefaultPolicy returns the default policy.
// DefaultTTL: FiltersExpiry, MaxTTL: 1 hour
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: FiltersExpiry,
		MaxTTL:     time.Hour,
	}
}

// NoCachePolicy returns a policy that only caches writes with an explicit TTL.
func NoCachePolicy() Policy {
	return Policy{}
}

// EffectiveTTL returns the TTL to use, applying defaults and clamping.
func (p Policy) EffectiveTTL(requested time.Duration) time.Duration {
	ttl := requested
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}

	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}

	return ttl
}

// Resolve returns opts with ExpiresIn replaced by the effective TTL. Extra is
// passed through untouched.
func (p Policy) Resolve(opts Options) Options {
	opts.ExpiresIn = p.EffectiveTTL(opts.ExpiresIn)
	return opts
}
