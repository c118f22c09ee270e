// Package secret resolves configuration values that must not live in the
// config file itself, such as memcached addresses or a SQLite path on an
// encrypted volume.
//
// A value is first expanded against the environment (see ExpandEnvStrict).
// Values of the form "secretref:<provider>:<ref>" are then handed to a
// Provider:
//
//	servers = secretref:file:/run/secrets/memcache_servers
//	path    = secretref:env:VIEWCACHE_SQLITE_PATH
package secret
