// Package config loads viewcache settings from an INI file.
//
// The file has four sections:
//
//	[server]
//	listen = :8080
//	shutdown_timeout = 10s
//
//	[cache]
//	backend = memcache
//	namespace = views
//	memcache_servers = 10.0.0.1:11211, 10.0.0.2:11211
//	sqlite_path = /var/lib/viewcache/cache.db
//	filters_expiry = 30s
//	max_ttl = 1h
//	backend_timeout = 250ms
//	breaker_failures = 5
//	breaker_reset = 30s
//	sweep_schedule = @every 1m
//	singleflight = false
//	producer_timeout = 5s
//	max_concurrent_producers = 32
//
//	[catalog]
//	driver = postgres
//	dsn = secretref:file:/run/secrets/catalog_dsn
//	migrate = false
//
//	[observe]
//	service_name = viewcache
//	log_level = info
//	log_format = json
//	tracing_exporter = none
//	sample_pct = 0.1
//	metrics_exporter = prometheus
//
// Missing options keep their Default values. Every value is expanded with
// the secret package before parsing, so ${VAR} and secretref:env:NAME work
// anywhere.
package config
