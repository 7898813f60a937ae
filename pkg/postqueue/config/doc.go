/*
Package config provides type-safe configuration extraction and the typed
Settings of a queue deployment.

# Overview

Config wraps a map[string]any and provides typed accessor methods that handle
missing keys and type mismatches gracefully by returning default values.
Keys may be dotted paths that descend into nested tables:

	cfg, _ := config.FromYAML([]byte(`
	queue:
	  batch_size: 20
	  item_delay: 250ms
	`))

	cfg.Int("queue.batch_size", 50)                           // 20
	cfg.Duration("queue.item_delay", 100*time.Millisecond)    // 250ms
	cfg.String("transport.user_agent", "GStatistics/1.0")     // default

# Type Coercion

Duration handles multiple input types:
  - string: parsed with time.ParseDuration ("30s", "1h30m")
  - int/int64/float64: interpreted as seconds
  - time.Duration: used directly

Int accepts float64 only without a fractional part, so JSON numbers work.

# File Loading

Load configuration from YAML, JSON or TOML files:

	cfg, err := config.FromFile("postqueue.toml")

Load goes straight to Settings and honors POSTQUEUE_CONFIG when no path is
given:

	settings, err := config.Load("")

# Recognized keys

	database.path              SQLite file (default: <user config dir>/gcore/data.db)
	queue.batch_size           entries per drain (50)
	queue.item_delay           spacing between posts (100ms)
	queue.max_queued_events    pollable event FIFO bound (0 = unlimited)
	queue.retry.max_attempts   drop after N failures (0 = never)
	queue.retry.initial_backoff, queue.retry.max_backoff,
	queue.retry.factor, queue.retry.jitter, queue.retry.drop_permanent
	transport.timeout          per-request timeout (30s)
	transport.user_agent       User-Agent header (GStatistics/1.0)
	log.level                  debug, info, warn, error (info)
	schedule.drain             cron spec for daemon drains (@every 1m)
	schedule.cleanup           cron spec for daemon cleanup (@daily)
	schedule.cleanup_hours     cleanup age threshold (168)
	schedule.cleanup_responses include the response cache in cleanup

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
