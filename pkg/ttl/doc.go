// Package ttl expires records. ParseDuration converts "30s"-style
// strings (units s, m, h, d) or bare millisecond numbers. The Manager
// periodically asks each TTL-enabled bucket to purge records whose
// _expiresAt has passed, chaining single-shot timers so a slow scan
// never overlaps the next.
package ttl
