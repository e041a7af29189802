// Package logging provides structured logging for Kasa Monitor.
//
// It wraps the standard library's log/slog with:
//   - Configuration-driven format (JSON or text) and level
//   - Default fields (service name, version) on every record
//   - Component child loggers via With
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	histLog := log.With("component", "history")
//	histLog.Info("query served", "device_id", id, "points", n)
//
// Thread Safety: all methods are safe for concurrent use.
package logging
