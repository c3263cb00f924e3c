// Package logging provides structured logging for finpace processes.
//
// This package wraps Go's log/slog to write JSON-formatted logs that can be
// filtered after the fact. The categorization worker runs unattended for
// days, so its log file is the primary way operators see throughput, error
// rates and rate-limit pressure.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (component, account, phase)
//   - Size-based log rotation with a bounded number of backups
//   - Reading and filtering log files for the logs command
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLoggerWithRotation("/var/lib/finpace", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	wlog := logger.WithComponent("worker")
//	wlog.Info("batch processed", "batch_size", 10, "processed", 10, "pending", 42)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"batch processed","component":"worker","batch_size":10,"processed":10,"pending":42}
package logging
