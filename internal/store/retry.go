package store

import (
	"log/slog"
	"strings"
	"time"
)

const (
	writeRetries   = 3
	writeRetryBase = 100 * time.Millisecond
)

// isConflictErr reports whether the error is a SQLite concurrency failure
// (SQLITE_BUSY or "database is locked") that warrants a retry.
func isConflictErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withRetry runs a write, retrying conflict errors with exponential backoff
// (100ms, 200ms, 400ms). Non-conflict errors return immediately.
func (s *SQLiteStore) withRetry(fn func() error) error {
	var err error
	for i := 0; i < writeRetries; i++ {
		err = fn()
		if err == nil || !isConflictErr(err) {
			return err
		}
		if i < writeRetries-1 {
			delay := writeRetryBase * time.Duration(1<<i)
			slog.Debug("sqlite write conflict, retrying", "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return err
}
