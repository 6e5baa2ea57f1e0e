package txlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log appends broadcast records to a comma-separated file shared across all
// invocation keys. The format is `timestampMs,txHash,label`, one line per
// successfully-broadcast transaction.
type Log struct {
	mu   sync.Mutex
	path string
}

// New returns a transaction log appending to path, or nil when path is blank.
// A nil *Log is safe to use; Append becomes a no-op.
func New(path string) *Log {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &Log{path: path}
}

// Append writes one record. The file is opened per call so the log survives
// across the short-lived one-shot invocations this bot runs as.
func (l *Log) Append(timestampMs int64, txHash, label string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d,%s,%s\n", timestampMs, txHash, label); err != nil {
		return err
	}
	return nil
}
