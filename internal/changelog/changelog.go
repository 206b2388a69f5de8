// Package changelog keeps the append-only audit trail of accepted
// changes, separate from the flushable change ledger.
package changelog

import (
	"fmt"
	"os"
	"sync"
	"time"

	"billwatch/internal/domain"
)

// Log appends one timestamped line per accepted change. It is never
// truncated by the engine.
type Log struct {
	mu sync.Mutex
	f  *os.File
}

func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open change log: %w", err)
	}
	return &Log{f: f}, nil
}

func (l *Log) Record(event domain.ChangeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("%s\t%s\t%s\n",
		time.Now().UTC().Format(time.RFC3339Nano),
		event.Action,
		event.IdentityKey,
	)
	if _, err := l.f.WriteString(line); err != nil {
		return fmt.Errorf("write change log: %w", err)
	}
	return nil
}

func (l *Log) Close() error {
	return l.f.Close()
}
