// Package ledger persists one crawl run's change-set between the crawl
// and notification phases.
//
// Wire format, shared with the notification consumer: line one is the
// ";;"-joined list of added identity keys, line two the ";;"-joined
// "key;previous_last_action_name" pairs for updated bills.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"billwatch/internal/domain"
)

const pairSep = ";;"

// IOError is a durable-state read or write failure. Fatal to a crawl
// run: a change that cannot be recorded must not be reported as
// accepted.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// File is the file-backed change ledger. Appends merge into the existing
// content through a temp-file rename, so a crash mid-append leaves either
// the old change-set or the new one, never a torn file. Flush is the
// consumer's explicit acknowledgment; nothing is truncated on read.
type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

// Append stages one change event. Safe for use from a single crawl run;
// the mutex serializes appends, the rename makes each one durable.
func (f *File) Append(event domain.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	added, updated, err := f.load()
	if err != nil {
		return err
	}

	switch event.Action {
	case domain.ActionAdded:
		added = append(added, event.IdentityKey)
	case domain.ActionUpdated:
		updated = append(updated, event.IdentityKey+";"+event.PrevActionName)
	default:
		return &IOError{Op: "append", Err: fmt.Errorf("unknown action %q", event.Action)}
	}

	return f.store(added, updated)
}

// Snapshot reads the staged change-set without consuming it. Added
// events come first, in append order, then updated ones.
func (f *File) Snapshot() ([]domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	added, updated, err := f.load()
	if err != nil {
		return nil, err
	}

	events := make([]domain.ChangeEvent, 0, len(added)+len(updated))
	for _, key := range added {
		events = append(events, domain.ChangeEvent{
			Action:      domain.ActionAdded,
			IdentityKey: key,
		})
	}
	for _, pair := range updated {
		key, prev, _ := strings.Cut(pair, ";")
		events = append(events, domain.ChangeEvent{
			Action:         domain.ActionUpdated,
			IdentityKey:    key,
			PrevActionName: prev,
		})
	}

	return events, nil
}

// Flush is the consumer's acknowledgment that the snapshot has been
// processed; it empties the ledger.
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.store(nil, nil)
}

// Empty reports whether the ledger holds no staged events. A crawl run
// refuses to start while it is non-empty.
func (f *File) Empty() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	added, updated, err := f.load()
	if err != nil {
		return false, err
	}
	return len(added) == 0 && len(updated) == 0, nil
}

func (f *File) load() (added, updated []string, err error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, &IOError{Op: "read", Err: err}
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > 2 {
		return nil, nil, &IOError{Op: "read", Err: fmt.Errorf("corrupt ledger: %d lines", len(lines))}
	}

	added = splitPairs(lines[0])
	if len(lines) == 2 {
		updated = splitPairs(lines[1])
	}
	return added, updated, nil
}

func (f *File) store(added, updated []string) error {
	content := strings.Join(added, pairSep) + "\n" + strings.Join(updated, pairSep) + "\n"

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return &IOError{Op: "write", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "write", Err: err}
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "rename", Err: err}
	}
	return nil
}

func splitPairs(line string) []string {
	var out []string
	for _, part := range strings.Split(line, pairSep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
