// Package statusrecord persists an append-only, line-oriented event log
// of step status transitions under a scenario's log directory: one JSON
// object per line, truncated at the start of every reset. It is the sole
// input behind the coordinator's list/listFailed replay queries.
package statusrecord

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/mensylisir/stc/common"
	"github.com/mensylisir/stc/status"
)

// Event is one line of the status record: a step's transition into a new
// status, optionally carrying the command that was run (present on
// IN_PROGRESS/terminal events, absent on synthetic ones) and the id of
// the coordinator run it belongs to (absent for pre-run bookkeeping
// written by a range-run reset, before any run has started).
type Event struct {
	TimeMillis int64         `json:"time"`
	Run        string        `json:"run,omitempty"`
	Step       string        `json:"stepName"`
	Status     status.Status `json:"status"`
	Command    string        `json:"command,omitempty"`
}

// Store is the append-only file backing one scenario's status record.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a Store persisting to <logDir>/status.jsonl.
func New(logDir string) *Store {
	return &Store{path: filepath.Join(logDir, "status.jsonl")}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Append writes one event as a JSON line, creating the file and its
// parent directory if necessary.
func (s *Store) Append(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), common.FileMode0755); err != nil {
		return errors.Wrapf(err, "statusrecord: creating directory for %s", s.path)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, common.FileMode0644)
	if err != nil {
		return errors.Wrapf(err, "statusrecord: opening %s", s.path)
	}
	defer f.Close()

	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "statusrecord: marshaling event")
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return errors.Wrapf(err, "statusrecord: writing to %s", s.path)
	}
	return nil
}

// Truncate empties the record, used by reset() before a fresh run.
func (s *Store) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), common.FileMode0755); err != nil {
		return errors.Wrapf(err, "statusrecord: creating directory for %s", s.path)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, common.FileMode0644)
	if err != nil {
		return errors.Wrapf(err, "statusrecord: truncating %s", s.path)
	}
	return f.Close()
}

// Load replays every event currently on disk, in file order. A missing
// file is treated as an empty record, not an error.
func (s *Store) Load() ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "statusrecord: opening %s", s.path)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, errors.Wrapf(err, "statusrecord: parsing %s", s.path)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "statusrecord: reading %s", s.path)
	}
	return events, nil
}

// LoadFailed replays only the events whose status is FAILED.
func (s *Store) LoadFailed() ([]Event, error) {
	events, err := s.Load()
	if err != nil {
		return nil, err
	}
	var failed []Event
	for _, ev := range events {
		if ev.Status == status.Failed {
			failed = append(failed, ev)
		}
	}
	return failed, nil
}
