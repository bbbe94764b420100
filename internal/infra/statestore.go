// Package infra implements infrastructure concerns (state persistence,
// task storage, process checks, clock).
package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/studyfocus/focusmon/internal/domain"
)

// stateDoc is the single JSON document backing the state store. All
// persisted daemon state lives in one file so a snapshot is always
// internally consistent.
type stateDoc struct {
	Timer         *domain.TimerState `json:"pomodoroState,omitempty"`
	WorkDomains   []string           `json:"workDomains"`
	Flags         *domain.Flags      `json:"flags,omitempty"`
	DaemonPID     int                `json:"daemonPID,omitempty"`
	LastHeartbeat int64              `json:"lastHeartbeat,omitempty"`
}

// FileStateStore implements domain.StateStore over a JSON file guarded by
// a sibling flock. Writes are atomic (temp file + rename) so a crash mid
// write never leaves a torn document behind.
type FileStateStore struct {
	path string
}

// DefaultStatePath returns the state file under the user config dir.
func DefaultStatePath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "focusmon", "state.json"), nil
}

// NewFileStateStore creates a store at path, creating parent directories.
func NewFileStateStore(path string) (*FileStateStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStateStore{path: path}, nil
}

// Path returns the backing file path.
func (s *FileStateStore) Path() string {
	return s.path
}

// LoadTimerState returns the persisted timer state, or nil if none.
func (s *FileStateStore) LoadTimerState() (*domain.TimerState, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Timer, nil
}

// SaveTimerState persists the timer state.
func (s *FileStateStore) SaveTimerState(state domain.TimerState) error {
	return s.update(func(doc *stateDoc) {
		doc.Timer = &state
	})
}

// LoadWorkDomains returns the persisted work-domain list.
func (s *FileStateStore) LoadWorkDomains() ([]string, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.WorkDomains, nil
}

// SaveWorkDomains persists the work-domain list.
func (s *FileStateStore) SaveWorkDomains(domains []string) error {
	return s.update(func(doc *stateDoc) {
		doc.WorkDomains = domains
	})
}

// LoadFlags returns the persisted mode flags, or nil if none.
func (s *FileStateStore) LoadFlags() (*domain.Flags, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Flags, nil
}

// SaveFlags persists the mode flags.
func (s *FileStateStore) SaveFlags(flags domain.Flags) error {
	return s.update(func(doc *stateDoc) {
		doc.Flags = &flags
	})
}

// SaveHeartbeat records the daemon PID and a liveness timestamp.
func (s *FileStateStore) SaveHeartbeat(pid int, at int64) error {
	return s.update(func(doc *stateDoc) {
		doc.DaemonPID = pid
		doc.LastHeartbeat = at
	})
}

// LoadHeartbeat returns the last recorded PID and timestamp.
func (s *FileStateStore) LoadHeartbeat() (int, int64, error) {
	doc, err := s.read()
	if err != nil {
		return 0, 0, err
	}
	return doc.DaemonPID, doc.LastHeartbeat, nil
}

// update applies a mutation under the file lock and writes atomically.
func (s *FileStateStore) update(mutate func(*stateDoc)) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	mutate(doc)
	return s.atomicWrite(doc)
}

// read loads the document, returning an empty one when no file exists.
func (s *FileStateStore) read() (*stateDoc, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &stateDoc{}, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &doc, nil
}

// lock acquires an exclusive flock on a sibling lock file. Only the daemon
// writes the state, but the lock keeps a second accidental daemon or an
// inspection tool from interleaving writes.
func (s *FileStateStore) lock() (func(), error) {
	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return func() {
		_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
		lockFile.Close()
	}, nil
}

// atomicWrite writes the document via temp file + rename.
func (s *FileStateStore) atomicWrite(doc *stateDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// SystemClock implements domain.Clock with the real wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

var (
	_ domain.StateStore = (*FileStateStore)(nil)
	_ domain.Clock      = SystemClock{}
)
