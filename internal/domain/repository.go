package domain

import (
	"context"
	"time"
)

// Clock abstracts wall-clock time so the timer machine can be tested
// against simulated suspensions.
type Clock interface {
	Now() time.Time
}

// StateStore is the durable key/value store surviving daemon restarts.
// It is the single source of truth for timer state, the work-domain set
// and the mode flags. Only the daemon process writes to it.
type StateStore interface {
	// LoadTimerState returns the persisted timer state, or nil if none.
	LoadTimerState() (*TimerState, error)

	// SaveTimerState persists the timer state.
	SaveTimerState(state TimerState) error

	// LoadWorkDomains returns the persisted work-domain list.
	LoadWorkDomains() ([]string, error)

	// SaveWorkDomains persists the work-domain list.
	SaveWorkDomains(domains []string) error

	// LoadFlags returns the persisted mode flags, or nil if none.
	LoadFlags() (*Flags, error)

	// SaveFlags persists the mode flags.
	SaveFlags(flags Flags) error

	// SaveHeartbeat records the daemon PID and a liveness timestamp.
	SaveHeartbeat(pid int, at int64) error

	// LoadHeartbeat returns the last recorded PID and timestamp.
	LoadHeartbeat() (pid int, at int64, err error)

	// Path returns the backing file path (for status display and tests).
	Path() string
}

// TabSource delivers tab activation and navigation events from the browser.
type TabSource interface {
	// Run blocks, watching the browser until the context is canceled.
	// Connection loss is handled internally with reconnection.
	Run(ctx context.Context) error

	// Events returns the channel tab events are delivered on.
	Events() <-chan TabEvent

	// ActiveTab returns the currently focused page tab.
	ActiveTab(ctx context.Context) (*TabInfo, error)
}

// InterventionChannel delivers the distraction overlay into a tab and
// carries the user's resolution back out.
type InterventionChannel interface {
	// ShowOverlay asks an already-present in-page listener to render the
	// overlay. Fails if no listener is registered in the tab.
	ShowOverlay(ctx context.Context, tabID, domain string) error

	// InjectOverlay injects the full overlay script directly into the tab.
	InjectOverlay(ctx context.Context, tabID, domain string) error

	// AwaitChoice blocks until the user resolves the overlay or ctx
	// expires. Returns "work" or "back".
	AwaitChoice(ctx context.Context, tabID string) (string, error)

	// GoBack navigates the tab back in history. Fails if there is none.
	GoBack(ctx context.Context, tabID string) error

	// CloseTab closes the tab.
	CloseTab(ctx context.Context, tabID string) error
}

// Notifier surfaces a human-visible notification when a phase completes.
type Notifier interface {
	// PhaseComplete announces the completed phase. Must fire exactly once
	// per completed phase; presentation is best-effort.
	PhaseComplete(phase Phase) error
}

// TaskStore provides CRUD for the task list. Implementations must be safe
// for concurrent use (chat and CLI both reach it).
type TaskStore interface {
	Add(text string) (Task, error)
	List() ([]Task, error)
	Complete(id int64) error
	Remove(id int64) error
	Close() error
}

// ProcessManager handles OS process liveness checks.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// KeyProvider abstracts the source of the task-database encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
