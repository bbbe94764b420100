// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "sort"

// Phase identifies the kind of interval the timer is in.
type Phase string

const (
	PhaseIdle Phase = "idle"
	PhaseWork Phase = "work"
	PhaseRest Phase = "rest"
)

// Mode gates whether tab interception is active at all.
type Mode string

const (
	ModeNormal  Mode = "normal"
	ModeFocused Mode = "focused"
)

// Timer defaults, in seconds.
const (
	DefaultWorkDuration = 25 * 60
	DefaultRestDuration = 5 * 60

	// MinWorkDuration is the floor for a work interval. Anything shorter
	// degenerates into an immediate phase flip, so it gets clamped.
	MinWorkDuration = 10
)

// TimerState is the persisted timer singleton. Interval boundaries are
// absolute wall-clock timestamps (ms since epoch): the daemon may be
// suspended and restarted, so remaining time is always recomputed from
// EndTime rather than counted down in memory.
type TimerState struct {
	Phase     Phase `json:"phase"`
	IsRunning bool  `json:"isRunning"`
	IsPaused  bool  `json:"isPaused"`
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
	// PausedAt is the timestamp captured at pause; on resume EndTime is
	// shifted forward by now-PausedAt so remaining time is preserved.
	PausedAt     int64 `json:"pausedAt"`
	Duration     int   `json:"duration"` // length of the current interval, seconds
	WorkDuration int   `json:"workDuration"`
	RestDuration int   `json:"restDuration"`
}

// Flags are the user-facing switches governing interception.
type Flags struct {
	Mode             Mode `json:"mode"`
	InterceptEnabled bool `json:"interceptEnabled"`
}

// DefaultFlags are the flags re-derived on first run or when nothing is persisted.
func DefaultFlags() Flags {
	return Flags{Mode: ModeNormal, InterceptEnabled: true}
}

// TabEventKind distinguishes switching to a tab from the tab itself navigating.
type TabEventKind string

const (
	TabActivated TabEventKind = "activated"
	TabNavigated TabEventKind = "navigated"
)

// TabEvent is a tab activation or navigation observed in the browser.
type TabEvent struct {
	TabID string
	URL   string
	Kind  TabEventKind
}

// TabInfo describes the currently active browser tab.
type TabInfo struct {
	TabID string
	URL   string
}

// Verdict is the classifier's answer for a URL. Internal pages
// (browser-internal and extension schemes) are never subject to
// classification and carry an empty Domain.
type Verdict struct {
	Domain   string
	IsWork   bool
	Internal bool
}

// InterventionEvent is emitted when a non-work domain is observed during
// an active work phase with interception enabled. Transient, consumed once.
type InterventionEvent struct {
	TabID  string
	Domain string
}

// Task is a to-do item managed through the chat assistant and CLI.
type Task struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	CreatedAt int64  `json:"createdAt"`
}

// StateSnapshot is the read-only view handed to UI surfaces.
type StateSnapshot struct {
	Mode             Mode  `json:"mode"`
	InterceptEnabled bool  `json:"interceptEnabled"`
	Phase            Phase `json:"phase"`
	IsRunning        bool  `json:"isRunning"`
	IsPaused         bool  `json:"isPaused"`
	TimeRemaining    int   `json:"timeRemaining"`
	WorkDuration     int   `json:"workDuration"`
	RestDuration     int   `json:"restDuration"`
}

// WorkDomainSet is the set of normalized hostnames acceptable during focus
// time. Membership checks are exact (no substring or subdomain matching).
type WorkDomainSet struct {
	domains map[string]struct{}
}

// NewWorkDomainSet creates an empty set.
func NewWorkDomainSet() *WorkDomainSet {
	return &WorkDomainSet{domains: make(map[string]struct{})}
}

// WorkDomainSetFrom creates a set pre-populated with the given domains.
func WorkDomainSetFrom(domains []string) *WorkDomainSet {
	s := NewWorkDomainSet()
	for _, d := range domains {
		s.domains[d] = struct{}{}
	}
	return s
}

// Add inserts a domain. Returns false if it was already present.
func (s *WorkDomainSet) Add(domain string) bool {
	if _, ok := s.domains[domain]; ok {
		return false
	}
	s.domains[domain] = struct{}{}
	return true
}

// Remove deletes a domain. Returns false if it was not present.
func (s *WorkDomainSet) Remove(domain string) bool {
	if _, ok := s.domains[domain]; !ok {
		return false
	}
	delete(s.domains, domain)
	return true
}

// Has reports exact membership.
func (s *WorkDomainSet) Has(domain string) bool {
	_, ok := s.domains[domain]
	return ok
}

// Len returns the number of domains in the set.
func (s *WorkDomainSet) Len() int {
	return len(s.domains)
}

// List returns the domains in deterministic (sorted) order.
func (s *WorkDomainSet) List() []string {
	out := make([]string, 0, len(s.domains))
	for d := range s.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
