// Package session implements the work/rest timer state machine.
//
// The machine never counts down in memory. Interval boundaries are absolute
// wall-clock deadlines, and remaining time is recomputed on every query, so
// the daemon can be suspended and restarted between ticks without losing
// the session. A scheduled wake-up is an optimization, not a requirement:
// callers are expected to invoke CheckCompletion before reading state.
package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/domain"
)

// Machine owns the timer state and its phase transitions. It is not safe
// for concurrent use; the daemon event loop is its only caller.
type Machine struct {
	state  domain.TimerState
	clock  domain.Clock
	logger *zap.Logger
}

// New creates an idle machine with default durations.
func New(clock domain.Clock, logger *zap.Logger) *Machine {
	return &Machine{
		state: domain.TimerState{
			Phase:        domain.PhaseIdle,
			WorkDuration: domain.DefaultWorkDuration,
			RestDuration: domain.DefaultRestDuration,
		},
		clock:  clock,
		logger: logger,
	}
}

// Restore creates a machine from persisted state. The caller should invoke
// CheckCompletion afterwards to fast-forward a deadline that expired while
// the daemon was down.
func Restore(state domain.TimerState, clock domain.Clock, logger *zap.Logger) *Machine {
	if state.WorkDuration <= 0 {
		state.WorkDuration = domain.DefaultWorkDuration
	}
	if state.RestDuration <= 0 {
		state.RestDuration = domain.DefaultRestDuration
	}
	if state.Phase == "" {
		state.Phase = domain.PhaseIdle
	}
	return &Machine{state: state, clock: clock, logger: logger}
}

// State returns a copy of the current timer state.
func (m *Machine) State() domain.TimerState {
	return m.state
}

// StartSession begins a work interval of durationSec seconds, clamped to
// the minimum work floor. Zero or negative durations fall back to the
// configured work duration.
func (m *Machine) StartSession(durationSec int) domain.TimerState {
	if durationSec <= 0 {
		durationSec = m.state.WorkDuration
	}
	if durationSec < domain.MinWorkDuration {
		m.logger.Warn("work duration below floor, clamping",
			zap.Int("requested", durationSec),
			zap.Int("floor", domain.MinWorkDuration))
		durationSec = domain.MinWorkDuration
	}
	m.begin(domain.PhaseWork, durationSec)
	return m.state
}

// Stop returns the machine to idle, clearing the current interval. The
// work-domain set is untouched; stopping a session never forgets domains.
func (m *Machine) Stop() {
	m.state.Phase = domain.PhaseIdle
	m.state.IsRunning = false
	m.state.IsPaused = false
	m.state.StartTime = 0
	m.state.EndTime = 0
	m.state.PausedAt = 0
	m.state.Duration = 0
}

// Pause freezes the running interval. Pausing a machine that is not
// running is a logged no-op.
func (m *Machine) Pause() {
	if !m.state.IsRunning || m.state.IsPaused {
		m.logger.Warn("pause ignored: no running session")
		return
	}
	m.state.PausedAt = m.clock.Now().UnixMilli()
	m.state.IsRunning = false
	m.state.IsPaused = true
}

// Resume unfreezes a paused interval. The deadline is shifted forward by
// the paused span so remaining time is preserved exactly. Resuming a
// machine that is not paused is a logged no-op.
func (m *Machine) Resume() {
	if !m.state.IsPaused {
		m.logger.Warn("resume ignored: session not paused")
		return
	}
	now := m.clock.Now().UnixMilli()
	m.state.EndTime += now - m.state.PausedAt
	m.state.PausedAt = 0
	m.state.IsPaused = false
	m.state.IsRunning = true
}

// CheckCompletion fast-forwards the machine if the current deadline has
// passed, chaining into the next phase. At most ONE transition happens per
// call: if the daemon slept through several full phases, the intermediate
// ones are skipped rather than replayed, catching up to now instead of
// firing a burst of stale completions. Returns the completed phase when a
// transition occurred.
func (m *Machine) CheckCompletion() (completed domain.Phase, transitioned bool) {
	if !m.state.IsRunning || m.state.IsPaused {
		return "", false
	}
	if m.clock.Now().UnixMilli() < m.state.EndTime {
		return "", false
	}

	completed = m.state.Phase
	switch completed {
	case domain.PhaseWork:
		m.begin(domain.PhaseRest, m.state.RestDuration)
	case domain.PhaseRest:
		work := m.state.WorkDuration
		if work < domain.MinWorkDuration {
			work = domain.MinWorkDuration
		}
		m.begin(domain.PhaseWork, work)
	default:
		return "", false
	}

	m.logger.Info("phase complete",
		zap.String("completed", string(completed)),
		zap.String("next", string(m.state.Phase)))
	return completed, true
}

// Remaining returns whole seconds left in the current interval: computed
// live against the wall clock when running, frozen when paused, and the
// configured work duration when idle.
func (m *Machine) Remaining() int {
	switch {
	case m.state.IsPaused:
		return ceilSeconds(m.state.EndTime - m.state.PausedAt)
	case m.state.IsRunning:
		return ceilSeconds(m.state.EndTime - m.clock.Now().UnixMilli())
	default:
		return m.state.WorkDuration
	}
}

// Deadline returns the wake-up time for the current interval, if any.
func (m *Machine) Deadline() (time.Time, bool) {
	if !m.state.IsRunning || m.state.IsPaused {
		return time.Time{}, false
	}
	return time.UnixMilli(m.state.EndTime), true
}

// SetDurations updates the configured interval lengths. The work floor
// applies; non-positive values leave the existing setting untouched.
func (m *Machine) SetDurations(workSec, restSec int) {
	if workSec > 0 {
		if workSec < domain.MinWorkDuration {
			workSec = domain.MinWorkDuration
		}
		m.state.WorkDuration = workSec
	}
	if restSec > 0 {
		m.state.RestDuration = restSec
	}
}

func (m *Machine) begin(phase domain.Phase, durationSec int) {
	now := m.clock.Now().UnixMilli()
	m.state.Phase = phase
	m.state.IsRunning = true
	m.state.IsPaused = false
	m.state.StartTime = now
	m.state.EndTime = now + int64(durationSec)*1000
	m.state.PausedAt = 0
	m.state.Duration = durationSec
}

func ceilSeconds(ms int64) int {
	if ms <= 0 {
		return 0
	}
	return int((ms + 999) / 1000)
}
