// Package monitor watches tab activity and decides when an intervention
// is warranted.
package monitor

import (
	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/classifier"
	"github.com/studyfocus/focusmon/internal/domain"
	"github.com/studyfocus/focusmon/internal/session"
)

// Monitor feeds tab events through the classifier and consults the timer
// phase and flags. The first qualifying tab after a fresh work phase is
// admitted as the baseline work domain instead of being flagged.
type Monitor struct {
	machine   *session.Machine
	domains   *domain.WorkDomainSet
	store     domain.StateStore
	logger    *zap.Logger
	flags     domain.Flags
	baselined bool
}

// New creates a monitor over the shared machine and domain set.
func New(machine *session.Machine, domains *domain.WorkDomainSet, store domain.StateStore, logger *zap.Logger) *Monitor {
	return &Monitor{
		machine: machine,
		domains: domains,
		store:   store,
		logger:  logger,
		flags:   domain.DefaultFlags(),
	}
}

// SetFlags updates the mode/intercept switches the monitor gates on.
func (m *Monitor) SetFlags(flags domain.Flags) {
	m.flags = flags
}

// Flags returns the current switches.
func (m *Monitor) Flags() domain.Flags {
	return m.flags
}

// ArmBaseline marks the start of a fresh work phase: the next qualifying
// tab will be admitted to the work-domain set without intervention. Called
// on every work phase entered from idle or rest, never mid-work.
func (m *Monitor) ArmBaseline() {
	m.baselined = false
}

// HandleTab processes one tab activation/navigation event. Returns an
// intervention event when the tab shows a non-work domain during an active
// work phase, nil otherwise. Never returns an error: anything that goes
// wrong is logged and swallowed so the event loop keeps listening.
func (m *Monitor) HandleTab(ev domain.TabEvent) *domain.InterventionEvent {
	st := m.machine.State()
	if st.Phase != domain.PhaseWork || !st.IsRunning {
		return nil
	}
	if m.flags.Mode != domain.ModeFocused || !m.flags.InterceptEnabled {
		return nil
	}

	verdict := classifier.Classify(ev.URL, m.domains)
	if verdict.Internal {
		return nil
	}

	if !m.baselined {
		m.baselined = true
		if m.domains.Add(verdict.Domain) {
			m.logger.Info("baseline work domain admitted",
				zap.String("domain", verdict.Domain),
				zap.String("tab", ev.TabID))
			if err := m.store.SaveWorkDomains(m.domains.List()); err != nil {
				m.logger.Warn("failed to persist baseline domain", zap.Error(err))
			}
		}
		return nil
	}

	if verdict.IsWork {
		return nil
	}

	m.logger.Info("non-work domain during work phase",
		zap.String("domain", verdict.Domain),
		zap.String("tab", ev.TabID))
	return &domain.InterventionEvent{TabID: ev.TabID, Domain: verdict.Domain}
}
