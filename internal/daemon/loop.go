// Package daemon wires the timer machine, tab monitor and control socket
// into one event loop.
package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/classifier"
	"github.com/studyfocus/focusmon/internal/command"
	"github.com/studyfocus/focusmon/internal/domain"
	"github.com/studyfocus/focusmon/internal/monitor"
	"github.com/studyfocus/focusmon/internal/session"
)

const heartbeatInterval = 30 * time.Second

// Dispatcher runs one intervention to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.InterventionEvent)
}

// cmdEnvelope carries a request into the loop and its response back out.
type cmdEnvelope struct {
	req   command.Request
	reply chan command.Response
}

// Loop serializes all state mutation on a single goroutine. Tab events,
// alarm fires, control commands and heartbeats are all handled in one
// select, so the machine and monitor need no locking.
type Loop struct {
	machine    *session.Machine
	monitor    *monitor.Monitor
	domains    *domain.WorkDomainSet
	store      domain.StateStore
	tabs       domain.TabSource
	dispatcher Dispatcher
	notifier   domain.Notifier
	alarm      Alarm
	clock      domain.Clock
	pid        int
	logger     *zap.Logger
	restored   bool

	cmdCh chan cmdEnvelope
}

// New builds a loop from persisted state: the timer is restored and fast
// forwarded, the work-domain set and flags reloaded.
func New(
	store domain.StateStore,
	tabs domain.TabSource,
	dispatcher Dispatcher,
	notifier domain.Notifier,
	alarm Alarm,
	clock domain.Clock,
	pm domain.ProcessManager,
	logger *zap.Logger,
) (*Loop, error) {
	persisted, err := store.LoadTimerState()
	if err != nil {
		return nil, fmt.Errorf("load timer state: %w", err)
	}
	var machine *session.Machine
	if persisted != nil {
		machine = session.Restore(*persisted, clock, logger)
	} else {
		machine = session.New(clock, logger)
	}

	domainList, err := store.LoadWorkDomains()
	if err != nil {
		return nil, fmt.Errorf("load work domains: %w", err)
	}
	domains := domain.WorkDomainSetFrom(domainList)

	mon := monitor.New(machine, domains, store, logger)
	if flags, err := store.LoadFlags(); err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	} else if flags != nil {
		mon.SetFlags(*flags)
	}

	return &Loop{
		machine:    machine,
		monitor:    mon,
		domains:    domains,
		store:      store,
		tabs:       tabs,
		dispatcher: dispatcher,
		notifier:   notifier,
		alarm:      alarm,
		clock:      clock,
		pid:        pm.GetCurrentPID(),
		logger:     logger,
		restored:   persisted != nil,
		cmdCh:      make(chan cmdEnvelope),
	}, nil
}

// SetDefaultDurations applies configured interval lengths on a fresh
// install. A restored timer keeps whatever the user last set. Call
// before Run.
func (l *Loop) SetDefaultDurations(workSec, restSec int) {
	if l.restored {
		return
	}
	l.machine.SetDurations(workSec, restSec)
}

// Submit delivers one command to the loop and waits for the response.
// Safe to call from any goroutine.
func (l *Loop) Submit(ctx context.Context, req command.Request) (command.Response, error) {
	env := cmdEnvelope{req: req, reply: make(chan command.Response, 1)}
	select {
	case l.cmdCh <- env:
	case <-ctx.Done():
		return command.Response{}, ctx.Err()
	}
	select {
	case resp := <-env.reply:
		return resp, nil
	case <-ctx.Done():
		return command.Response{}, ctx.Err()
	}
}

// ConfirmDomain adds a domain through the loop. Used by the intervention
// dispatcher when the user marks a page as work.
func (l *Loop) ConfirmDomain(ctx context.Context, dom string) error {
	resp, err := l.Submit(ctx, command.Request{Action: command.AddWorkDomain, Domain: dom})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	return nil
}

// Run drives the loop until ctx is canceled. A session that expired while
// the daemon was down is fast-forwarded before the first event.
func (l *Loop) Run(ctx context.Context) error {
	l.advance()
	l.beat()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	defer l.alarm.Stop()

	l.logger.Info("daemon loop running",
		zap.Int("pid", l.pid),
		zap.String("phase", string(l.machine.State().Phase)))

	for {
		select {
		case <-ctx.Done():
			// Best effort on the way out; already logged on failure.
			_ = l.persistTimer()
			l.logger.Info("daemon loop stopped")
			return ctx.Err()

		case ev, ok := <-l.tabs.Events():
			if !ok {
				return fmt.Errorf("tab source closed")
			}
			l.handleTab(ev)

		case <-l.alarm.C():
			l.advance()

		case env := <-l.cmdCh:
			env.reply <- l.handle(env.req)

		case <-heartbeat.C:
			l.beat()
		}
	}
}

func (l *Loop) handleTab(ev domain.TabEvent) {
	if intervention := l.monitor.HandleTab(ev); intervention != nil {
		// Interventions block on the user; run them off the loop.
		go l.dispatcher.Dispatch(context.Background(), *intervention)
	}
}

// advance fast-forwards the machine past an expired deadline and handles
// the resulting transition, then re-arms the alarm.
func (l *Loop) advance() {
	completed, transitioned := l.machine.CheckCompletion()
	if transitioned {
		if l.machine.State().Phase == domain.PhaseWork {
			l.monitor.ArmBaseline()
		}
		go func() {
			if err := l.notifier.PhaseComplete(completed); err != nil {
				l.logger.Warn("phase notification failed", zap.Error(err))
			}
		}()
		// No caller to surface this to; the next command retries the write.
		_ = l.persistTimer()
	}
	l.rearm()
}

func (l *Loop) rearm() {
	if deadline, ok := l.machine.Deadline(); ok {
		l.alarm.Set(deadline)
	} else {
		l.alarm.Stop()
	}
}

func (l *Loop) persistTimer() error {
	if err := l.store.SaveTimerState(l.machine.State()); err != nil {
		l.logger.Error("failed to persist timer state", zap.Error(err))
		return fmt.Errorf("persist timer state: %w", err)
	}
	return nil
}

func (l *Loop) persistDomains() error {
	if err := l.store.SaveWorkDomains(l.domains.List()); err != nil {
		l.logger.Error("failed to persist work domains", zap.Error(err))
		return fmt.Errorf("persist work domains: %w", err)
	}
	return nil
}

func (l *Loop) persistFlags() error {
	if err := l.store.SaveFlags(l.monitor.Flags()); err != nil {
		l.logger.Error("failed to persist flags", zap.Error(err))
		return fmt.Errorf("persist flags: %w", err)
	}
	return nil
}

// ackTimer persists the timer and acknowledges the command. The in-memory
// mutation stands either way; a failed write comes back as a failure so
// the caller never mistakes it for a durable success.
func (l *Loop) ackTimer() command.Response {
	if err := l.persistTimer(); err != nil {
		return command.Fail(err.Error())
	}
	return command.OK(l.snapshot())
}

func (l *Loop) ackFlags() command.Response {
	if err := l.persistFlags(); err != nil {
		return command.Fail(err.Error())
	}
	return command.OK(l.snapshot())
}

func (l *Loop) beat() {
	if err := l.store.SaveHeartbeat(l.pid, l.clock.Now().Unix()); err != nil {
		l.logger.Warn("failed to record heartbeat", zap.Error(err))
	}
}

// handle executes one command on the loop goroutine.
func (l *Loop) handle(req command.Request) command.Response {
	switch req.Action {
	case command.StartSession:
		return l.startSession(req.Duration)

	case command.StopSession:
		l.machine.Stop()
		l.rearm()
		return l.ackTimer()

	case command.PauseSession:
		l.machine.Pause()
		l.rearm()
		return l.ackTimer()

	case command.ResumeSession:
		l.machine.Resume()
		l.rearm()
		return l.ackTimer()

	case command.ToggleMode:
		flags := l.monitor.Flags()
		if flags.Mode == domain.ModeFocused {
			flags.Mode = domain.ModeNormal
		} else {
			flags.Mode = domain.ModeFocused
		}
		l.monitor.SetFlags(flags)
		l.logger.Info("mode toggled", zap.String("mode", string(flags.Mode)))
		return l.ackFlags()

	case command.SetIntercept:
		if req.Enabled == nil {
			return command.Fail("enabled field is required")
		}
		flags := l.monitor.Flags()
		flags.InterceptEnabled = *req.Enabled
		l.monitor.SetFlags(flags)
		return l.ackFlags()

	case command.AddWorkDomain:
		return l.addDomain(req.Domain)

	case command.RemoveWorkDomain:
		dom := classifier.Normalize(req.Domain)
		if !l.domains.Remove(dom) {
			return command.Fail(fmt.Sprintf("domain %q not in work list", dom))
		}
		if err := l.persistDomains(); err != nil {
			return command.Fail(err.Error())
		}
		return command.OK(map[string][]string{"domains": l.domains.List()})

	case command.ListWorkDomains:
		return command.OK(map[string][]string{"domains": l.domains.List()})

	case command.SetDurations:
		l.machine.SetDurations(req.WorkDuration, req.RestDuration)
		return l.ackTimer()

	case command.GetState:
		return command.OK(l.snapshot())

	default:
		return command.Unknown()
	}
}

func (l *Loop) startSession(durationSec int) command.Response {
	l.machine.StartSession(durationSec)
	l.monitor.ArmBaseline()
	l.rearm()

	// The page already on screen becomes the session baseline right away
	// instead of waiting for the next tab switch.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if tab, err := l.tabs.ActiveTab(ctx); err == nil {
		l.monitor.HandleTab(domain.TabEvent{TabID: tab.TabID, URL: tab.URL, Kind: domain.TabActivated})
	} else {
		l.logger.Debug("no active tab at session start", zap.Error(err))
	}

	return l.ackTimer()
}

func (l *Loop) addDomain(raw string) command.Response {
	dom := classifier.Normalize(raw)
	if !classifier.IsValidDomain(dom) {
		return command.Fail(fmt.Sprintf("invalid domain %q", raw))
	}
	// Adding an existing domain succeeds without a second persist.
	if l.domains.Add(dom) {
		if err := l.persistDomains(); err != nil {
			return command.Fail(err.Error())
		}
	}
	return command.OK(map[string][]string{"domains": l.domains.List()})
}

func (l *Loop) snapshot() domain.StateSnapshot {
	st := l.machine.State()
	flags := l.monitor.Flags()
	return domain.StateSnapshot{
		Mode:             flags.Mode,
		InterceptEnabled: flags.InterceptEnabled,
		Phase:            st.Phase,
		IsRunning:        st.IsRunning,
		IsPaused:         st.IsPaused,
		TimeRemaining:    l.machine.Remaining(),
		WorkDuration:     st.WorkDuration,
		RestDuration:     st.RestDuration,
	}
}
