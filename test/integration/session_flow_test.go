//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/command"
	"github.com/studyfocus/focusmon/internal/daemon"
	"github.com/studyfocus/focusmon/internal/domain"
	"github.com/studyfocus/focusmon/internal/infra"
	"github.com/studyfocus/focusmon/internal/ipc"
)

// manualClock lets specs move wall-clock time by hand
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubTabSource struct {
	events chan domain.TabEvent
	mu     sync.Mutex
	active *domain.TabInfo
}

func (s *stubTabSource) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubTabSource) Events() <-chan domain.TabEvent { return s.events }

func (s *stubTabSource) ActiveTab(ctx context.Context) (*domain.TabInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, context.DeadlineExceeded
	}
	return s.active, nil
}

func (s *stubTabSource) setActive(tab *domain.TabInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = tab
}

type stubDispatcher struct {
	events chan domain.InterventionEvent
}

func (s *stubDispatcher) Dispatch(ctx context.Context, ev domain.InterventionEvent) {
	s.events <- ev
}

type stubNotifier struct {
	phases chan domain.Phase
}

func (s *stubNotifier) PhaseComplete(phase domain.Phase) error {
	s.phases <- phase
	return nil
}

type manualAlarm struct {
	ch chan time.Time
}

func (a *manualAlarm) Set(time.Time)       {}
func (a *manualAlarm) Stop()               {}
func (a *manualAlarm) C() <-chan time.Time { return a.ch }
func (a *manualAlarm) fire()               { a.ch <- time.Now() }

var _ = Describe("Session Flow", func() {
	var (
		tmpDir     string
		socketPath string
		statePath  string
		clock      *manualClock
		tabs       *stubTabSource
		dispatcher *stubDispatcher
		notifier   *stubNotifier
		alarm      *manualAlarm
		client     *ipc.Client
		cancel     context.CancelFunc
		stopped    chan struct{}
	)

	sendCmd := func(req command.Request) command.Response {
		resp, err := client.Send(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	getSnapshot := func() domain.StateSnapshot {
		resp := sendCmd(command.Request{Action: command.GetState})
		Expect(resp.Success).To(BeTrue())
		var snap domain.StateSnapshot
		Expect(json.Unmarshal(resp.Data, &snap)).To(Succeed())
		return snap
	}

	startDaemon := func() {
		store, err := infra.NewFileStateStore(statePath)
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		loop, err := daemon.New(store, tabs, dispatcher, notifier, alarm, clock,
			infra.NewProcessManager(), logger)
		Expect(err).NotTo(HaveOccurred())

		handler := func(ctx context.Context, req command.Request) command.Response {
			resp, err := loop.Submit(ctx, req)
			if err != nil {
				return command.Fail(err.Error())
			}
			return resp
		}
		server := ipc.NewServer(socketPath, handler, logger)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		stopped = make(chan struct{})
		go func() {
			defer GinkgoRecover()
			server.Serve(ctx)
		}()
		go func() {
			defer GinkgoRecover()
			defer close(stopped)
			loop.Run(ctx)
		}()

		client = ipc.NewClient(socketPath)
		Eventually(func() error {
			_, err := client.Send(command.Request{Action: command.GetState})
			return err
		}, 2*time.Second, 20*time.Millisecond).Should(Succeed())
	}

	stopDaemon := func() {
		cancel()
		Eventually(stopped, 2*time.Second).Should(BeClosed())
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "focusmon-integration-*")
		Expect(err).NotTo(HaveOccurred())

		socketPath = filepath.Join(tmpDir, "d.sock")
		statePath = filepath.Join(tmpDir, "state.json")
		clock = &manualClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
		tabs = &stubTabSource{events: make(chan domain.TabEvent)}
		dispatcher = &stubDispatcher{events: make(chan domain.InterventionEvent, 4)}
		notifier = &stubNotifier{phases: make(chan domain.Phase, 4)}
		alarm = &manualAlarm{ch: make(chan time.Time, 1)}

		startDaemon()
	})

	AfterEach(func() {
		stopDaemon()
		os.RemoveAll(tmpDir)
	})

	Describe("a full pomodoro cycle", func() {
		It("runs work, announces completion, and enters rest", func() {
			resp := sendCmd(command.Request{Action: command.StartSession, Duration: 1500})
			Expect(resp.Success).To(BeTrue())

			snap := getSnapshot()
			Expect(snap.Phase).To(Equal(domain.PhaseWork))
			Expect(snap.IsRunning).To(BeTrue())
			Expect(snap.TimeRemaining).To(Equal(1500))

			clock.advance(1500 * time.Second)
			alarm.fire()

			Eventually(notifier.phases, 2*time.Second).Should(Receive(Equal(domain.PhaseWork)))
			Eventually(func() domain.Phase {
				return getSnapshot().Phase
			}, 2*time.Second, 20*time.Millisecond).Should(Equal(domain.PhaseRest))
			Expect(getSnapshot().TimeRemaining).To(Equal(domain.DefaultRestDuration))
		})
	})

	Describe("interception", func() {
		BeforeEach(func() {
			sendCmd(command.Request{Action: command.ToggleMode})
			sendCmd(command.Request{Action: command.AddWorkDomain, Domain: "docs.example.com"})
			tabs.setActive(&domain.TabInfo{TabID: "1", URL: "https://docs.example.com"})
			sendCmd(command.Request{Action: command.StartSession, Duration: 1500})
		})

		It("dispatches an intervention for a non-work tab", func() {
			tabs.events <- domain.TabEvent{TabID: "2", URL: "https://reddit.com/r/all", Kind: domain.TabActivated}

			var ev domain.InterventionEvent
			Eventually(dispatcher.events, 2*time.Second).Should(Receive(&ev))
			Expect(ev.Domain).To(Equal("reddit.com"))
			Expect(ev.TabID).To(Equal("2"))
		})

		It("leaves work tabs alone", func() {
			tabs.events <- domain.TabEvent{TabID: "3", URL: "https://docs.example.com/page", Kind: domain.TabNavigated}

			getSnapshot() // drain: the event is processed before this reply
			Consistently(dispatcher.events, 200*time.Millisecond).ShouldNot(Receive())
		})
	})

	Describe("restart recovery", func() {
		It("restores a running session from disk", func() {
			sendCmd(command.Request{Action: command.StartSession, Duration: 1500})
			clock.advance(600 * time.Second)
			stopDaemon()

			startDaemon()

			snap := getSnapshot()
			Expect(snap.Phase).To(Equal(domain.PhaseWork))
			Expect(snap.IsRunning).To(BeTrue())
			Expect(snap.TimeRemaining).To(Equal(900))
		})

		It("fast-forwards a session that expired while down", func() {
			sendCmd(command.Request{Action: command.StartSession, Duration: 60})
			stopDaemon()

			// Daemon is down well past the work deadline.
			clock.advance(2 * time.Hour)
			startDaemon()

			Eventually(notifier.phases, 2*time.Second).Should(Receive(Equal(domain.PhaseWork)))
			snap := getSnapshot()
			Expect(snap.Phase).To(Equal(domain.PhaseRest))
			Expect(snap.TimeRemaining).To(Equal(domain.DefaultRestDuration))
		})

		It("keeps work domains across restarts", func() {
			sendCmd(command.Request{Action: command.AddWorkDomain, Domain: "docs.example.com"})
			sendCmd(command.Request{Action: command.AddWorkDomain, Domain: "wikipedia.org"})
			stopDaemon()

			startDaemon()

			resp := sendCmd(command.Request{Action: command.ListWorkDomains})
			Expect(resp.Success).To(BeTrue())
			Expect(string(resp.Data)).To(ContainSubstring("docs.example.com"))
			Expect(string(resp.Data)).To(ContainSubstring("wikipedia.org"))
		})
	})

	Describe("pause and resume", func() {
		It("freezes remaining time across arbitrary pauses", func() {
			sendCmd(command.Request{Action: command.StartSession, Duration: 1500})
			clock.advance(100 * time.Second)

			sendCmd(command.Request{Action: command.PauseSession})
			clock.advance(3 * time.Hour)
			Expect(getSnapshot().TimeRemaining).To(Equal(1400))

			sendCmd(command.Request{Action: command.ResumeSession})
			snap := getSnapshot()
			Expect(snap.IsRunning).To(BeTrue())
			Expect(snap.TimeRemaining).To(Equal(1400))
		})
	})

	Describe("unknown actions", func() {
		It("answers with the canonical error", func() {
			resp, err := client.Send(command.Request{Action: "MAKE_COFFEE"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Success).To(BeFalse())
			Expect(resp.Error).To(Equal("Unknown action"))
		})
	})
})
