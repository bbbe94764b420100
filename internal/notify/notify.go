// Package notify surfaces phase-completion messages as desktop
// notifications.
package notify

import (
	"fmt"
	"math/rand"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/domain"
)

var workCompleteMessages = []string{
	"Great job! Time to recharge.",
	"Nice focus session, grab some water!",
	"You crushed it. Stretch time!",
}

var restCompleteMessages = []string{
	"Break's over, let's dive back in!",
	"Refreshed? Back to it!",
	"You've got this, time to focus.",
}

// runner executes a notification command. Injectable for tests.
type runner func(name string, args ...string) error

func execRunner(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// DesktopNotifier implements domain.Notifier via the platform
// notification command: notify-send on Linux, osascript on macOS.
type DesktopNotifier struct {
	run    runner
	goos   string
	pick   func(n int) int
	logger *zap.Logger
}

// NewDesktopNotifier creates a notifier for the current platform.
func NewDesktopNotifier(logger *zap.Logger) *DesktopNotifier {
	return &DesktopNotifier{
		run:    execRunner,
		goos:   runtime.GOOS,
		pick:   rand.Intn,
		logger: logger,
	}
}

// PhaseComplete announces the completed phase with a message drawn from
// the pool for that phase.
func (n *DesktopNotifier) PhaseComplete(phase domain.Phase) error {
	var title, message string
	switch phase {
	case domain.PhaseWork:
		title = "Work session complete"
		message = workCompleteMessages[n.pick(len(workCompleteMessages))]
	case domain.PhaseRest:
		title = "Break complete"
		message = restCompleteMessages[n.pick(len(restCompleteMessages))]
	default:
		return fmt.Errorf("no notification for phase %q", phase)
	}

	if err := n.deliver(title, message); err != nil {
		n.logger.Warn("notification delivery failed", zap.Error(err))
		return err
	}
	return nil
}

func (n *DesktopNotifier) deliver(title, message string) error {
	switch n.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", message, title)
		return n.run("osascript", "-e", script)
	default:
		return n.run("notify-send", "--app-name=focusmon", title, message)
	}
}

var _ domain.Notifier = (*DesktopNotifier)(nil)
