// Package intervene drives the distraction overlay lifecycle: delivery
// into the tab, waiting for the user's choice, and acting on it.
package intervene

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/domain"
)

// ChoiceTimeout bounds how long an overlay waits for the user before the
// tab is treated as abandoned and sent back.
const ChoiceTimeout = 30 * time.Second

// Dispatcher delivers overlays and resolves user choices. Safe to call
// from multiple goroutines; each Dispatch is self-contained.
type Dispatcher struct {
	channel domain.InterventionChannel
	logger  *zap.Logger

	// onConfirm is invoked when the user chooses to keep the domain as
	// work. The callback owns persistence and set mutation.
	onConfirm func(domain string) error
}

// New creates a dispatcher over the given delivery channel.
func New(channel domain.InterventionChannel, onConfirm func(domain string) error, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		channel:   channel,
		onConfirm: onConfirm,
		logger:    logger,
	}
}

// Dispatch runs one full intervention: show the overlay (falling back to
// direct injection when no in-page listener answers), wait for the user's
// choice, and act on it. "work" confirms the domain; "back" or a timeout
// sends the tab away from the page. Errors are logged and absorbed so a
// misbehaving tab cannot take the daemon down.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.InterventionEvent) {
	log := d.logger.With(zap.String("tab", ev.TabID), zap.String("domain", ev.Domain))

	if err := d.deliver(ctx, ev); err != nil {
		log.Warn("overlay delivery failed, dropping intervention", zap.Error(err))
		return
	}

	choiceCtx, cancel := context.WithTimeout(ctx, ChoiceTimeout)
	defer cancel()

	choice, err := d.channel.AwaitChoice(choiceCtx, ev.TabID)
	if err != nil {
		// Timeout or tab gone. Treat as "back": the user did not opt in.
		log.Info("overlay unresolved, navigating away", zap.Error(err))
		d.leave(ctx, ev.TabID, log)
		return
	}

	switch choice {
	case "work":
		log.Info("user confirmed work domain")
		if err := d.onConfirm(ev.Domain); err != nil {
			log.Warn("work confirmation failed", zap.Error(err))
		}
	default:
		log.Info("user chose to leave", zap.String("choice", choice))
		d.leave(ctx, ev.TabID, log)
	}
}

// deliver tries the lightweight in-page listener first and falls back to
// injecting the full overlay script.
func (d *Dispatcher) deliver(ctx context.Context, ev domain.InterventionEvent) error {
	err := d.channel.ShowOverlay(ctx, ev.TabID, ev.Domain)
	if err == nil {
		return nil
	}
	d.logger.Debug("no overlay listener in tab, injecting",
		zap.String("tab", ev.TabID), zap.Error(err))
	return d.channel.InjectOverlay(ctx, ev.TabID, ev.Domain)
}

// leave navigates back in history, closing the tab when there is no
// history to go back to.
func (d *Dispatcher) leave(ctx context.Context, tabID string, log *zap.Logger) {
	if err := d.channel.GoBack(ctx, tabID); err == nil {
		return
	}
	if err := d.channel.CloseTab(ctx, tabID); err != nil {
		log.Warn("failed to close tab", zap.Error(err))
	}
}
