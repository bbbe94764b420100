package browser

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/domain"
)

const pollInterval = 500 * time.Millisecond

// TabWatcher implements domain.TabSource by polling the active page
// target. Polling is deliberately chosen over event subscriptions: the
// watcher survives browser restarts without resubscription bookkeeping,
// and at 500ms the latency is below what a user notices.
type TabWatcher struct {
	client *Client
	events chan domain.TabEvent
	logger *zap.Logger

	lastTabID string
	lastURL   string
}

// NewTabWatcher creates a watcher over the DevTools client.
func NewTabWatcher(client *Client, logger *zap.Logger) *TabWatcher {
	return &TabWatcher{
		client: client,
		events: make(chan domain.TabEvent, 16),
		logger: logger,
	}
}

// Events returns the channel tab events are delivered on.
func (w *TabWatcher) Events() <-chan domain.TabEvent {
	return w.events
}

// ActiveTab returns the currently focused page tab.
func (w *TabWatcher) ActiveTab(ctx context.Context) (*domain.TabInfo, error) {
	target, err := w.client.ActivePage(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.TabInfo{TabID: target.ID, URL: target.URL}, nil
}

// Run polls the browser until ctx is canceled. A browser that is down or
// restarting just produces quiet poll failures; the next successful poll
// picks up where things stand.
func (w *TabWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *TabWatcher) poll(ctx context.Context) {
	target, err := w.client.ActivePage(ctx)
	if err != nil {
		w.logger.Debug("active page poll failed", zap.Error(err))
		return
	}

	var ev *domain.TabEvent
	switch {
	case target.ID != w.lastTabID:
		ev = &domain.TabEvent{TabID: target.ID, URL: target.URL, Kind: domain.TabActivated}
	case target.URL != w.lastURL:
		ev = &domain.TabEvent{TabID: target.ID, URL: target.URL, Kind: domain.TabNavigated}
	}
	w.lastTabID = target.ID
	w.lastURL = target.URL

	if ev == nil {
		return
	}
	select {
	case w.events <- *ev:
	default:
		// Consumer is behind; dropping an event is fine, the next poll
		// re-observes the same tab.
		w.logger.Debug("tab event dropped, consumer busy")
	}
}

var _ domain.TabSource = (*TabWatcher)(nil)
