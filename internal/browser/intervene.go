package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/domain"
)

const choicePollInterval = 500 * time.Millisecond

// OverlayChannel implements domain.InterventionChannel by evaluating
// scripts in the distracting tab. The overlay stores the user's choice in
// window.__focusmonChoice, which AwaitChoice polls.
type OverlayChannel struct {
	client *Client
	logger *zap.Logger
}

// NewOverlayChannel creates an overlay channel over the DevTools client.
func NewOverlayChannel(client *Client, logger *zap.Logger) *OverlayChannel {
	return &OverlayChannel{client: client, logger: logger}
}

// ShowOverlay asks an in-page listener (left behind by a previous
// injection) to render the overlay. Fails when no listener is present.
func (o *OverlayChannel) ShowOverlay(ctx context.Context, tabID, dom string) error {
	expr := fmt.Sprintf(
		`typeof window.__focusmonAlert === 'function' ? (window.__focusmonAlert(%s), "ok") : "missing"`,
		jsString(dom))
	result, err := o.client.EvaluateResult(ctx, tabID, expr)
	if err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("no overlay listener in tab %s", tabID)
	}
	return nil
}

// InjectOverlay injects the full overlay script into the tab.
func (o *OverlayChannel) InjectOverlay(ctx context.Context, tabID, dom string) error {
	script := overlayScript + fmt.Sprintf(";window.__focusmonAlert(%s);", jsString(dom))
	return o.client.Evaluate(ctx, tabID, script)
}

// AwaitChoice polls the tab for the user's resolution until ctx expires.
// Returns "work" or "back".
func (o *OverlayChannel) AwaitChoice(ctx context.Context, tabID string) (string, error) {
	ticker := time.NewTicker(choicePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			choice, err := o.client.EvaluateResult(ctx, tabID,
				`(function(){var c = window.__focusmonChoice || ""; window.__focusmonChoice = ""; return c;})()`)
			if err != nil {
				// Tab navigated away or closed; nothing left to wait on.
				return "", fmt.Errorf("overlay tab gone: %w", err)
			}
			if choice == "work" || choice == "back" {
				return choice, nil
			}
		}
	}
}

// GoBack navigates the tab back in history. Fails when there is none.
func (o *OverlayChannel) GoBack(ctx context.Context, tabID string) error {
	result, err := o.client.EvaluateResult(ctx, tabID,
		`history.length > 1 ? (history.back(), "ok") : "nohistory"`)
	if err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("tab %s has no history", tabID)
	}
	return nil
}

// CloseTab closes the tab.
func (o *OverlayChannel) CloseTab(ctx context.Context, tabID string) error {
	return o.client.CloseTarget(ctx, tabID)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// overlayScript renders a full-screen prompt and records the user's
// choice in window.__focusmonChoice. It also installs __focusmonAlert so
// later interventions in the same tab can skip reinjection.
const overlayScript = `
window.__focusmonAlert = function(domain) {
	var existing = document.getElementById('focusmon-overlay');
	if (existing) existing.remove();

	var overlay = document.createElement('div');
	overlay.id = 'focusmon-overlay';
	overlay.style.cssText = 'position:fixed;inset:0;z-index:2147483647;' +
		'background:rgba(15,23,42,0.96);display:flex;align-items:center;' +
		'justify-content:center;font-family:system-ui,sans-serif;';

	var card = document.createElement('div');
	card.style.cssText = 'background:#fff;border-radius:12px;padding:32px;' +
		'max-width:420px;text-align:center;';

	var title = document.createElement('h2');
	title.textContent = 'Focus session in progress';
	title.style.cssText = 'margin:0 0 12px;color:#0f172a;font-size:20px;';

	var msg = document.createElement('p');
	msg.textContent = domain + ' is not in your work list.';
	msg.style.cssText = 'margin:0 0 24px;color:#475569;font-size:14px;';

	var row = document.createElement('div');
	row.style.cssText = 'display:flex;gap:12px;justify-content:center;';

	var mk = function(label, choice, bg) {
		var b = document.createElement('button');
		b.textContent = label;
		b.style.cssText = 'padding:10px 20px;border:0;border-radius:8px;' +
			'cursor:pointer;font-size:14px;color:#fff;background:' + bg + ';';
		b.onclick = function() {
			window.__focusmonChoice = choice;
			overlay.remove();
		};
		return b;
	};

	row.appendChild(mk('This is work', 'work', '#16a34a'));
	row.appendChild(mk('Take me back', 'back', '#dc2626'));

	card.appendChild(title);
	card.appendChild(msg);
	card.appendChild(row);
	overlay.appendChild(card);
	document.documentElement.appendChild(overlay);
};
`

var _ domain.InterventionChannel = (*OverlayChannel)(nil)
