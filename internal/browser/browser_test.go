package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/domain"
)

// fakeBrowser serves a minimal DevTools endpoint: target list over HTTP
// and Runtime.evaluate over websocket, answered by a scriptable callback.
type fakeBrowser struct {
	mu      sync.Mutex
	targets []Target
	eval    func(expression string) any
	closed  []string

	server   *httptest.Server
	upgrader websocket.Upgrader
}

func newFakeBrowser(t *testing.T) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{
		eval: func(string) any { return "" },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		json.NewEncoder(w).Encode(fb.targets)
	})
	mux.HandleFunc("/json/close/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/json/close/")
		fb.mu.Lock()
		fb.closed = append(fb.closed, id)
		fb.mu.Unlock()
		w.Write([]byte("Target is closing"))
	})
	mux.HandleFunc("/devtools/page/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := fb.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				ID     int64          `json:"id"`
				Method string         `json:"method"`
				Params map[string]any `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			expr, _ := req.Params["expression"].(string)
			fb.mu.Lock()
			value := fb.eval(expr)
			fb.mu.Unlock()
			reply := map[string]any{
				"id": req.ID,
				"result": map[string]any{
					"result": map[string]any{"type": "string", "value": value},
				},
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	})

	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBrowser) wsURL(targetID string) string {
	return "ws" + strings.TrimPrefix(fb.server.URL, "http") + "/devtools/page/" + targetID
}

func (fb *fakeBrowser) setTargets(targets ...Target) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.targets = targets
}

func (fb *fakeBrowser) setEval(fn func(expression string) any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.eval = fn
}

func (fb *fakeBrowser) pageTarget(id, url string) Target {
	return Target{ID: id, Type: "page", URL: url, WebSocketDebuggerURL: fb.wsURL(id)}
}

func (fb *fakeBrowser) client() *Client {
	return NewClient(fb.server.URL, zap.NewNop())
}

// TestClient_ListTargets verifies target discovery
func TestClient_ListTargets(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(
		fb.pageTarget("1", "https://example.com"),
		Target{ID: "2", Type: "service_worker", URL: "https://example.com/sw.js"},
	)

	targets, err := fb.client().ListTargets(context.Background())

	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "1", targets[0].ID)
}

// TestClient_ActivePage verifies non-page targets are skipped
func TestClient_ActivePage(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(
		Target{ID: "bg", Type: "background_page", URL: "chrome://background"},
		fb.pageTarget("tab7", "https://docs.example.com"),
	)

	page, err := fb.client().ActivePage(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tab7", page.ID)
	assert.Equal(t, "https://docs.example.com", page.URL)
}

// TestClient_ActivePage_NoPages verifies the no-tab error path
func TestClient_ActivePage_NoPages(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(Target{ID: "bg", Type: "service_worker"})

	_, err := fb.client().ActivePage(context.Background())
	assert.Error(t, err)
}

// TestClient_BrowserDown verifies a clean error when nothing listens
func TestClient_BrowserDown(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", zap.NewNop())

	_, err := c.ListTargets(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

// TestClient_EvaluateResult verifies the websocket round trip
func TestClient_EvaluateResult(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(fb.pageTarget("1", "https://example.com"))
	fb.setEval(func(expr string) any {
		assert.Contains(t, expr, "document.title")
		return "Example Domain"
	})

	result, err := fb.client().EvaluateResult(context.Background(), "1", "document.title")

	require.NoError(t, err)
	assert.Equal(t, "Example Domain", result)
}

// TestClient_Evaluate_UnknownTarget verifies missing-target errors
func TestClient_Evaluate_UnknownTarget(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(fb.pageTarget("1", "https://example.com"))

	err := fb.client().Evaluate(context.Background(), "999", "1+1")
	assert.Error(t, err)
}

// TestClient_CloseTarget verifies tab closing
func TestClient_CloseTarget(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(fb.pageTarget("1", "https://example.com"))

	require.NoError(t, fb.client().CloseTarget(context.Background(), "1"))
	assert.Equal(t, []string{"1"}, fb.closed)
}

func collectEvent(t *testing.T, ch <-chan domain.TabEvent) domain.TabEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for tab event")
		return domain.TabEvent{}
	}
}

// TestTabWatcher_EmitsActivationAndNavigation verifies event derivation
// from successive polls
func TestTabWatcher_EmitsActivationAndNavigation(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(fb.pageTarget("1", "https://a.com/"))

	w := NewTabWatcher(fb.client(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// First observation of the tab counts as activation.
	ev := collectEvent(t, w.Events())
	assert.Equal(t, domain.TabActivated, ev.Kind)
	assert.Equal(t, "1", ev.TabID)

	// Same tab navigates.
	fb.setTargets(fb.pageTarget("1", "https://a.com/other"))
	ev = collectEvent(t, w.Events())
	assert.Equal(t, domain.TabNavigated, ev.Kind)
	assert.Equal(t, "https://a.com/other", ev.URL)

	// Focus moves to another tab.
	fb.setTargets(fb.pageTarget("2", "https://b.com/"), fb.pageTarget("1", "https://a.com/other"))
	ev = collectEvent(t, w.Events())
	assert.Equal(t, domain.TabActivated, ev.Kind)
	assert.Equal(t, "2", ev.TabID)
}

// TestTabWatcher_ActiveTab verifies the direct query path
func TestTabWatcher_ActiveTab(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(fb.pageTarget("5", "https://docs.example.com"))

	w := NewTabWatcher(fb.client(), zap.NewNop())
	tab, err := w.ActiveTab(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "5", tab.TabID)
	assert.Equal(t, "https://docs.example.com", tab.URL)
}

// TestOverlayChannel_ShowOverlay verifies listener detection
func TestOverlayChannel_ShowOverlay(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(fb.pageTarget("1", "https://reddit.com"))
	ch := NewOverlayChannel(fb.client(), zap.NewNop())

	fb.setEval(func(expr string) any {
		assert.Contains(t, expr, "__focusmonAlert")
		return "ok"
	})
	assert.NoError(t, ch.ShowOverlay(context.Background(), "1", "reddit.com"))

	fb.setEval(func(string) any { return "missing" })
	assert.Error(t, ch.ShowOverlay(context.Background(), "1", "reddit.com"))
}

// TestOverlayChannel_AwaitChoice verifies choice polling
func TestOverlayChannel_AwaitChoice(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(fb.pageTarget("1", "https://reddit.com"))
	ch := NewOverlayChannel(fb.client(), zap.NewNop())

	polls := 0
	fb.setEval(func(string) any {
		polls++
		if polls < 3 {
			return ""
		}
		return "work"
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	choice, err := ch.AwaitChoice(ctx, "1")

	require.NoError(t, err)
	assert.Equal(t, "work", choice)
}

// TestOverlayChannel_AwaitChoice_Timeout verifies the unresolved path
func TestOverlayChannel_AwaitChoice_Timeout(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(fb.pageTarget("1", "https://reddit.com"))
	ch := NewOverlayChannel(fb.client(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()
	_, err := ch.AwaitChoice(ctx, "1")

	assert.Error(t, err)
}

// TestOverlayChannel_GoBack verifies history handling
func TestOverlayChannel_GoBack(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.setTargets(fb.pageTarget("1", "https://reddit.com"))
	ch := NewOverlayChannel(fb.client(), zap.NewNop())

	fb.setEval(func(string) any { return "ok" })
	assert.NoError(t, ch.GoBack(context.Background(), "1"))

	fb.setEval(func(string) any { return "nohistory" })
	assert.Error(t, ch.GoBack(context.Background(), "1"))
}
