// Package browser talks to a running browser over the DevTools protocol:
// target discovery over HTTP, script evaluation over websocket.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultEndpoint is where a browser started with remote debugging
// enabled listens by default.
const DefaultEndpoint = "http://127.0.0.1:9222"

const evalTimeout = 10 * time.Second

// Target is one debuggable browser target. Only type "page" targets are
// ordinary tabs.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Client is a DevTools protocol client. Evaluate calls dial a fresh
// websocket per call; the protocol handshake is cheap and a persistent
// connection would need its own keepalive machinery.
type Client struct {
	endpoint string
	httpc    *http.Client
	dialer   *websocket.Dialer
	logger   *zap.Logger
	nextID   atomic.Int64
}

// NewClient creates a client for the DevTools HTTP endpoint.
func NewClient(endpoint string, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 5 * time.Second},
		dialer:   websocket.DefaultDialer,
		logger:   logger,
	}
}

// ListTargets returns all debuggable targets.
func (c *Client) ListTargets(ctx context.Context) ([]Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/json/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list targets: unexpected status %s", resp.Status)
	}

	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode target list: %w", err)
	}
	return targets, nil
}

// ActivePage returns the frontmost page target. The DevTools target list
// is ordered most recently focused first.
func (c *Client) ActivePage(ctx context.Context) (*Target, error) {
	targets, err := c.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		if targets[i].Type == "page" {
			return &targets[i], nil
		}
	}
	return nil, fmt.Errorf("no page target found")
}

// CloseTarget asks the browser to close a target.
func (c *Client) CloseTarget(ctx context.Context, targetID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/json/close/"+targetID, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("close target: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("close target %s: unexpected status %s", targetID, resp.Status)
	}
	return nil
}

// evalRequest and evalResponse are the Runtime.evaluate wire shapes.
type evalRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

type evalResponse struct {
	ID     int64 `json:"id"`
	Result struct {
		Result struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Evaluate runs a script in the target and discards the result.
func (c *Client) Evaluate(ctx context.Context, targetID, expression string) error {
	_, err := c.EvaluateResult(ctx, targetID, expression)
	return err
}

// EvaluateResult runs a script in the target and returns its string
// result. Non-string results come back JSON-encoded.
func (c *Client) EvaluateResult(ctx context.Context, targetID, expression string) (string, error) {
	wsURL, err := c.debuggerURL(ctx, targetID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return "", fmt.Errorf("dial target %s: %w", targetID, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	req := evalRequest{
		ID:     c.nextID.Add(1),
		Method: "Runtime.evaluate",
		Params: map[string]any{
			"expression":    expression,
			"returnByValue": true,
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return "", fmt.Errorf("send evaluate: %w", err)
	}

	// Skip unsolicited protocol events until our reply arrives.
	for {
		var resp evalResponse
		if err := conn.ReadJSON(&resp); err != nil {
			return "", fmt.Errorf("read evaluate reply: %w", err)
		}
		if resp.ID != req.ID {
			continue
		}
		if resp.Error != nil {
			return "", fmt.Errorf("evaluate failed: %s", resp.Error.Message)
		}
		if resp.Result.ExceptionDetails != nil {
			return "", fmt.Errorf("script threw: %s", resp.Result.ExceptionDetails.Text)
		}
		return decodeValue(resp.Result.Result.Value), nil
	}
}

// debuggerURL resolves a target ID to its websocket debugger URL.
func (c *Client) debuggerURL(ctx context.Context, targetID string) (string, error) {
	targets, err := c.ListTargets(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range targets {
		if t.ID == targetID {
			if t.WebSocketDebuggerURL == "" {
				return "", fmt.Errorf("target %s has no debugger url (another client attached?)", targetID)
			}
			return t.WebSocketDebuggerURL, nil
		}
	}
	return "", fmt.Errorf("target %s not found", targetID)
}

func decodeValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
