package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/studyfocus/focusmon/internal/command"
)

// defaultTimeout bounds a round trip for non-chat commands. Chat calls an
// upstream model and gets a much longer leash.
const (
	defaultTimeout = 5 * time.Second
	chatTimeout    = 90 * time.Second
)

// Client is a one-shot control-socket client. Each Send dials a fresh
// connection; the protocol is cheap enough that pooling is not worth it.
type Client struct {
	path string
}

// NewClient creates a client for the socket at path.
func NewClient(path string) *Client {
	return &Client{path: path}
}

// Send delivers one request and waits for its response.
func (c *Client) Send(req command.Request) (command.Response, error) {
	conn, err := net.DialTimeout("unix", c.path, defaultTimeout)
	if err != nil {
		return command.Response{}, fmt.Errorf("daemon not reachable at %s: %w", c.path, err)
	}
	defer conn.Close()

	timeout := defaultTimeout
	if command.Blocking(req.Action) {
		timeout = chatTimeout
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return command.Response{}, err
	}

	wire, err := json.Marshal(req)
	if err != nil {
		return command.Response{}, fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(append(wire, '\n')); err != nil {
		return command.Response{}, fmt.Errorf("send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return command.Response{}, fmt.Errorf("read response: %w", err)
		}
		return command.Response{}, fmt.Errorf("daemon closed connection without responding")
	}

	var resp command.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return command.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
