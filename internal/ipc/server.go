// Package ipc provides the local control channel between the daemon and
// its clients: a unix socket speaking newline-delimited JSON.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/command"
)

// maxLineBytes bounds a single request line. Chat messages are the largest
// legitimate payload and stay far below this.
const maxLineBytes = 64 * 1024

// Handler answers one request. Implementations must always return a
// response; a panic inside a handler only kills that connection.
type Handler func(ctx context.Context, req command.Request) command.Response

// SocketPath returns the control socket location: the user runtime dir
// when available, /tmp otherwise.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "focusmon.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("focusmon-%d.sock", os.Getuid()))
}

// Server accepts connections on the unix socket and feeds requests to the
// handler, one goroutine per connection.
type Server struct {
	path    string
	handler Handler
	logger  *zap.Logger

	listener net.Listener
}

// NewServer creates a server bound to path. Call Serve to start accepting.
func NewServer(path string, handler Handler, logger *zap.Logger) *Server {
	return &Server{path: path, handler: handler, logger: logger}
}

// Serve listens on the socket until ctx is canceled. A stale socket file
// from a dead daemon is removed before binding.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.removeStale(); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	s.listener = ln
	if err := os.Chmod(s.path, 0o600); err != nil {
		s.logger.Warn("failed to restrict socket permissions", zap.Error(err))
	}
	s.logger.Info("control socket listening", zap.String("path", s.path))

	go func() {
		<-ctx.Done()
		ln.Close()
		os.Remove(s.path)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", zap.Any("panic", r))
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		req, err := command.Parse(line)
		var resp command.Response
		switch {
		case err != nil:
			resp = command.Fail(err.Error())
		case !command.Known(req.Action):
			resp = command.Unknown()
		default:
			resp = s.handler(ctx, req)
		}

		if err := enc.Encode(resp); err != nil {
			s.logger.Debug("client went away mid-response", zap.Error(err))
			return
		}
	}
}

// removeStale unlinks an orphaned socket file. A socket that still accepts
// connections means another daemon is alive, which is an error.
func (s *Server) removeStale() error {
	if _, err := os.Stat(s.path); err != nil {
		return nil
	}
	conn, err := net.Dial("unix", s.path)
	if err == nil {
		conn.Close()
		return fmt.Errorf("daemon already running on %s", s.path)
	}
	s.logger.Info("removing stale control socket", zap.String("path", s.path))
	return os.Remove(s.path)
}
