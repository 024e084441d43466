package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/pkg/models"
)

// ErrDecode marks a request or response that is not a valid JSON message.
var ErrDecode = errors.New("invalid JSON")

const (
	DefaultReadTimeout = 5 * time.Second
	writeTimeout       = 5 * time.Second
)

// Server answers one JSON command per connection on a unix socket.
type Server struct {
	path        string
	router      *Router
	readTimeout time.Duration
	logger      *zap.Logger

	conns sync.WaitGroup
}

func NewServer(path string, router *Router, readTimeout time.Duration, logger *zap.Logger) *Server {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Server{
		path:        path,
		router:      router,
		readTimeout: readTimeout,
		logger:      logger,
	}
}

// Serve listens until ctx is done, then waits for in-flight connections.
// The socket is created with mode 0600 and removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	defer os.Remove(s.path)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("✓ control socket listening", zap.String("path", s.path))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.conns.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			ln.Close()
			s.conns.Wait()
			return fmt.Errorf("accept: %w", err)
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	var resp models.Response
	var cmd models.Command
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		s.logger.Warn("bad control request", zap.Error(fmt.Errorf("%w: %v", ErrDecode, err)))
		resp = models.Fail("Invalid JSON: " + err.Error())
	} else {
		resp = s.router.Handle(cmd)
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Debug("failed to write control response", zap.Error(err))
	}
}
