package rendezvous

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/aditya/vertview/pkg/monitoring"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultReadTimeout bounds how long a silent secondary can hold a connection.
	DefaultReadTimeout = 500 * time.Millisecond
	// DefaultMaxPayload caps a single handoff message.
	DefaultMaxPayload = 1 << 20

	probeTimeout = 200 * time.Millisecond
)

// ErrPrimaryRunning is returned by TryBecomePrimary when a live primary holds the endpoint.
var ErrPrimaryRunning = errors.New("primary instance already running")

// Handler receives the paths of one accepted handoff. It runs on the connection's goroutine.
type Handler func(paths []string)

// Config holds configuration for the Server.
type Config struct {
	Logger      *logrus.Logger
	Metrics     *monitoring.Metrics
	ReadTimeout time.Duration
	MaxPayload  int
}

// Server is the primary side of the rendezvous.
type Server struct {
	path     string
	listener net.Listener
	lease    *lease
	cfg      Config
	logger   *logrus.Logger

	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// TryBecomePrimary claims the endpoint socket at socketPath. A socket left behind by a
// dead primary is removed and rebound. ErrPrimaryRunning means another process owns it.
func TryBecomePrimary(socketPath string, cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating endpoint dir: %w", err)
	}

	if Alive(socketPath) {
		return nil, ErrPrimaryRunning
	}

	l, err := acquireLease(socketPath + ".lock")
	if err != nil {
		return nil, err
	}

	if err := os.Remove(socketPath); err == nil {
		cfg.Logger.WithField("socket", socketPath).Info("Removed stale endpoint from a previous instance")
	} else if !errors.Is(err, os.ErrNotExist) {
		l.release()
		return nil, fmt.Errorf("removing stale endpoint: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		l.release()
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, ErrPrimaryRunning
		}
		return nil, fmt.Errorf("binding endpoint: %w", err)
	}

	cfg.Logger.Infof("🔗 Primary instance listening on %s", socketPath)

	return &Server{
		path:     socketPath,
		listener: ln,
		lease:    l,
		cfg:      cfg,
		logger:   cfg.Logger,
	}, nil
}

// Path returns the socket path the server is bound to.
func (s *Server) Path() string {
	return s.path
}

// Serve accepts handoffs until ctx is cancelled or the server is closed. Each connection
// is read on its own goroutine so a slow secondary never blocks the next one.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			s.logger.WithError(err).Warn("Failed to accept handoff connection")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn, handler)
		}()
	}
}

// Close stops accepting, removes the socket and releases the lease. It is safe to call
// more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		err := s.listener.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
		if leaseErr := s.lease.release(); leaseErr != nil && err == nil {
			err = leaseErr
		}
		s.closeErr = err
	})
	return s.closeErr
}

func (s *Server) handleConnection(conn net.Conn, handler Handler) {
	defer conn.Close()

	log := s.logger.WithField("handoff", uuid.NewString())

	data, err := s.readPayload(conn)
	if err != nil {
		log.WithError(err).Debug("Discarding handoff")
		s.discarded()
		return
	}
	// Liveness checks connect and hang up without sending anything.
	if len(bytes.TrimSpace(data)) == 0 {
		log.Debug("Connection closed without a request")
		return
	}

	paths, err := DecodePaths(data)
	if err != nil || len(paths) == 0 {
		log.WithError(err).Debug("Discarding malformed or empty handoff")
		s.discarded()
		return
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncrementHandoffsReceived()
	}
	log.WithField("count", len(paths)).Info("📨 Open request received")
	if handler != nil {
		handler(paths)
	}
}

// readPayload reads until the peer closes or goes quiet for ReadTimeout. Whatever
// arrived before a timeout is still returned.
func (s *Server) readPayload(conn net.Conn) ([]byte, error) {
	var (
		data []byte
		buf  = make([]byte, 4096)
	)
	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, err := conn.Read(buf)
		data = append(data, buf[:n]...)
		if len(data) > s.cfg.MaxPayload {
			return nil, fmt.Errorf("payload exceeds %d bytes", s.cfg.MaxPayload)
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		if errors.Is(err, io.EOF) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return data, nil
		}
		return nil, err
	}
}

func (s *Server) discarded() {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncrementHandoffsDiscarded()
	}
}

// Alive reports whether a process is accepting connections on socketPath.
func Alive(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
