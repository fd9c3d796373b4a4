package chat

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/andy6609/multiroom-chat-server/internal/config"
)

const msgServerFull = "Server is full, try again later.\n"

type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	reg      *Registry
	bc       *Broadcaster
	slots    *semaphore.Weighted
	listener net.Listener

	mu       sync.Mutex
	stopping bool
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
}

func NewServer(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Sanitize()
	reg := NewRegistry(cfg.Rooms, logger)
	return &Server{
		cfg:      cfg,
		logger:   logger,
		reg:      reg,
		bc:       NewBroadcaster(reg, logger),
		slots:    semaphore.NewWeighted(int64(cfg.MaxConnections)),
		sessions: make(map[*Session]struct{}),
	}
}

// Registry exposes room membership, mainly for inspection.
func (s *Server) Registry() *Registry { return s.reg }

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String(), "rooms", s.reg.Rooms(),
		"max_connections", s.cfg.MaxConnections)
	return nil
}

// Addr is the bound listen address; nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every live connection, then waits for the
// sessions to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down")

	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.mu.Lock()
	s.stopping = true
	for sess := range s.sessions {
		_ = sess.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("shutdown complete")
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out, some sessions may still be running")
		return ctx.Err()
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.slots.TryAcquire(1) {
			RejectedConnections.Inc()
			s.logger.Warn("connection rejected, server at capacity", "addr", conn.RemoteAddr().String())
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			_, _ = conn.Write([]byte(msgServerFull))
			_ = conn.Close()
			continue
		}

		sess := s.track(conn)
		if sess == nil {
			_ = conn.Close()
			s.slots.Release(1)
			return
		}

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String(), "session", sess.ID())
		go s.serve(sess)
	}
}

// track creates and records a session for conn, or returns nil once Stop
// has begun.
func (s *Server) track(conn net.Conn) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return nil
	}
	sess := NewSession(conn, s.reg, s.bc, s.cfg, s.logger)
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	ConnectedClients.Inc()
	return sess
}

func (s *Server) serve(sess *Session) {
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		ConnectedClients.Dec()
		s.slots.Release(1)
		s.wg.Done()
	}()
	sess.Run()
}
