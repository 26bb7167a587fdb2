// Package ws serves relay sessions over WebSocket using gorilla/websocket.
// Each connection gets a read loop that feeds its session and a write pump
// that drains a bounded outbound queue, so the relay core never blocks on a
// slow client.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ephemeral/relay/id"
	"github.com/ephemeral/relay/observability"
	"github.com/ephemeral/relay/protocol"
	"github.com/ephemeral/relay/session"
)

// Sentinel errors returned by the transport.
var (
	// ErrSendBufferFull is returned when a client's outbound queue is full.
	// The connection is closed.
	ErrSendBufferFull = errors.New("ws: send buffer full")

	// ErrConnClosed is returned when sending on a closed connection.
	ErrConnClosed = errors.New("ws: connection closed")

	// ErrServerClosed is returned by Shutdown when called twice.
	ErrServerClosed = errors.New("ws: server closed")
)

// Config holds socket limits and keepalive timing.
type Config struct {
	// SendBuffer is how many outbound frames may wait for one client.
	SendBuffer int

	// MaxMessageSize is the largest inbound frame in bytes.
	MaxMessageSize int64

	// WriteWait bounds each socket write.
	WriteWait time.Duration

	// PongWait is how long a client may stay silent before it is dropped.
	PongWait time.Duration

	// PingPeriod must be shorter than PongWait.
	PingPeriod time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:     4096,
		MaxMessageSize: 512 << 10,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
	}
}

// Server upgrades HTTP requests to relay sessions.
type Server struct {
	core     session.Core
	config   Config
	fallback http.Handler
	upgrader websocket.Upgrader
	decoder  *protocol.Decoder
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithConfig sets socket limits. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		def := DefaultConfig()
		if cfg.SendBuffer <= 0 {
			cfg.SendBuffer = def.SendBuffer
		}
		if cfg.MaxMessageSize <= 0 {
			cfg.MaxMessageSize = def.MaxMessageSize
		}
		if cfg.WriteWait <= 0 {
			cfg.WriteWait = def.WriteWait
		}
		if cfg.PongWait <= 0 {
			cfg.PongWait = def.PongWait
		}
		if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
			cfg.PingPeriod = cfg.PongWait * 9 / 10
		}
		s.config = cfg
	}
}

// WithFallback serves plain HTTP requests, those that are not WebSocket
// upgrades, with h.
func WithFallback(h http.Handler) Option {
	return func(s *Server) { s.fallback = h }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics passes instruments through to each session.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a WebSocket server bound to core.
func NewServer(core session.Core, opts ...Option) *Server {
	s := &Server{
		core:    core,
		config:  DefaultConfig(),
		logger:  slog.Default(),
		decoder: protocol.NewDecoder(nil),
		conns:   make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// Relays are public; browsers on any origin may connect.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		if s.fallback != nil {
			s.fallback.ServeHTTP(w, r)
			return
		}
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := newConn(id.NewConnID(), ws, s.config)
	if !s.track(c) {
		_ = ws.Close()
		return
	}
	defer s.untrack(c)

	ctx := context.WithoutCancel(r.Context())
	sess := session.New(ctx, c.id.String(), s.core, c,
		session.WithLogger(s.logger),
		session.WithDecoder(s.decoder),
		session.WithMetrics(s.metrics),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()

	s.readLoop(ctx, c, sess)
	if err := sess.Close(ctx); err != nil {
		s.logger.DebugContext(ctx, "close connection", "conn_id", c.id, "error", err)
	}
}

// readLoop feeds frames to the session, one at a time, until the socket fails.
func (s *Server) readLoop(ctx context.Context, c *conn, sess *session.Session) {
	c.ws.SetReadLimit(s.config.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.WarnContext(ctx, "received error on client socket", "conn_id", c.id, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(s.config.PongWait))

		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if err := sess.Handle(ctx, data); err != nil {
			s.logger.DebugContext(ctx, "dropping connection", "conn_id", c.id, "error", err)
			return
		}
	}
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Len returns the number of open connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown sends a going-away close frame to every client, closes the
// sockets and waits for their goroutines to exit or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.goingAway()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
