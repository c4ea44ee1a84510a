// Package session glues one WebSocket connection to the broadcast hub and
// the command dispatcher, holding the per-connection identity state.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callwatch/callwatch/internal/broadcast"
	"github.com/callwatch/callwatch/internal/directory"
)

// transport is the connection surface a session drives. *websocket.Conn
// satisfies it; tests substitute an in-memory implementation.
type transport interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// Session is one live connection. Its lifecycle is OPEN (subscription
// registered, filter denies everything) -> SUBSCRIBED (agent bound) ->
// CLOSED (subscription deregistered exactly once, terminal).
type Session struct {
	id     string
	conn   transport
	d      *Dispatcher
	logger *slog.Logger

	writeMu sync.Mutex // serializes frames onto the connection

	mu           sync.Mutex
	agentID      string
	user         *directory.Identity
	subscription string

	closeOnce sync.Once
}

// New creates a session for an open connection and registers its filtered
// subscription with the hub. The filter reads live session state, so a later
// re-subscribe takes effect without re-registering.
func New(conn transport, d *Dispatcher) *Session {
	s := &Session{
		id:   uuid.New().String(),
		conn: conn,
		d:    d,
	}
	s.logger = d.logger.With("session", s.id)

	s.subscription = d.deps.Hub.Subscribe(
		func(e broadcast.Event) bool { return d.deps.Authz.CanView(s, e) },
		func(e broadcast.Event) error { return s.send(e) },
	)

	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Run reads frames until the connection drops, dispatching each in order.
// It closes the session before returning.
func (s *Session) Run() {
	defer s.Close()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("read error", "error", err)
			return
		}
		s.d.Dispatch(s, raw)
	}
}

// Close deregisters the subscription and tears down the connection. It is
// idempotent; the hub tolerates a subscriber disappearing mid-publish.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.d.deps.Hub.Unsubscribe(s.subscription)
		_ = s.conn.Close()
		s.logger.Debug("unsubscribed listener", "agent", s.AgentID())
	})
}

// AgentID returns the currently bound agent identifier, or "".
func (s *Session) AgentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentID
}

// Identity resolves and caches the subscriber's identity for the current
// agent binding. A failed resolution is retried on the next call; rebinding
// the agent clears the cache.
func (s *Session) Identity() *directory.Identity {
	s.mu.Lock()
	agent := s.agentID
	user := s.user
	s.mu.Unlock()

	if agent == "" {
		return nil
	}
	if user != nil {
		return user
	}

	resolved, err := s.d.deps.Directory.Resolve(context.Background(), agent)
	if err != nil {
		s.logger.Warn("identity resolution failed", "agent", agent, "error", err)
		return nil
	}
	if resolved == nil {
		return nil
	}

	s.mu.Lock()
	// Only cache if the binding did not change underneath us.
	if s.agentID == agent {
		s.user = resolved
	}
	s.mu.Unlock()
	return resolved
}

// bind sets the agent binding and invalidates the cached identity.
func (s *Session) bind(agent string) {
	s.mu.Lock()
	s.agentID = agent
	s.user = nil
	s.mu.Unlock()
}

// writeTimeout caps how long one frame may sit on a wedged peer before the
// write fails and that delivery is counted as lost.
const writeTimeout = 10 * time.Second

func (s *Session) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if c, ok := s.conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	return s.conn.WriteJSON(v)
}
