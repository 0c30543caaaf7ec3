package mcp

import (
	"sync"
	"time"

	"github.com/customeros/mailstack/internal/eventbus"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/utils"
)

const replayBufferSize = 256

// Session is one live MCP client's soft state: its id (handed back as
// Mcp-Session-Id / _meta.sessionId per §4.9), the current-account
// selection set_current_account writes, and a bounded ring buffer of
// recently delivered events so a reconnect with Last-Event-ID can replay
// anything still in the window (§4.9, §8 property 8).
type Session struct {
	models.MCPSession
	CurrentAccount string

	mu     sync.Mutex
	ring   []eventbus.Event
	ringAt int
}

func newSession() *Session {
	now := utils.Now()
	return &Session{
		MCPSession: models.MCPSession{
			ID:             utils.GenerateNanoIDWithPrefix("mcps", 16),
			CreatedAt:      now,
			LastActivityAt: now,
		},
		ring: make([]eventbus.Event, 0, replayBufferSize),
	}
}

// record appends an event to the replay ring, evicting the oldest once
// full.
func (s *Session) record(ev eventbus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ring) < replayBufferSize {
		s.ring = append(s.ring, ev)
		return
	}
	s.ring[s.ringAt] = ev
	s.ringAt = (s.ringAt + 1) % replayBufferSize
}

// replaySince returns every buffered event with id > lastID, oldest
// first, or nil if lastID is outside the buffer's window entirely.
func (s *Session) replaySince(lastID uint64) []eventbus.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ordered := make([]eventbus.Event, 0, len(s.ring))
	if len(s.ring) < replayBufferSize {
		ordered = append(ordered, s.ring...)
	} else {
		ordered = append(ordered, s.ring[s.ringAt:]...)
		ordered = append(ordered, s.ring[:s.ringAt]...)
	}
	out := make([]eventbus.Event, 0, len(ordered))
	for _, ev := range ordered {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (s *Session) touch() {
	s.mu.Lock()
	s.LastActivityAt = utils.Now()
	s.mu.Unlock()
}

// SessionManager tracks every live MCP session (stdio has none; HTTP/SSE
// clients get one each on first request) and reaps idle ones.
type SessionManager struct {
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(idleTimeout time.Duration) *SessionManager {
	return &SessionManager{idleTimeout: idleTimeout, sessions: make(map[string]*Session)}
}

func (m *SessionManager) Create() *Session {
	s := newSession()
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// ReapIdle prunes every session that has missed its idle timeout and
// returns their ids, so the caller can also Unsubscribe them from the
// event bus. Run periodically from a background goroutine (§4.9).
func (m *SessionManager) ReapIdle() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := utils.Now()
	var expired []string
	for id, s := range m.sessions {
		if s.IsExpired(m.idleTimeout, now) {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	return expired
}

// RunReaper blocks, pruning idle sessions every interval until stop fires.
func (m *SessionManager) RunReaper(interval time.Duration, stop <-chan struct{}, onExpire func(id string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, id := range m.ReapIdle() {
				if onExpire != nil {
					onExpire(id)
				}
			}
		}
	}
}
