package builder

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one open designer tab. All access to its Builder goes through
// Do, which serializes operations and refreshes the idle timer.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	mu sync.Mutex
	b  *Builder
}

// NewSession wraps a builder in a session with a fresh id.
func NewSession(b *Builder) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		LastActiveAt: now,
		b:            b,
	}
}

// Do runs fn with exclusive access to the session's builder.
func (s *Session) Do(fn func(b *Builder) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
	return fn(s.b)
}

func (s *Session) expired(now time.Time, maxAge, idle time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.CreatedAt) > maxAge || now.Sub(s.LastActiveAt) > idle
}

// Manager handles session creation, lookup and cleanup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration
}

// NewManager creates a session manager with the given timeouts.
func NewManager(maxAge, idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
	}
}

// Open registers a new session around b.
func (m *Manager) Open(b *Builder) *Session {
	s := NewSession(b)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get retrieves a session by id. Returns nil if not found or expired.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if s.expired(time.Now(), m.maxAge, m.idleTimeout) {
		m.Remove(id)
		return nil
	}
	return s
}

// Remove deletes a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup removes all expired and idle sessions and returns how many were
// removed.
func (m *Manager) Cleanup() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.expired(now, m.maxAge, m.idleTimeout) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
