// ABOUTME: In-memory session manager enforcing one live session per agent.
// ABOUTME: Dual-indexed by session ID and agent ID with a staleness sweep.

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultStaleAfter is the inactivity threshold after which Sweep removes a
// session.
const DefaultStaleAfter = time.Hour

// Session tracks one agent's active conversation with the coordinator.
type Session struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Manager owns all live sessions. Every method runs under one mutex so
// racing registrations resolve to a clean last-write-wins replacement.
type Manager struct {
	mu      sync.Mutex
	byID    map[string]*Session
	byAgent map[string]*Session
	now     func() time.Time // test seam
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		byID:    make(map[string]*Session),
		byAgent: make(map[string]*Session),
		now:     time.Now,
	}
}

// Create makes a new session for the agent, destroying any prior session the
// agent held. When sessionID is empty a fresh ID is minted.
func (m *Manager) Create(agentID, sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byAgent[agentID]; ok {
		delete(m.byID, prev.ID)
		delete(m.byAgent, agentID)
	}

	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	now := m.now()
	sess := &Session{
		ID:           sessionID,
		AgentID:      agentID,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.byID[sess.ID] = sess
	m.byAgent[agentID] = sess
	return cloned(sess)
}

// Get returns the session with the given ID.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byID[sessionID]
	if !ok {
		return nil, false
	}
	return cloned(sess), true
}

// GetForAgent returns the agent's live session.
func (m *Manager) GetForAgent(agentID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byAgent[agentID]
	if !ok {
		return nil, false
	}
	return cloned(sess), true
}

// Touch updates the session's last-activity time. Missing sessions are a
// no-op; staleness accounting is best-effort.
func (m *Manager) Touch(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.byID[sessionID]; ok {
		sess.LastActivity = m.now()
	}
}

// Remove deletes the session with the given ID from both indices.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.byID[sessionID]; ok {
		delete(m.byID, sess.ID)
		delete(m.byAgent, sess.AgentID)
	}
}

// RemoveForAgent deletes the agent's session from both indices.
func (m *Manager) RemoveForAgent(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.byAgent[agentID]; ok {
		delete(m.byID, sess.ID)
		delete(m.byAgent, agentID)
	}
}

// Sweep removes every session idle longer than maxIdle and returns how many
// were removed. Callers invoke it opportunistically.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		maxIdle = DefaultStaleAfter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxIdle)
	removed := 0
	for id, sess := range m.byID {
		if sess.LastActivity.Before(cutoff) {
			delete(m.byID, id)
			delete(m.byAgent, sess.AgentID)
			removed++
		}
	}
	return removed
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func cloned(s *Session) *Session {
	cp := *s
	return &cp
}
