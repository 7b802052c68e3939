package session

import "sync"

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewMemoryManager constructs the in-memory Manager used in production
// and tests. Sessions do not survive a restart; flows simply start over.
func NewMemoryManager() Manager {
	return &memoryManager{sessions: make(map[int64]*Session)}
}

func (m *memoryManager) Get(userID int64) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[userID]; ok {
		return *s
	}
	return Session{Flow: FlowNone}
}

func (m *memoryManager) Begin(userID int64, flow Flow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = &Session{Flow: flow}
}

func (m *memoryManager) Mutate(userID int64, fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = &Session{Flow: FlowNone}
		m.sessions[userID] = s
	}
	fn(s)
}

func (m *memoryManager) InFlow(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return ok && s.Flow != FlowNone
}

func (m *memoryManager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}
