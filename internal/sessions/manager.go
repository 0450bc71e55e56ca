package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Manager owns all session state and serializes turns per session id.
type Manager struct {
	mu       sync.Mutex
	path     string
	sessions map[string]*State
	locks    sync.Map // session id -> *sync.Mutex
}

// NewManager loads existing sessions from path (empty = in-memory only).
// A corrupt file is treated as empty rather than fatal.
func NewManager(path string) *Manager {
	m := &Manager{path: path, sessions: make(map[string]*State)}
	m.load()
	return m
}

// LockSession acquires the per-session turn lock. The returned function
// releases it. No concurrent turns for the same session id.
func (m *Manager) LockSession(key string) func() {
	lock, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GetOrCreate returns the session for key, creating it if needed.
func (m *Manager) GetOrCreate(key string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		s = NewState(key)
		m.sessions[key] = s
	}
	return s
}

// Keys returns all session ids sorted.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Remove drops a session. Returns whether it existed.
func (m *Manager) Remove(key string) (bool, error) {
	m.mu.Lock()
	_, existed := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if !existed {
		return false, nil
	}
	return true, m.Save()
}

// Save writes all sessions atomically (write-then-rename).
func (m *Manager) Save() error {
	if m.path == "" {
		return nil
	}
	// Snapshots, not live pointers: another session's turn may be
	// appending while this one persists.
	m.mu.Lock()
	payload := struct {
		Sessions []*State `json:"sessions"`
	}{Sessions: make([]*State, 0, len(m.sessions))}
	for _, key := range m.keysLocked() {
		payload.Sessions = append(payload.Sessions, m.sessions[key].snapshot())
	}
	m.mu.Unlock()
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}
	return os.Rename(tmp, m.path)
}

func (m *Manager) keysLocked() []string {
	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Manager) load() {
	if m.path == "" {
		return
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return
	}
	var payload struct {
		Sessions []*State `json:"sessions"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	for _, s := range payload.Sessions {
		if s == nil {
			continue
		}
		s.normalize()
		m.sessions[s.Key] = s
	}
}

// Export returns one session as pretty JSON.
func (m *Manager) Export(key string) ([]byte, error) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", key)
	}
	return json.MarshalIndent(s.snapshot(), "", "  ")
}

// Import reads a session from JSON, replacing any existing state for its
// key, and persists.
func (m *Manager) Import(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.normalize()
	m.mu.Lock()
	m.sessions[s.Key] = &s
	m.mu.Unlock()
	return &s, m.Save()
}
