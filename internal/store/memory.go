package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/neoKode1/directorchair-core/internal/catalog"
)

// MemoryStore keeps session state in process. Default for the CLI and
// tests; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	prefs     map[string]map[catalog.Category]Preference
	directors map[string]string
	audits    map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prefs:     make(map[string]map[catalog.Category]Preference),
		directors: make(map[string]string),
		audits:    make(map[string][]byte),
	}
}

func (m *MemoryStore) GetPreferences(ctx context.Context, sessionID string) (map[catalog.Category]Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[catalog.Category]Preference, len(m.prefs[sessionID]))
	for cat, p := range m.prefs[sessionID] {
		out[cat] = p
	}
	return out, nil
}

func (m *MemoryStore) SetPreference(ctx context.Context, sessionID string, cat catalog.Category, pref Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.prefs[sessionID] == nil {
		m.prefs[sessionID] = make(map[catalog.Category]Preference)
	}
	m.prefs[sessionID][cat] = pref
	return nil
}

func (m *MemoryStore) GetActiveDirector(ctx context.Context, sessionID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.directors[sessionID], nil
}

func (m *MemoryStore) SetActiveDirector(ctx context.Context, sessionID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directors[sessionID] = name
	return nil
}

func (m *MemoryStore) PutWorkflowAudit(ctx context.Context, sessionID, workflowID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits[sessionID+"/"+workflowID] = raw
	return nil
}

func (m *MemoryStore) GetWorkflowAudit(ctx context.Context, sessionID, workflowID string, out interface{}) error {
	m.mu.RLock()
	raw, ok := m.audits[sessionID+"/"+workflowID]
	m.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}
