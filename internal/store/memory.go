package store

import (
	"context"
	"sync"

	"github.com/matthewbaird/formdesigner/internal/schema"
)

// MemoryStore keeps forms in process memory in insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	forms []StoredForm
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) List(_ context.Context) ([]StoredForm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StoredForm, len(m.forms))
	for i, f := range m.forms {
		out[i] = clone(f)
	}
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (StoredForm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.index(id); i >= 0 {
		return clone(m.forms[i]), nil
	}
	return StoredForm{}, ErrNotFound
}

func (m *MemoryStore) Insert(_ context.Context, f StoredForm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forms = append(m.forms, clone(f))
	return nil
}

func (m *MemoryStore) Update(_ context.Context, f StoredForm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(f.ID)
	if i < 0 {
		return ErrNotFound
	}
	m.forms[i] = clone(f)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(id)
	if i < 0 {
		return false, nil
	}
	m.forms = append(m.forms[:i], m.forms[i+1:]...)
	return true, nil
}

func (m *MemoryStore) index(id string) int {
	for i, f := range m.forms {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func clone(f StoredForm) StoredForm {
	f.Fields = schema.CloneEntries(f.Fields)
	if f.ContextInputs != nil {
		f.ContextInputs = append(f.ContextInputs[:0:0], f.ContextInputs...)
	}
	return f
}
