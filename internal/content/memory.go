package content

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and single-process
// deployments without persistence requirements.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
	meta map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*Document),
		meta: make(map[string]map[string]string),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	tmp := *doc
	return &tmp, nil
}

func (m *MemoryStore) Create(_ context.Context, doc *Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tmp := *doc
	if tmp.ID == "" {
		tmp.ID = uuid.NewString()
	}
	m.docs[tmp.ID] = &tmp
	return tmp.ID, nil
}

func (m *MemoryStore) Update(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; !ok {
		return ErrNotFound
	}
	tmp := *doc
	m.docs[doc.ID] = &tmp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	delete(m.meta, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]*Document, 0, len(m.docs))
	for _, doc := range m.docs {
		tmp := *doc
		ret = append(ret, &tmp)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}

func (m *MemoryStore) GetMeta(_ context.Context, id, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta[id][key], nil
}

func (m *MemoryStore) SetMeta(_ context.Context, id, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta[id] == nil {
		m.meta[id] = make(map[string]string)
	}
	m.meta[id][key] = value
	return nil
}

func (m *MemoryStore) ListIDsByMeta(_ context.Context, key, value string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]string, 0)
	for id, kv := range m.meta {
		if kv[key] == value {
			ret = append(ret, id)
		}
	}
	return ret, nil
}
