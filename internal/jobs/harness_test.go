package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cel-labs/cel-translate/internal/content"
)

// memJobStore is an in-memory Store honoring the optimistic-concurrency
// contract, so the queue and processor tests exercise the same CAS paths
// the SQLite store does.
type memJobStore struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*Job)}
}

func (m *memJobStore) CreateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
	m.order = append(m.order, job.ID)
	return nil
}

func (m *memJobStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (m *memJobStore) ListJobs(_ context.Context) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*Job, 0, len(m.jobs))
	for _, id := range m.order {
		if job, ok := m.jobs[id]; ok {
			ret = append(ret, cloneJob(job))
		}
	}
	return ret, nil
}

func (m *memJobStore) UpdateJob(_ context.Context, job *Job, expectedUpdatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if !stored.UpdatedAt.Equal(expectedUpdatedAt) {
		return ErrStaleJob
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memJobStore) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

// scriptedTranslator returns prefix+text per call, consuming one entry of
// errs first (a nil entry means success). The hook, when set, runs while
// the upstream call is "in flight", before the result is returned.
type scriptedTranslator struct {
	mu     sync.Mutex
	prefix string
	errs   []error
	hook   func()

	calls int
	texts []string
}

func (s *scriptedTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.texts = append(s.texts, text)
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return "", err
	}
	return s.prefix + text, nil
}

func (s *scriptedTranslator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestQueue(cfg Config, tr Translator, opts ...Option) (*Queue, *memJobStore, *content.MemoryStore) {
	store := newMemJobStore()
	docs := content.NewMemoryStore()
	proc := NewProcessor(tr, store, docs, ProcessorConfig{})
	return NewQueue(cfg, store, docs, proc, opts...), store, docs
}

func seedDoc(t *testing.T, docs *content.MemoryStore, doc *content.Document) string {
	t.Helper()
	id, err := docs.Create(context.Background(), doc)
	require.NoError(t, err)
	return id
}
