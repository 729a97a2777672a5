package jobs

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory job directory for development and tests.
type MemoryDirectory struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewMemoryDirectory creates a new in-memory job directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{jobs: make(map[string]*Job)}
}

// Put stores or replaces a job.
func (m *MemoryDirectory) Put(j *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
}

func (m *MemoryDirectory) Get(ctx context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

// Compile-time assertion that MemoryDirectory implements Directory.
var _ Directory = (*MemoryDirectory)(nil)
