package artifact

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps artifacts in process memory.
type MemoryStore struct {
	notifier

	// IndexErr, when set, is returned by every Index call.
	IndexErr error

	mu      sync.Mutex
	nextID  int64
	byPath  map[string][]*Artifact
	indexed map[int64]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byPath: make(map[string][]*Artifact), indexed: make(map[int64]bool)}
}

func (m *MemoryStore) Existing(_ context.Context, path, category string) ([]Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Artifact
	for _, a := range m.byPath[path] {
		if a.Category == category {
			out = append(out, cloneArtifact(a))
		}
	}
	return out, nil
}

func (m *MemoryStore) New(_ context.Context, path, category string) (*Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a := &Artifact{ID: m.nextID, Path: path, Category: category}
	m.byPath[path] = append(m.byPath[path], a)
	return a, nil
}

func (m *MemoryStore) AddAttribute(_ context.Context, a *Artifact, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.find(a)
	if stored == nil {
		return fmt.Errorf("artifact %d not found", a.ID)
	}
	stored.Attributes = append(stored.Attributes, Attribute{Name: name, Value: value})
	if stored != a {
		a.Attributes = append(a.Attributes, Attribute{Name: name, Value: value})
	}
	return nil
}

func (m *MemoryStore) Index(_ context.Context, a *Artifact) error {
	if m.IndexErr != nil {
		return m.IndexErr
	}
	m.mu.Lock()
	m.indexed[a.ID] = true
	m.mu.Unlock()
	return nil
}

// Indexed reports whether Index succeeded for the artifact id.
func (m *MemoryStore) Indexed(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexed[id]
}

// Count returns the number of artifacts stored for path.
func (m *MemoryStore) Count(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byPath[path])
}

func (m *MemoryStore) find(a *Artifact) *Artifact {
	for _, s := range m.byPath[a.Path] {
		if s.ID == a.ID {
			return s
		}
	}
	return nil
}

func cloneArtifact(a *Artifact) Artifact {
	c := *a
	c.Attributes = append([]Attribute(nil), a.Attributes...)
	return c
}
