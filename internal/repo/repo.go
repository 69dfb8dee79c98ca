package repo

import (
	"context"
	"sync"

	"taskqueue/internal/domain"
)

// Store loads and saves the whole collection. The engine reloads before each
// mutating call and writes the full collection back afterwards.
type Store interface {
	Load(ctx context.Context) (*domain.Collection, error)
	Save(ctx context.Context, c *domain.Collection) error
}

// Memory is an in-process Store, used by tests and by callers that do not need durability.
type Memory struct {
	mu    sync.Mutex
	c     *domain.Collection
	saves int

	LoadErr error
	SaveErr error
}

func NewMemory(seed *domain.Collection) *Memory {
	if seed == nil {
		seed = &domain.Collection{Projects: []domain.Project{}}
	}
	return &Memory{c: seed.Clone()}
}

func (m *Memory) Load(ctx context.Context) (*domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.c.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, c *domain.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.c = c.Clone()
	m.saves++
	return nil
}

// Saves reports how many successful writes the store has seen.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// normalize fills defaults a hand-edited or older store file may leave out.
func normalize(c *domain.Collection) {
	if c.Projects == nil {
		c.Projects = []domain.Project{}
	}
	for i := range c.Projects {
		p := &c.Projects[i]
		if p.Tasks == nil {
			p.Tasks = []domain.Task{}
		}
		for j := range p.Tasks {
			if p.Tasks[j].Status == "" {
				p.Tasks[j].Status = domain.StatusNotStarted
			}
		}
	}
}
