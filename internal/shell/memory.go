package shell

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStorage is a process-local Storage backed by go-cache. Entries never
// expire; generations live until deleted.
type MemoryStorage struct {
	mu          sync.Mutex
	generations map[string]*memoryGeneration
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{generations: make(map[string]*memoryGeneration)}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen, ok := s.generations[name]; ok {
		return gen, nil
	}
	// A zero cleanup interval keeps go-cache from starting its janitor goroutine.
	gen := &memoryGeneration{name: name, entries: gocache.New(gocache.NoExpiration, 0)}
	s.generations[name] = gen
	return gen, nil
}

func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.generations))
	for name := range s.generations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	gen, ok := s.generations[name]
	delete(s.generations, name)
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	gen.deleted.Store(true)
	gen.entries.Flush()
	return true, nil
}

type memoryGeneration struct {
	name    string
	entries *gocache.Cache
	deleted atomic.Bool
}

func (g *memoryGeneration) Name() string { return g.name }

func (g *memoryGeneration) Match(_ context.Context, key string) (*Response, error) {
	if g.deleted.Load() {
		return nil, ErrNotFound
	}
	v, ok := g.entries.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*Response).Clone(), nil
}

func (g *memoryGeneration) Put(_ context.Context, key string, resp *Response) error {
	if g.deleted.Load() {
		return ErrGenerationDeleted
	}
	g.entries.Set(key, resp.Clone(), gocache.NoExpiration)
	return nil
}

func (g *memoryGeneration) Delete(_ context.Context, key string) (bool, error) {
	if _, ok := g.entries.Get(key); !ok {
		return false, nil
	}
	g.entries.Delete(key)
	return true, nil
}

func (g *memoryGeneration) Keys(_ context.Context) ([]string, error) {
	items := g.entries.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}
