package plugins

import (
	"context"
	"errors"
	"sort"
	"sync"

	"rubot/internal/domain"
)

var errNoStore = errors.New("plugins: no store configured")

// Store is the slice of the plugin store that belongs to one plugin.
type Store struct {
	plugin  string
	backend domain.PluginStore
}

func NewStore(plugin string, backend domain.PluginStore) *Store {
	return &Store{plugin: plugin, backend: backend}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.backend == nil {
		return "", false, errNoStore
	}
	return s.backend.Get(ctx, s.plugin, key)
}

func (s *Store) Put(ctx context.Context, key, value string) error {
	if s == nil || s.backend == nil {
		return errNoStore
	}
	return s.backend.Put(ctx, s.plugin, key, value)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.backend == nil {
		return errNoStore
	}
	return s.backend.Delete(ctx, s.plugin, key)
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if s == nil || s.backend == nil {
		return nil, errNoStore
	}
	return s.backend.Keys(ctx, s.plugin)
}

// MemoryStore is a process-local domain.PluginStore.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, plugin, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[plugin][key]
	return v, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, plugin, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[plugin] == nil {
		m.data[plugin] = make(map[string]string)
	}
	m.data[plugin][key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, plugin, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[plugin], key)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, plugin string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data[plugin]))
	for k := range m.data[plugin] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
