package plugins

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Source resolves a plugin name to its kind. Resolve returns an error
// wrapping ErrPluginNotFound when the name is unknown.
type Source interface {
	Resolve(name string) (Kind, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(name string) (Kind, error)

func (f SourceFunc) Resolve(name string) (Kind, error) { return f(name) }

// NormalizeName turns a source identifier such as "plugins/Weather.lua" into
// the name a plugin is tracked under ("weather").
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = filepath.Base(filepath.ToSlash(name))
	if ext := filepath.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return strings.ToLower(name)
}

// StaticSource is the catalog of kinds compiled into the binary.
type StaticSource struct {
	mu    sync.RWMutex
	kinds map[string]Kind
	order []string
}

func NewStaticSource(kinds ...Kind) *StaticSource {
	s := &StaticSource{kinds: make(map[string]Kind)}
	for _, k := range kinds {
		_ = s.Add(k)
	}
	return s
}

// Add makes kind resolvable under the normalized form of its name.
func (s *StaticSource) Add(kind Kind) error {
	if kind == nil {
		return fmt.Errorf("%w: nil kind", ErrInvalidKind)
	}
	key := NormalizeName(kind.Info().Name)
	if key == "" {
		return fmt.Errorf("%w: kind without a name", ErrInvalidKind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kinds[key]; !ok {
		s.order = append(s.order, key)
	}
	s.kinds[key] = kind
	return nil
}

func (s *StaticSource) Resolve(name string) (Kind, error) {
	key := NormalizeName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	kind, ok := s.kinds[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return kind, nil
}

// Names lists the resolvable names in the order they were added.
func (s *StaticSource) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// MultiSource asks each source in turn and returns the first kind found.
type MultiSource []Source

func (m MultiSource) Resolve(name string) (Kind, error) {
	for _, src := range m {
		if src == nil {
			continue
		}
		kind, err := src.Resolve(name)
		if err == nil {
			return kind, nil
		}
		if !errors.Is(err, ErrPluginNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
}
