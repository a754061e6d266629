// Package outs routes outgoing traffic to the adapter of each platform.
package outs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rubot/internal/domain"
)

// Adapter is what a connected platform exposes to the bot.
type Adapter interface {
	SendMessage(ctx context.Context, target, text string) error
	Join(ctx context.Context, room string) error
	Part(ctx context.Context, room string) error
	Close(ctx context.Context, reason string) error
}

// MultiTransport implements domain.Transport over a set of adapters keyed by
// platform.
type MultiTransport struct {
	mu       sync.RWMutex
	adapters map[domain.Platform]Adapter
	order    []domain.Platform
	onQuit   func(reason string)
}

func NewMultiTransport() *MultiTransport {
	return &MultiTransport{
		adapters: make(map[domain.Platform]Adapter),
	}
}

// Register binds platform to adapter, replacing any previous one.
func (m *MultiTransport) Register(platform domain.Platform, adapter Adapter) {
	if m == nil || adapter == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.adapters[platform]; !ok {
		m.order = append(m.order, platform)
	}
	m.adapters[platform] = adapter
}

func (m *MultiTransport) Unregister(platform domain.Platform) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.adapters, platform)
	for i, p := range m.order {
		if p == platform {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
}

// OnQuit sets the function run after Quit has closed every adapter.
func (m *MultiTransport) OnQuit(fn func(reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onQuit = fn
}

func (m *MultiTransport) Platforms() []domain.Platform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Platform(nil), m.order...)
}

func (m *MultiTransport) adapter(platform domain.Platform) (Adapter, error) {
	if m == nil {
		return nil, errors.New("outs: no transport configured")
	}
	m.mu.RLock()
	a, ok := m.adapters[platform]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("outs: no adapter registered for platform %s", platform)
	}
	return a, nil
}

func (m *MultiTransport) SendMessage(ctx context.Context, platform domain.Platform, target, text string) error {
	a, err := m.adapter(platform)
	if err != nil {
		return err
	}
	return a.SendMessage(ctx, target, text)
}

func (m *MultiTransport) Join(ctx context.Context, platform domain.Platform, room string) error {
	a, err := m.adapter(platform)
	if err != nil {
		return err
	}
	return a.Join(ctx, room)
}

func (m *MultiTransport) Part(ctx context.Context, platform domain.Platform, room string) error {
	a, err := m.adapter(platform)
	if err != nil {
		return err
	}
	return a.Part(ctx, room)
}

// Quit disconnects from every platform, then runs the OnQuit hook.
func (m *MultiTransport) Quit(ctx context.Context, reason string) error {
	m.mu.RLock()
	adapters := make([]Adapter, 0, len(m.order))
	for _, p := range m.order {
		adapters = append(adapters, m.adapters[p])
	}
	onQuit := m.onQuit
	m.mu.RUnlock()

	var errs []error
	for _, a := range adapters {
		if err := a.Close(ctx, reason); err != nil {
			errs = append(errs, err)
		}
	}
	if onQuit != nil {
		onQuit(reason)
	}
	return errors.Join(errs...)
}
