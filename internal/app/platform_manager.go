// Package app holds the process-level pieces that sit between the chat
// adapters and the command machinery.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"rubot/internal/domain"
	"rubot/internal/interface/outs"
	"rubot/internal/logger"
)

// Runnable is an adapter with its own connection loop. Start blocks until
// its context is cancelled or the connection fails.
type Runnable interface {
	outs.Adapter
	Start(ctx context.Context) error
}

// PlatformManager starts adapters, registers them as outgoing transports and
// stops them again.
type PlatformManager struct {
	ctx      context.Context
	multiOut *outs.MultiTransport
	log      *log.Logger

	mu      sync.Mutex
	running map[domain.Platform]*platformRuntime
}

type platformRuntime struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPlatformManager(ctx context.Context, multiOut *outs.MultiTransport) *PlatformManager {
	if ctx == nil {
		ctx = context.Background()
	}
	return &PlatformManager{
		ctx:      ctx,
		multiOut: multiOut,
		log:      logger.With("platforms"),
		running:  make(map[domain.Platform]*platformRuntime),
	}
}

// Start runs adapter for platform, replacing whatever ran there before. The
// adapter leaves the transport when its loop ends.
func (m *PlatformManager) Start(platform domain.Platform, adapter Runnable) {
	m.Stop(platform)

	ctx, cancel := context.WithCancel(m.ctx)
	rt := &platformRuntime{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.running[platform] = rt
	m.mu.Unlock()

	m.multiOut.Register(platform, adapter)
	m.log.Info("starting", "platform", platform)

	go func() {
		defer close(rt.done)
		err := adapter.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.log.Error("adapter stopped", "platform", platform, "err", err)
		}

		m.mu.Lock()
		current := m.running[platform] == rt
		if current {
			delete(m.running, platform)
		}
		m.mu.Unlock()
		if current {
			m.multiOut.Unregister(platform)
		}
	}()
}

// Stop cancels the adapter of platform and waits for its loop to end.
func (m *PlatformManager) Stop(platform domain.Platform) {
	m.mu.Lock()
	rt := m.running[platform]
	delete(m.running, platform)
	m.mu.Unlock()
	if rt == nil {
		return
	}

	m.multiOut.Unregister(platform)
	rt.cancel()
	<-rt.done
	m.log.Info("stopped", "platform", platform)
}

func (m *PlatformManager) StopAll() {
	for _, p := range m.Running() {
		m.Stop(p)
	}
}

func (m *PlatformManager) Running() []domain.Platform {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Platform, 0, len(m.running))
	for p := range m.running {
		out = append(out, p)
	}
	return out
}
