// Package plugintest runs plugins against a real router and manager with a
// recording transport.
package plugintest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rubot/internal/domain"
	"rubot/internal/logger"
	"rubot/internal/usecase/commands"
	"rubot/internal/usecase/plugins"
)

const (
	Owner = "boss"
	Room  = "#lobby"
)

type Sent struct {
	Platform domain.Platform
	Target   string
	Text     string
}

// Transport records every outgoing line.
type Transport struct {
	mu     sync.Mutex
	sent   []Sent
	joined []string
	parted []string
	quits  []string
}

func (t *Transport) SendMessage(_ context.Context, platform domain.Platform, target, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, Sent{Platform: platform, Target: target, Text: text})
	return nil
}

func (t *Transport) Join(_ context.Context, _ domain.Platform, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.joined = append(t.joined, room)
	return nil
}

func (t *Transport) Part(_ context.Context, _ domain.Platform, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parted = append(t.parted, room)
	return nil
}

func (t *Transport) Quit(_ context.Context, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quits = append(t.quits, reason)
	return nil
}

func (t *Transport) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.sent...)
}

func (t *Transport) Texts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sent))
	for _, s := range t.sent {
		out = append(out, s.Text)
	}
	return out
}

func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}

// Harness is a started manager with a set of built-in plugins available.
type Harness struct {
	Router    *commands.Router
	Manager   *plugins.Manager
	Transport *Transport
	Store     *plugins.MemoryStore
}

// New starts a manager whose source serves kinds. The manager is stopped
// when the test ends.
func New(t *testing.T, kinds ...plugins.Kind) *Harness {
	t.Helper()
	return NewWithStore(t, plugins.NewMemoryStore(), kinds...)
}

func NewWithStore(t *testing.T, store *plugins.MemoryStore, kinds ...plugins.Kind) *Harness {
	t.Helper()

	h := &Harness{
		Router:    commands.NewRouter(logger.Discard()),
		Transport: &Transport{},
		Store:     store,
	}
	m, err := plugins.NewManager(plugins.Config{
		Router:    h.Router,
		Source:    plugins.NewStaticSource(kinds...),
		Transport: h.Transport,
		Store:     store,
		Owner:     Owner,
		Logger:    logger.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	h.Manager = m

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return h
}

// Load loads name and fails the test when it cannot.
func (h *Harness) Load(t *testing.T, name string) *plugins.Instance {
	t.Helper()
	inst, err := h.Manager.Load(context.Background(), name)
	require.NoError(t, err)
	return inst
}

// Say dispatches msg and reports whether a rule fired.
func (h *Harness) Say(msg domain.Message) bool {
	return h.Router.Dispatch(context.Background(), msg)
}

func RoomLine(nick, text string) domain.Message {
	return domain.Message{
		Platform:  domain.PlatformWebSocket,
		ChannelID: Room,
		Username:  nick,
		Text:      text,
	}
}

func PrivateLine(nick, text string) domain.Message {
	return domain.Message{
		Platform:  domain.PlatformWebSocket,
		Username:  nick,
		Text:      text,
		IsPrivate: true,
	}
}
