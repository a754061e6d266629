package handle_message

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rubot/internal/domain"
	"rubot/internal/logger"
	"rubot/internal/usecase/commands"
)

type recordingBus struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (b *recordingBus) PublishChat(msg domain.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

func TestHandleNormalizesAndDispatches(t *testing.T) {
	router := commands.NewRouter(logger.Discard())
	p, err := commands.NewPattern("!", "ping", "")
	require.NoError(t, err)

	var got domain.Message
	require.NoError(t, router.On(domain.ScopeRoom, p, func(_ context.Context, msg domain.Message, _ string) error {
		got = msg
		return nil
	}))

	bus := &recordingBus{}
	uc := NewInteractor(router, bus)

	require.NoError(t, uc.Handle(context.Background(), domain.Message{
		Platform:  domain.PlatformWebSocket,
		ChannelID: "#lobby",
		Username:  "  ",
		Text:      "!ping\r\n",
	}))

	assert.Equal(t, "!ping", got.Text)
	assert.Equal(t, anonymous, got.Username)
	require.Len(t, bus.msgs, 1)
	assert.Equal(t, got, bus.msgs[0])
}

func TestHandleCancelledContext(t *testing.T) {
	router := commands.NewRouter(logger.Discard())
	uc := NewInteractor(router, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, uc.Handle(ctx, domain.Message{Text: "!x"}), context.Canceled)
}

func TestHandleSerializesLines(t *testing.T) {
	router := commands.NewRouter(logger.Discard())
	p, err := commands.NewPattern("!", "slow", "")
	require.NoError(t, err)

	var running, overlap atomic.Int32
	require.NoError(t, router.On(domain.ScopePrivate, p, func(context.Context, domain.Message, string) error {
		if running.Add(1) > 1 {
			overlap.Add(1)
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return nil
	}))

	uc := NewInteractor(router, nil)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = uc.Handle(context.Background(), domain.Message{Username: "a", Text: "!slow", IsPrivate: true})
		}()
	}
	wg.Wait()
	assert.Zero(t, overlap.Load())
}
