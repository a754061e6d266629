// Package handle_message feeds inbound chat lines from every adapter into
// the command router, one line at a time.
package handle_message

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"rubot/internal/domain"
	"rubot/internal/logger"
)

const anonymous = "anonymous"

// Dispatcher runs the first matching rule for a line.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg domain.Message) bool
}

// Publisher observes every line before it is dispatched.
type Publisher interface {
	PublishChat(msg domain.Message)
}

type Interactor struct {
	mu     sync.Mutex
	router Dispatcher
	bus    Publisher
	log    *log.Logger
}

// NewInteractor builds the interactor. bus may be nil.
func NewInteractor(router Dispatcher, bus Publisher) *Interactor {
	return &Interactor{
		router: router,
		bus:    bus,
		log:    logger.With("messages"),
	}
}

// Handle normalizes msg and dispatches it. Lines from different adapters
// are serialized so handlers never run concurrently.
func (uc *Interactor) Handle(ctx context.Context, msg domain.Message) error {
	msg.Text = strings.TrimRight(msg.Text, "\r\n")
	msg.Username = strings.TrimSpace(msg.Username)
	if msg.Username == "" {
		msg.Username = anonymous
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.bus != nil {
		uc.bus.PublishChat(msg)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if uc.router.Dispatch(ctx, msg) {
		uc.log.Debug("dispatched", "platform", msg.Platform, "room", msg.ChannelID, "user", msg.Username)
	}
	return nil
}
