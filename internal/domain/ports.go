package domain

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by transports that cannot perform an operation,
// e.g. private messages on a single-chatroom platform.
var ErrUnsupported = errors.New("operation not supported by transport")

// Transport is everything plugins may ask of the chat network.
type Transport interface {
	SendMessage(ctx context.Context, platform Platform, target, text string) error
	Join(ctx context.Context, platform Platform, room string) error
	Part(ctx context.Context, platform Platform, room string) error
	Quit(ctx context.Context, reason string) error
}

// PluginStore persists opaque per-plugin key/value data.
type PluginStore interface {
	Get(ctx context.Context, plugin, key string) (string, bool, error)
	Put(ctx context.Context, plugin, key, value string) error
	Delete(ctx context.Context, plugin, key string) error
	Keys(ctx context.Context, plugin string) ([]string, error)
}
