// Package twitchadapter connects the bot to Twitch chat over IRC.
package twitchadapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adeithe/go-twitch/irc"
	"github.com/charmbracelet/log"

	"rubot/internal/domain"
	"rubot/internal/logger"
)

var errNotConnected = errors.New("twitch: not connected")

type Config struct {
	Username   string
	OAuthToken string
	Channels   []string
}

type MessageHandler func(ctx context.Context, msg domain.Message) error

type Adapter struct {
	cfg     Config
	handler MessageHandler
	log     *log.Logger

	mu   sync.RWMutex
	conn *irc.Conn
	stop context.CancelFunc
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, log: logger.With("twitch")}
}

func (a *Adapter) SetHandler(h MessageHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Start connects, joins the configured channels and blocks until ctx is
// cancelled or Close is called.
func (a *Adapter) Start(ctx context.Context) error {
	if len(a.cfg.Channels) == 0 {
		return errors.New("twitch: no channels configured")
	}
	if a.cfg.Username == "" || a.cfg.OAuthToken == "" {
		return errors.New("twitch: username or oauth token missing")
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	conn := &irc.Conn{}
	if err := conn.SetLogin(a.cfg.Username, a.cfg.OAuthToken); err != nil {
		return fmt.Errorf("twitch: SetLogin: %w", err)
	}

	conn.OnMessage(func(cm irc.ChatMessage) {
		a.mu.RLock()
		handler := a.handler
		a.mu.RUnlock()
		if handler == nil {
			return
		}
		if err := handler(ctx, toDomain(cm, time.Now())); err != nil {
			a.log.Warn("handler failed", "err", err)
		}
	})

	if err := conn.Connect(); err != nil {
		return fmt.Errorf("twitch: Connect: %w", err)
	}
	if err := conn.Join(channelNames(a.cfg.Channels)...); err != nil {
		conn.Close()
		return fmt.Errorf("twitch: Join: %w", err)
	}

	a.mu.Lock()
	a.conn = conn
	a.stop = stop
	a.mu.Unlock()

	a.log.Info("connected", "user", a.cfg.Username, "channels", a.cfg.Channels)

	<-ctx.Done()

	a.mu.Lock()
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.stop = nil
	a.mu.Unlock()

	return ctx.Err()
}

func (a *Adapter) connected() (*irc.Conn, error) {
	a.mu.RLock()
	conn := a.conn
	a.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return nil, errNotConnected
	}
	return conn, nil
}

// SendMessage says text in a channel. Whispers are not supported.
func (a *Adapter) SendMessage(_ context.Context, target, text string) error {
	if !strings.HasPrefix(target, "#") {
		return fmt.Errorf("twitch: private message to %s: %w", target, domain.ErrUnsupported)
	}
	conn, err := a.connected()
	if err != nil {
		return err
	}
	a.log.Debug("say", "channel", target, "text", text)
	return conn.Say(channelName(target), text)
}

func (a *Adapter) Join(_ context.Context, room string) error {
	conn, err := a.connected()
	if err != nil {
		return err
	}
	return conn.Join(channelName(room))
}

func (a *Adapter) Part(_ context.Context, room string) error {
	conn, err := a.connected()
	if err != nil {
		return err
	}
	return conn.Leave(channelName(room))
}

// Close ends the session started by Start. IRC has no quit reason for
// Twitch so reason is only logged.
func (a *Adapter) Close(_ context.Context, reason string) error {
	a.mu.RLock()
	stop := a.stop
	a.mu.RUnlock()
	if stop == nil {
		return errNotConnected
	}
	a.log.Info("disconnecting", "reason", reason)
	stop()
	return nil
}

func toDomain(cm irc.ChatMessage, at time.Time) domain.Message {
	return domain.Message{
		Platform:   domain.PlatformTwitch,
		ChannelID:  "#" + channelName(cm.Channel),
		UserID:     strconv.FormatInt(cm.Sender.ID, 10),
		Username:   cm.Sender.DisplayName,
		Text:       cm.Text,
		ReceivedAt: at,
	}
}

func channelName(room string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(room), "#"))
}

func channelNames(rooms []string) []string {
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		if n := channelName(r); n != "" {
			out = append(out, n)
		}
	}
	return out
}
