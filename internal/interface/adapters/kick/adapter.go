// Package kickadapter connects the bot to a Kick chatroom. Lines are read
// from the chatroom websocket and replies go through the public API.
package kickadapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	kicksdk "github.com/glichtv/kick-sdk"
	kickchatwrapper "github.com/johanvandegriff/kick-chat-wrapper"

	"rubot/internal/domain"
	"rubot/internal/logger"
)

var errNotConnected = errors.New("kick: not connected")

type Config struct {
	AccessToken string
	// BroadcasterUserID owns the channel replies are posted to.
	BroadcasterUserID int
	// ChatroomID is the chatroom read from, not the same as the user id.
	ChatroomID int
}

type MessageHandler func(ctx context.Context, msg domain.Message) error

type Adapter struct {
	cfg     Config
	handler MessageHandler
	log     *log.Logger

	mu   sync.RWMutex
	sdk  *kicksdk.Client
	ws   *kickchatwrapper.Client
	stop context.CancelFunc
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, log: logger.With("kick")}
}

func (a *Adapter) SetHandler(h MessageHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Room is the name lines from the configured chatroom arrive under.
func (a *Adapter) Room() string {
	return "#" + strconv.Itoa(a.cfg.ChatroomID)
}

func (a *Adapter) Start(ctx context.Context) error {
	if a.cfg.AccessToken == "" {
		return errors.New("kick: access token missing")
	}
	if a.cfg.ChatroomID == 0 {
		return errors.New("kick: chatroom id missing")
	}
	if a.cfg.BroadcasterUserID == 0 {
		return errors.New("kick: broadcaster user id missing")
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	sdkClient := kicksdk.NewClient(
		kicksdk.WithAccessTokens(kicksdk.AccessTokens{
			UserAccessToken: a.cfg.AccessToken,
		}),
	)

	wsClient, err := kickchatwrapper.NewClient()
	if err != nil {
		return fmt.Errorf("kick: chat client: %w", err)
	}
	if err := wsClient.JoinChannelByID(a.cfg.ChatroomID); err != nil {
		return fmt.Errorf("kick: JoinChannelByID: %w", err)
	}
	msgChan := wsClient.ListenForMessages()

	a.mu.Lock()
	a.sdk = sdkClient
	a.ws = wsClient
	a.stop = stop
	a.mu.Unlock()

	a.log.Info("connected", "chatroom", a.cfg.ChatroomID, "broadcaster", a.cfg.BroadcasterUserID)

	go func() {
		for {
			select {
			case m, ok := <-msgChan:
				if !ok {
					a.log.Warn("chat stream closed")
					return
				}
				if !isChat(m) {
					a.log.Debug("chatroom event", "type", m.Type, "chatroom", m.ChatroomID)
					continue
				}
				a.mu.RLock()
				handler := a.handler
				a.mu.RUnlock()
				if handler == nil {
					continue
				}
				if err := handler(ctx, toDomain(m, time.Now())); err != nil {
					a.log.Warn("handler failed", "err", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()

	a.mu.Lock()
	if a.ws != nil {
		a.ws.Close()
		a.ws = nil
	}
	a.sdk = nil
	a.stop = nil
	a.mu.Unlock()

	return ctx.Err()
}

// SendMessage posts text to the broadcaster's chat. Kick has no private
// messages for bots.
func (a *Adapter) SendMessage(ctx context.Context, target, text string) error {
	if !strings.HasPrefix(target, "#") {
		return fmt.Errorf("kick: private message to %s: %w", target, domain.ErrUnsupported)
	}

	a.mu.RLock()
	client := a.sdk
	a.mu.RUnlock()
	if client == nil {
		return errNotConnected
	}
	if text == "" {
		return nil
	}

	resp, err := client.Chat().PostMessage(ctx, kicksdk.PostChatMessageInput{
		BroadcasterUserID: a.cfg.BroadcasterUserID,
		Content:           text,
		PosterType:        kicksdk.MessagePosterUser,
	})
	if err != nil {
		return fmt.Errorf("kick: post message: %w", err)
	}
	if !resp.Payload.IsSent {
		meta := resp.ResponseMetadata
		a.log.Warn("message rejected",
			"status", meta.StatusCode,
			"kick_message", meta.KickMessage,
			"kick_error", meta.KickError,
			"description", meta.KickErrorDescription,
		)
		return fmt.Errorf("kick: message rejected (status %d)", meta.StatusCode)
	}
	a.log.Debug("message delivered", "id", resp.Payload.MessageID)
	return nil
}

// Join and Part are not available: the adapter is bound to one chatroom.
func (a *Adapter) Join(context.Context, string) error {
	return fmt.Errorf("kick: join: %w", domain.ErrUnsupported)
}

func (a *Adapter) Part(context.Context, string) error {
	return fmt.Errorf("kick: part: %w", domain.ErrUnsupported)
}

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

// UpdateAccessToken swaps the token used for posting.
func (a *Adapter) UpdateAccessToken(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.AccessToken = token
	if a.sdk != nil {
		a.sdk = kicksdk.NewClient(
			kicksdk.WithAccessTokens(kicksdk.AccessTokens{UserAccessToken: token}),
		)
	}
}

// isChat tells chat lines apart from subs, tips and other chatroom events.
func isChat(m kickchatwrapper.ChatMessage) bool {
	switch strings.ToLower(strings.TrimSpace(m.Type)) {
	case "", "chat", "message":
		return true
	default:
		return false
	}
}

func toDomain(m kickchatwrapper.ChatMessage, at time.Time) domain.Message {
	return domain.Message{
		Platform:   domain.PlatformKick,
		ChannelID:  "#" + strconv.Itoa(m.ChatroomID),
		UserID:     strconv.Itoa(m.Sender.ID),
		Username:   m.Sender.Username,
		Text:       m.Content,
		ReceivedAt: at,
	}
}
