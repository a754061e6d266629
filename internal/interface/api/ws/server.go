// Package ws serves a small chat over websockets: clients talk in rooms or
// privately to the bot, and observers receive the bot's event feed.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rubot/internal/domain"
	"rubot/internal/logger"
)

const (
	DefaultAddr = ":8080"
	DefaultNick = "rubot"

	writeTimeout = 5 * time.Second
)

var (
	ErrNoSuchUser = errors.New("ws: no such user")
	ErrNotInRoom  = errors.New("ws: not in room")
)

type Config struct {
	Addr string
	// Nick is the name the bot speaks under.
	Nick string
	// Rooms are joined before the first client connects.
	Rooms []string
}

type MessageHandler func(ctx context.Context, msg domain.Message) error

// Envelope is every frame the server writes.
type Envelope struct {
	Type   string `json:"type"`
	From   string `json:"from,omitempty"`
	Target string `json:"target,omitempty"`
	Text   string `json:"text,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// incoming is a client line. An empty room makes it a private line to the bot.
type incoming struct {
	Text string `json:"text"`
	Room string `json:"room"`
}

type Server struct {
	addr     string
	nick     string
	upgrader websocket.Upgrader
	log      *log.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient
	rooms   map[string]struct{}
	handler MessageHandler
	ctx     context.Context
	httpSrv *http.Server
}

type wsClient struct {
	id   string
	nick string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsClient) close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	_ = c.conn.Close()
}

func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Nick == "" {
		cfg.Nick = DefaultNick
	}
	s := &Server{
		addr: cfg.Addr,
		nick: cfg.Nick,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     logger.With("ws"),
		clients: make(map[string]*wsClient),
		rooms:   make(map[string]struct{}),
		ctx:     context.Background(),
	}
	for _, r := range cfg.Rooms {
		if r = normalizeRoom(r); r != "" {
			s.rooms[r] = struct{}{}
		}
	}
	return s
}

func (s *Server) SetHandler(h MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Handler returns the HTTP handler serving /ws/chat.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat", s.handleWS)
	return mux
}

// Start listens on the configured address until ctx is cancelled or Close
// is called.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	s.mu.Lock()
	s.ctx = ctx
	s.httpSrv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("shutdown", "err", err)
		}
	}()

	s.log.Info("listening", "addr", s.addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade", "err", err)
		return
	}

	id := uuid.NewString()
	nick := strings.TrimSpace(r.URL.Query().Get("user"))
	if nick == "" {
		nick = "web-" + id[:8]
	}
	client := &wsClient{id: id, nick: nick, conn: conn}

	s.mu.Lock()
	s.clients[id] = client
	count := len(s.clients)
	ctx := s.ctx
	s.mu.Unlock()

	s.log.Info("client connected", "nick", nick, "remote", r.RemoteAddr, "clients", count)
	go s.readLoop(ctx, client)
}

func (s *Server) readLoop(ctx context.Context, client *wsClient) {
	defer s.drop(client)

	for {
		msgType, data, err := client.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("read", "nick", client.nick, "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := s.dispatch(ctx, client, data); err != nil {
			s.log.Warn("incoming line", "nick", client.nick, "err", err)
		}
	}
}

func (s *Server) drop(client *wsClient) {
	s.mu.Lock()
	_, ok := s.clients[client.id]
	delete(s.clients, client.id)
	count := len(s.clients)
	s.mu.Unlock()

	_ = client.conn.Close()
	if ok {
		s.log.Info("client disconnected", "nick", client.nick, "clients", count)
	}
}

func (s *Server) dispatch(ctx context.Context, client *wsClient, data []byte) error {
	var in incoming
	if err := json.Unmarshal(data, &in); err != nil {
		in = incoming{Text: string(data)}
	}
	in.Text = strings.TrimRight(in.Text, "\r\n")
	if strings.TrimSpace(in.Text) == "" {
		return errors.New("ws: empty line")
	}

	room := normalizeRoom(in.Room)

	s.mu.RLock()
	handler := s.handler
	_, joined := s.rooms[room]
	s.mu.RUnlock()

	if room != "" {
		if !joined {
			s.log.Debug("line in a room the bot is not in", "room", room, "nick", client.nick)
			return nil
		}
		s.broadcast(Envelope{Type: "message", From: client.nick, Target: room, Text: in.Text}, client.id)
	}
	if handler == nil {
		return nil
	}

	return handler(ctx, domain.Message{
		Platform:   domain.PlatformWebSocket,
		ChannelID:  room,
		UserID:     client.id,
		Username:   client.nick,
		Text:       in.Text,
		IsPrivate:  room == "",
		ReceivedAt: time.Now(),
	})
}

// SendMessage speaks in a joined room or privately to every connection of
// the target nick.
func (s *Server) SendMessage(_ context.Context, target, text string) error {
	env := Envelope{Type: "message", From: s.nick, Target: target, Text: text}

	if strings.HasPrefix(target, "#") {
		room := normalizeRoom(target)
		s.mu.RLock()
		_, ok := s.rooms[room]
		s.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotInRoom, target)
		}
		env.Target = room
		s.broadcast(env, "")
		return nil
	}

	sent := 0
	for _, c := range s.snapshot() {
		if !strings.EqualFold(c.nick, target) {
			continue
		}
		if err := c.writeJSON(env); err != nil {
			s.log.Warn("write", "nick", c.nick, "err", err)
			continue
		}
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchUser, target)
	}
	return nil
}

func (s *Server) Join(_ context.Context, room string) error {
	room = normalizeRoom(room)
	if room == "" {
		return errors.New("ws: empty room")
	}
	s.mu.Lock()
	s.rooms[room] = struct{}{}
	s.mu.Unlock()
	s.broadcast(Envelope{Type: "join", From: s.nick, Target: room}, "")
	return nil
}

func (s *Server) Part(_ context.Context, room string) error {
	room = normalizeRoom(room)
	s.mu.Lock()
	_, ok := s.rooms[room]
	delete(s.rooms, room)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInRoom, room)
	}
	s.broadcast(Envelope{Type: "part", From: s.nick, Target: room}, "")
	return nil
}

// Close tells every client the bot is leaving, disconnects them and stops
// the listener when Start is running.
func (s *Server) Close(ctx context.Context, reason string) error {
	s.broadcast(Envelope{Type: "quit", From: s.nick, Text: reason}, "")

	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))
	for id, c := range s.clients {
		clients = append(clients, c)
		delete(s.clients, id)
	}
	srv := s.httpSrv
	s.httpSrv = nil
	s.mu.Unlock()

	for _, c := range clients {
		c.close(reason)
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}

// Rooms lists the rooms the bot is in.
func (s *Server) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	return out
}

func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Forward subscribes to topics and writes every payload to all clients
// until ctx is done or the subscriptions end.
func (s *Server) Forward(ctx context.Context, sub Subscriber, topics ...string) {
	for _, topic := range topics {
		ch, unsubscribe := sub.Subscribe(topic)
		go func() {
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-ch:
					if !ok {
						return
					}
					s.broadcast(Envelope{Type: topic, Data: payload}, "")
				}
			}
		}()
	}
}

// Subscriber is the part of the event bus Forward needs.
type Subscriber interface {
	Subscribe(topic string) (<-chan any, func())
}

func (s *Server) snapshot() []*wsClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*wsClient, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) broadcast(env Envelope, skip string) {
	for _, c := range s.snapshot() {
		if c.id == skip {
			continue
		}
		if err := c.writeJSON(env); err != nil {
			s.log.Warn("removing client after write error", "nick", c.nick, "err", err)
			s.drop(c)
		}
	}
}

func normalizeRoom(room string) string {
	room = strings.ToLower(strings.TrimSpace(room))
	if room == "" || room == "#" {
		return ""
	}
	if !strings.HasPrefix(room, "#") {
		room = "#" + room
	}
	return room
}
