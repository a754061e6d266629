package plugins

import (
	"context"
	"strings"
	"sync"

	"rubot/internal/domain"
)

type sentMessage struct {
	Platform domain.Platform
	Target   string
	Text     string
}

type fakeTransport struct {
	mu        sync.Mutex
	sent      []sentMessage
	joined    []string
	parted    []string
	quits     []string
	roomsOnly bool
}

func (f *fakeTransport) SendMessage(_ context.Context, platform domain.Platform, target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roomsOnly && !strings.HasPrefix(target, "#") {
		return domain.ErrUnsupported
	}
	f.sent = append(f.sent, sentMessage{Platform: platform, Target: target, Text: text})
	return nil
}

func (f *fakeTransport) Join(_ context.Context, _ domain.Platform, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, room)
	return nil
}

func (f *fakeTransport) Part(_ context.Context, _ domain.Platform, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parted = append(f.parted, room)
	return nil
}

func (f *fakeTransport) Quit(_ context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quits = append(f.quits, reason)
	return nil
}

func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.Text)
	}
	return out
}

func (f *fakeTransport) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

type published struct {
	Topic   string
	Payload any
}

type fakeBus struct {
	mu     sync.Mutex
	events []published
}

func (b *fakeBus) Publish(topic string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{Topic: topic, Payload: payload})
}

type invocation struct {
	Command string
	Args    string
}

type greets struct {
	calls []invocation
}

func (g *greets) record(name string, call *Call) {
	g.calls = append(g.calls, invocation{Command: name, Args: call.Args()})
}

func greetsKind() *Type[greets] {
	return Define[greets]("Greets", func(Env) (*greets, error) { return &greets{}, nil }).
		Token("greet").
		Describe("Silly example plugin").
		Command("help", func(g *greets, ctx context.Context, call *Call) error {
			g.record("help", call)
			return call.Help(ctx)
		}, domain.ScopeBoth).
		Command("hi", func(g *greets, ctx context.Context, call *Call) error {
			g.record("hi", call)
			return call.Reply(ctx, call.Nick()+" said hi!")
		}, domain.ScopeBoth).
		Command("hello", func(g *greets, ctx context.Context, call *Call) error {
			g.record("hello", call)
			return call.Reply(ctx, "Hello, "+call.Nick())
		}, domain.ScopeRoom).
		Command("special", func(g *greets, ctx context.Context, call *Call) error {
			g.record("special", call)
			return call.Msg(ctx, call.Nick(), "you are special")
		}, domain.ScopePrivate).
		Command("_secret", func(g *greets, ctx context.Context, call *Call) error {
			g.record("_secret", call)
			return nil
		}, domain.ScopeBoth)
}

func room(nick, text string) domain.Message {
	return domain.Message{Platform: domain.PlatformWebSocket, ChannelID: "#lobby", Username: nick, Text: text}
}

func private(nick, text string) domain.Message {
	return domain.Message{Platform: domain.PlatformWebSocket, Username: nick, Text: text, IsPrivate: true}
}
