package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"rubot/internal/domain"
)

var errNoTransport = errors.New("plugins: no transport configured")

// Env is what a plugin value is built with.
type Env struct {
	// Name is the normalized name the plugin was loaded under.
	Name      string
	Prefix    string
	Owner     string
	Transport domain.Transport
	Store     *Store
	Logger    *log.Logger
}

// Send delivers text outside of any command invocation, e.g. from a
// background watcher.
func (e Env) Send(ctx context.Context, platform domain.Platform, target, text string) error {
	if e.Transport == nil {
		return errNoTransport
	}
	return e.Transport.SendMessage(ctx, platform, target, text)
}

// Call is one command invocation: who said what, where, and the way back.
type Call struct {
	inst *Instance
	msg  domain.Message
	args string
}

func newCall(inst *Instance, msg domain.Message, args string) *Call {
	return &Call{inst: inst, msg: msg, args: args}
}

func (c *Call) Nick() string { return c.msg.Username }

// Room is the room the line was said in, empty for private lines.
func (c *Call) Room() string {
	if c.IsPrivate() {
		return ""
	}
	return c.msg.ChannelID
}

func (c *Call) IsPrivate() bool { return c.msg.Scope() == domain.ScopePrivate }

func (c *Call) Scope() domain.Scope { return c.msg.Scope() }

// Args is the text after the command, exactly as sent.
func (c *Call) Args() string { return c.args }

// Fields splits Args on whitespace.
func (c *Call) Fields() []string { return strings.Fields(c.args) }

func (c *Call) Message() domain.Message { return c.msg }

func (c *Call) Platform() domain.Platform { return c.msg.Platform }

func (c *Call) Env() Env { return c.inst.env }

func (c *Call) Store() *Store { return c.inst.env.Store }

func (c *Call) Logger() *log.Logger { return c.inst.log }

// IsOwner compares the sender with the configured owner, ignoring case.
func (c *Call) IsOwner() bool {
	owner := strings.TrimSpace(c.inst.env.Owner)
	return owner != "" && strings.EqualFold(owner, strings.TrimSpace(c.msg.Username))
}

// Reply answers in the room for public lines and to the sender otherwise.
func (c *Call) Reply(ctx context.Context, text string) error {
	return c.Msg(ctx, c.msg.ReplyTarget(), text)
}

// Msg sends text to a room or user on the platform the line came from.
func (c *Call) Msg(ctx context.Context, target, text string) error {
	return c.inst.env.Send(ctx, c.msg.Platform, target, text)
}

func (c *Call) Join(ctx context.Context, room string) error {
	if c.inst.env.Transport == nil {
		return errNoTransport
	}
	return c.inst.env.Transport.Join(ctx, c.msg.Platform, room)
}

func (c *Call) Part(ctx context.Context, room string) error {
	if c.inst.env.Transport == nil {
		return errNoTransport
	}
	return c.inst.env.Transport.Part(ctx, c.msg.Platform, room)
}

func (c *Call) Quit(ctx context.Context, reason string) error {
	if c.inst.env.Transport == nil {
		return errNoTransport
	}
	return c.inst.env.Transport.Quit(ctx, reason)
}

// Invoke runs another command of the same plugin, hidden ones included, for
// the same line.
func (c *Call) Invoke(ctx context.Context, name, args string) error {
	return c.inst.invoke(ctx, newCall(c.inst, c.msg, args), name)
}

// Help replies with the commands reachable from the scope of this line,
// e.g. "!greet (help|hi|hello)". Nothing is sent when none are.
func (c *Call) Help(ctx context.Context) error {
	line := HelpLine(c.inst.env.Prefix, c.inst.info.Token, c.inst.kind.Commands(), c.Scope())
	if line == "" {
		return nil
	}
	return c.Reply(ctx, line)
}

// HelpLine formats the commands of cmds visible from scope in declaration order.
func HelpLine(prefix, token string, cmds []Descriptor, scope domain.Scope) string {
	names := make([]string, 0, len(cmds))
	for _, d := range cmds {
		if d.Hidden() || !d.Scope.Allows(scope) {
			continue
		}
		names = append(names, d.Name)
	}
	if len(names) == 0 {
		return ""
	}
	if prefix == "" {
		prefix = "!"
	}
	return fmt.Sprintf("%s%s (%s)", prefix, token, strings.Join(names, "|"))
}
