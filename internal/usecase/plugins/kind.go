package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rubot/internal/domain"
)

// HelpCommand is the default command of every kind that does not pick one.
const HelpCommand = "help"

// CommandFunc is a command bound to a live plugin value.
type CommandFunc func(ctx context.Context, call *Call) error

// Descriptor declares one command and the scope it answers in.
type Descriptor struct {
	Name  string
	Scope domain.Scope
	Usage string
}

// Hidden reports whether the command is kept out of the router. Hidden
// commands stay callable through Call.Invoke.
func (d Descriptor) Hidden() bool {
	if d.Scope == domain.ScopeHidden {
		return true
	}
	return reservedName(d.Name)
}

func reservedName(name string) bool {
	if strings.HasPrefix(name, "_") {
		return true
	}
	switch name {
	case "init", "initialize", "new":
		return true
	}
	return false
}

// Info describes a plugin kind for listings and registration.
type Info struct {
	Name           string
	Token          string
	Description    string
	DefaultCommand string
	DefaultScope   domain.Scope
}

// Kind is a plugin type: a token, a declared command set and a way to build
// live values that serve those commands.
type Kind interface {
	Info() Info
	Commands() []Descriptor
	Validate() error
	Instantiate(env Env) (Bound, error)
}

// Bound is a live plugin value with its commands resolved by name.
type Bound interface {
	Lookup(name string) (CommandFunc, bool)
	Value() any
}

// Runner is implemented by plugin values that keep a background task. Run
// must return once ctx is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// Closer is implemented by plugin values holding resources released on unload.
type Closer interface {
	Close() error
}

// Method is a command implemented as a function over the plugin value.
type Method[T any] func(p *T, ctx context.Context, call *Call) error

type declared[T any] struct {
	desc Descriptor
	fn   Method[T]
}

// Type builds a Kind whose live values are *T. Declaration problems are
// collected and reported by Validate.
type Type[T any] struct {
	info     Info
	newFn    func(Env) (*T, error)
	commands []declared[T]
	errs     []error
}

// Define starts the declaration of a plugin kind called name.
func Define[T any](name string, newFn func(Env) (*T, error)) *Type[T] {
	return &Type[T]{
		info: Info{
			Name:           name,
			Description:    name + " is indescribable!",
			DefaultCommand: HelpCommand,
			DefaultScope:   domain.ScopeBoth,
		},
		newFn: newFn,
	}
}

func (t *Type[T]) Token(token string) *Type[T] {
	t.info.Token = strings.ToLower(strings.TrimSpace(token))
	return t
}

func (t *Type[T]) Describe(description string) *Type[T] {
	t.info.Description = description
	return t
}

// Default sets the command run for the bare token and for unknown
// sub-commands, and the scope that rule is installed in.
func (t *Type[T]) Default(command string, scope domain.Scope) *Type[T] {
	t.info.DefaultCommand = strings.ToLower(strings.TrimSpace(command))
	t.info.DefaultScope = scope
	return t
}

// Command declares a command. Declaration order is the order of help
// listings and of rule installation.
func (t *Type[T]) Command(name string, fn Method[T], scope domain.Scope) *Type[T] {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "":
		t.errs = append(t.errs, errors.New("empty command name"))
		return t
	case strings.ContainsAny(name, " \t\r\n"):
		t.errs = append(t.errs, fmt.Errorf("command %q contains whitespace", name))
		return t
	case fn == nil:
		t.errs = append(t.errs, fmt.Errorf("command %q has no handler", name))
		return t
	}
	for _, c := range t.commands {
		if c.desc.Name == name {
			t.errs = append(t.errs, fmt.Errorf("command %q declared twice", name))
			return t
		}
	}
	t.commands = append(t.commands, declared[T]{
		desc: Descriptor{Name: name, Scope: scope},
		fn:   fn,
	})
	return t
}

// Usage attaches a usage line to the most recently declared command.
func (t *Type[T]) Usage(text string) *Type[T] {
	if len(t.commands) == 0 {
		t.errs = append(t.errs, errors.New("usage given before any command"))
		return t
	}
	t.commands[len(t.commands)-1].desc.Usage = text
	return t
}

func (t *Type[T]) Info() Info { return t.info }

// Commands lists the declared commands, followed by the built-in help when
// the kind does not declare its own.
func (t *Type[T]) Commands() []Descriptor {
	out := make([]Descriptor, 0, len(t.commands)+1)
	for _, c := range t.commands {
		out = append(out, c.desc)
	}
	if !t.declares(HelpCommand) {
		out = append(out, Descriptor{Name: HelpCommand, Scope: domain.ScopeBoth, Usage: "help :: list commands"})
	}
	return out
}

func (t *Type[T]) Validate() error {
	errs := append([]error(nil), t.errs...)
	if strings.TrimSpace(t.info.Name) == "" {
		errs = append(errs, errors.New("missing name"))
	}
	if !ValidToken(t.info.Token) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidToken, t.info.Token))
	}
	if t.newFn == nil {
		errs = append(errs, errors.New("missing constructor"))
	}
	switch t.info.DefaultScope {
	case domain.ScopeBoth, domain.ScopeRoom, domain.ScopePrivate:
	default:
		errs = append(errs, fmt.Errorf("default command %q has unreachable scope %s", t.info.DefaultCommand, t.info.DefaultScope))
	}
	if t.info.DefaultCommand != HelpCommand && !t.declares(t.info.DefaultCommand) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrNoDefaultCommand, t.info.DefaultCommand))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %s: %w", ErrInvalidKind, t.info.Name, errors.Join(errs...))
}

func (t *Type[T]) Instantiate(env Env) (Bound, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	value, err := construct(t.newFn, env)
	if err != nil {
		return nil, fmt.Errorf("plugins: instantiate %s: %w", t.info.Name, err)
	}
	if value == nil {
		return nil, fmt.Errorf("plugins: instantiate %s: constructor returned nil", t.info.Name)
	}
	return &bound[T]{kind: t, value: value}, nil
}

// construct runs newFn and turns a panic into an ErrInvalidKind error.
func construct[T any](newFn func(Env) (*T, error), env Env) (value *T, err error) {
	defer func() {
		if v := recover(); v != nil {
			value, err = nil, fmt.Errorf("%w: constructor panicked: %v", ErrInvalidKind, v)
		}
	}()
	return newFn(env)
}

func (t *Type[T]) declares(name string) bool {
	for _, c := range t.commands {
		if c.desc.Name == name {
			return true
		}
	}
	return false
}

type bound[T any] struct {
	kind  *Type[T]
	value *T
}

func (b *bound[T]) Lookup(name string) (CommandFunc, bool) {
	name = strings.ToLower(name)
	for _, c := range b.kind.commands {
		if c.desc.Name != name {
			continue
		}
		fn := c.fn
		return func(ctx context.Context, call *Call) error {
			return fn(b.value, ctx, call)
		}, true
	}
	if name == HelpCommand {
		return func(ctx context.Context, call *Call) error {
			return call.Help(ctx)
		}, true
	}
	return nil, false
}

func (b *bound[T]) Value() any { return b.value }
