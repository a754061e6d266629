package plugins

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"rubot/internal/domain"
	"rubot/internal/logger"
	"rubot/internal/usecase/commands"
)

type installedRule struct {
	scope   domain.Scope
	pattern *commands.Pattern
}

// Instance is one live plugin: its value, the rules it installed and the
// background task it runs while registered.
type Instance struct {
	mu sync.Mutex

	name   string
	kind   Kind
	info   Info
	bound  Bound
	env    Env
	router *commands.Router
	tokens *TokenCatalog
	log    *log.Logger

	registered bool
	rules      []installedRule
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewInstance builds the plugin value for kind. Nothing is installed until
// Register is called.
func NewInstance(name string, kind Kind, env Env, router *commands.Router, tokens *TokenCatalog) (*Instance, error) {
	if kind == nil {
		return nil, fmt.Errorf("%w: nil kind", ErrInvalidKind)
	}
	if router == nil {
		return nil, errors.New("plugins: nil router")
	}
	if tokens == nil {
		return nil, errors.New("plugins: nil token catalog")
	}
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	if env.Name == "" {
		env.Name = name
	}
	if env.Prefix == "" {
		env.Prefix = commands.DefaultPrefix
	}
	if env.Logger == nil {
		env.Logger = logger.Default()
	}

	bound, err := kind.Instantiate(env)
	if err != nil {
		return nil, err
	}

	return &Instance{
		name:   name,
		kind:   kind,
		info:   kind.Info(),
		bound:  bound,
		env:    env,
		router: router,
		tokens: tokens,
		log:    env.Logger,
	}, nil
}

func (i *Instance) Name() string { return i.name }

func (i *Instance) Info() Info { return i.info }

func (i *Instance) Kind() Kind { return i.kind }

// Value returns the plugin value, e.g. for type assertions in tests.
func (i *Instance) Value() any { return i.bound.Value() }

func (i *Instance) Registered() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.registered
}

// Register claims the token and installs one rule per reachable scope for
// every visible command, then the default rules for the bare token. On
// failure everything installed so far is removed again.
func (i *Instance) Register(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.registered {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, i.name)
	}
	if err := i.tokens.Claim(i.info.Token, i.name); err != nil {
		return err
	}

	if err := i.installLocked(); err != nil {
		i.removeRulesLocked()
		i.tokens.Release(i.info.Token, i.name)
		return err
	}
	i.registered = true

	if r, ok := i.bound.Value().(Runner); ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		i.cancel = cancel
		i.done = done
		go func() {
			defer close(done)
			r.Run(runCtx)
		}()
	}

	i.log.Debug("registered", "plugin", i.name, "token", i.info.Token, "rules", len(i.rules))
	return nil
}

func (i *Instance) installLocked() error {
	for _, d := range i.kind.Commands() {
		if d.Hidden() {
			continue
		}
		p, err := commands.NewPattern(i.env.Prefix, i.info.Token, d.Name)
		if err != nil {
			return err
		}
		for _, scope := range d.Scope.Expand() {
			if err := i.onLocked(scope, p, d.Name); err != nil {
				return err
			}
		}
	}

	p, err := commands.NewPattern(i.env.Prefix, i.info.Token, "")
	if err != nil {
		return err
	}
	for _, scope := range i.info.DefaultScope.Expand() {
		if err := i.onLocked(scope, p, i.info.DefaultCommand); err != nil {
			return err
		}
	}
	return nil
}

func (i *Instance) onLocked(scope domain.Scope, p *commands.Pattern, command string) error {
	var h commands.Handler
	if p.IsDefault() {
		h = i.defaultHandler(command)
	} else {
		h = i.handler(command)
	}
	if err := i.router.On(scope, p, h); err != nil {
		return err
	}
	i.rules = append(i.rules, installedRule{scope: scope, pattern: p})
	return nil
}

func (i *Instance) removeRulesLocked() error {
	var errs []error
	for _, r := range i.rules {
		if err := i.router.Off(r.scope, r.pattern); err != nil {
			errs = append(errs, err)
		}
	}
	i.rules = nil
	return errors.Join(errs...)
}

// Unregister stops the background task, removes every rule this instance
// installed and releases its token. Failures are joined and returned after
// everything that could be undone was undone.
func (i *Instance) Unregister(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.registered {
		return fmt.Errorf("%w: %s", ErrNotRegistered, i.name)
	}

	var errs []error
	if i.cancel != nil {
		i.cancel()
		select {
		case <-i.done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("plugins: %s: background task still running: %w", i.name, ctx.Err()))
		}
		i.cancel = nil
		i.done = nil
	}

	if err := i.removeRulesLocked(); err != nil {
		errs = append(errs, err)
	}
	if !i.tokens.Release(i.info.Token, i.name) {
		errs = append(errs, fmt.Errorf("plugins: %s did not hold token %q", i.name, i.info.Token))
	}
	i.registered = false

	i.log.Debug("unregistered", "plugin", i.name, "token", i.info.Token)
	return errors.Join(errs...)
}

// Close releases resources held by the plugin value. It is meant to be
// called once, after Unregister.
func (i *Instance) Close() error {
	if c, ok := i.bound.Value().(Closer); ok {
		return c.Close()
	}
	return nil
}

// Invoke runs command name for msg as if it had been dispatched.
func (i *Instance) Invoke(ctx context.Context, msg domain.Message, name, args string) error {
	return i.invoke(ctx, newCall(i, msg, args), name)
}

func (i *Instance) invoke(ctx context.Context, call *Call, name string) error {
	fn, ok := i.bound.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrUnknownCommand, i.info.Token, name)
	}
	return fn(ctx, call)
}

func (i *Instance) handler(name string) commands.Handler {
	return func(ctx context.Context, msg domain.Message, args string) error {
		return i.invoke(ctx, newCall(i, msg, args), name)
	}
}

func (i *Instance) defaultHandler(name string) commands.Handler {
	return func(ctx context.Context, msg domain.Message, args string) error {
		fn, ok := i.bound.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: %s %s", ErrNoDefaultCommand, i.info.Token, name)
		}
		return fn(ctx, newCall(i, msg, args))
	}
}
