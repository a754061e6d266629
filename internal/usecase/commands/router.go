package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"rubot/internal/domain"
	"rubot/internal/logger"
)

var (
	ErrInvalidScope  = errors.New("commands: rules can only be installed for room or private scope")
	ErrDuplicateRule = errors.New("commands: rule already installed")
	ErrRuleNotFound  = errors.New("commands: rule not installed")
	ErrNilPattern    = errors.New("commands: nil pattern")
)

// Handler runs a matched rule. args is the text captured by the pattern.
type Handler func(ctx context.Context, msg domain.Message, args string) error

type rule struct {
	pattern *Pattern
	handler Handler
}

// Router is the live table of (scope, pattern) -> handler. Rules are tried in
// installation order and the first match wins, across every plugin.
type Router struct {
	mu    sync.RWMutex
	rules map[domain.Scope][]rule
	log   *log.Logger
}

func NewRouter(l *log.Logger) *Router {
	if l == nil {
		l = logger.With("router")
	}
	return &Router{
		rules: make(map[domain.Scope][]rule),
		log:   l,
	}
}

// On installs a rule. The handler is wrapped by Guard before it is stored.
func (r *Router) On(scope domain.Scope, pattern *Pattern, h Handler) error {
	if scope != domain.ScopeRoom && scope != domain.ScopePrivate {
		return fmt.Errorf("%w (got %s)", ErrInvalidScope, scope)
	}
	if pattern == nil {
		return ErrNilPattern
	}
	if h == nil {
		return fmt.Errorf("commands: nil handler for %s", pattern)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rules[scope] {
		if existing.pattern.String() == pattern.String() {
			return fmt.Errorf("%w: %s %s", ErrDuplicateRule, scope, pattern)
		}
	}

	r.rules[scope] = append(r.rules[scope], rule{
		pattern: pattern,
		handler: Guard(ruleName(scope, pattern), h, r.log),
	})
	r.log.Debug("rule installed", "scope", scope, "token", pattern.Token(), "command", pattern.Command())
	return nil
}

// Off removes the rule installed for exactly this scope and pattern.
func (r *Router) Off(scope domain.Scope, pattern *Pattern) error {
	if pattern == nil {
		return ErrNilPattern
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.rules[scope]
	for i, existing := range list {
		if existing.pattern.String() != pattern.String() {
			continue
		}
		// copy so that snapshots taken by Dispatch stay intact
		next := make([]rule, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		r.rules[scope] = next
		r.log.Debug("rule removed", "scope", scope, "token", pattern.Token(), "command", pattern.Command())
		return nil
	}
	return fmt.Errorf("%w: %s %s", ErrRuleNotFound, scope, pattern)
}

// Dispatch runs the first rule matching msg in the scope msg arrived in. It
// reports whether a rule fired; a failing handler still counts as handled.
func (r *Router) Dispatch(ctx context.Context, msg domain.Message) bool {
	text := strings.TrimRight(msg.Text, "\r\n")
	if strings.TrimSpace(text) == "" {
		return false
	}

	scope := msg.Scope()

	r.mu.RLock()
	snapshot := r.rules[scope]
	r.mu.RUnlock()

	for _, rl := range snapshot {
		args, ok := rl.pattern.Match(text)
		if !ok {
			continue
		}
		// errors were already logged by the guard
		_ = rl.handler(ctx, msg, args)
		return true
	}
	return false
}

// Len returns the number of installed rules across both scopes.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, list := range r.rules {
		n += len(list)
	}
	return n
}

// Rules lists the pattern sources installed for scope, in order.
func (r *Router) Rules(scope domain.Scope) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rules[scope]))
	for _, rl := range r.rules[scope] {
		out = append(out, rl.pattern.String())
	}
	return out
}

func ruleName(scope domain.Scope, p *Pattern) string {
	if p.IsDefault() {
		return fmt.Sprintf("%s:%s", scope, p.Token())
	}
	return fmt.Sprintf("%s:%s %s", scope, p.Token(), p.Command())
}
