package domain

import (
	"fmt"
	"strings"
)

// Scope restricts where a command can be reached from.
type Scope int

const (
	// ScopeBoth answers in rooms and in private. It is the default.
	ScopeBoth Scope = iota
	ScopeRoom
	ScopePrivate
	// ScopeHidden is never installed as a rule; only the plugin itself can call it.
	ScopeHidden
)

func (s Scope) String() string {
	switch s {
	case ScopeBoth:
		return "both"
	case ScopeRoom:
		return "room"
	case ScopePrivate:
		return "private"
	case ScopeHidden:
		return "hidden"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Expand returns the concrete dispatch scopes a declared scope installs rules for.
func (s Scope) Expand() []Scope {
	switch s {
	case ScopeBoth:
		return []Scope{ScopeRoom, ScopePrivate}
	case ScopeRoom, ScopePrivate:
		return []Scope{s}
	default:
		return nil
	}
}

// Allows reports whether a command declared with s answers a line arriving in in.
func (s Scope) Allows(in Scope) bool {
	for _, c := range s.Expand() {
		if c == in {
			return true
		}
	}
	return false
}

// ParseScope accepts the scope names used in plugin manifests and config files.
func ParseScope(value string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto", "both":
		return ScopeBoth, nil
	case "room", "channel", "public":
		return ScopeRoom, nil
	case "private", "query":
		return ScopePrivate, nil
	case "hidden", "helper":
		return ScopeHidden, nil
	default:
		return ScopeBoth, fmt.Errorf("unknown scope %q", value)
	}
}
