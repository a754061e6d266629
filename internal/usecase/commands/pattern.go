package commands

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultPrefix marks a chat line as a command.
const DefaultPrefix = "!"

var ErrEmptyToken = errors.New("commands: empty token")

// Pattern is a compiled command rule for one token and, optionally, one
// sub-command. It matches lines shaped like "!token command rest" (or
// "!token rest" for the default form) and captures rest verbatim.
type Pattern struct {
	token   string
	command string
	source  string
	re      *regexp.Regexp
}

// NewPattern compiles the rule for token and command. An empty command
// builds the bare-token (default) form.
func NewPattern(prefix, token, command string) (*Pattern, error) {
	token = strings.TrimSpace(token)
	command = strings.TrimSpace(command)
	if token == "" {
		return nil, ErrEmptyToken
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}

	var b strings.Builder
	b.WriteString(`(?is)^\s*`)
	b.WriteString(regexp.QuoteMeta(prefix))
	b.WriteString(regexp.QuoteMeta(token))
	if command != "" {
		b.WriteString(`\s+`)
		b.WriteString(regexp.QuoteMeta(command))
	}
	// exactly one separator is consumed so the argument keeps the sender's spacing
	b.WriteString(`(?:\s(.*))?$`)

	source := b.String()
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("commands: compile %q: %w", source, err)
	}

	return &Pattern{
		token:   strings.ToLower(token),
		command: strings.ToLower(command),
		source:  source,
		re:      re,
	}, nil
}

// Match tests line and returns the captured argument text.
func (p *Pattern) Match(line string) (string, bool) {
	if p == nil || p.re == nil {
		return "", false
	}
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Token returns the lower-cased token the pattern was built for.
func (p *Pattern) Token() string { return p.token }

// Command returns the lower-cased sub-command, empty for the default form.
func (p *Pattern) Command() string { return p.command }

// IsDefault reports whether this is the bare-token form.
func (p *Pattern) IsDefault() bool { return p.command == "" }

// String returns the regular expression source. Two patterns are the same
// rule when their sources are equal.
func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.source
}
