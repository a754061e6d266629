package plugins

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var tokenRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// ValidToken reports whether token can namespace a plugin's commands.
func ValidToken(token string) bool {
	return tokenRe.MatchString(token)
}

// TokenCatalog tracks which plugin currently owns each token. Tokens are
// compared case-insensitively.
type TokenCatalog struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewTokenCatalog() *TokenCatalog {
	return &TokenCatalog{owners: make(map[string]string)}
}

// Claim reserves token for owner. Claiming a token the owner already holds
// is a no-op.
func (c *TokenCatalog) Claim(token, owner string) error {
	if !ValidToken(token) {
		return fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	key := strings.ToLower(token)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owners == nil {
		c.owners = make(map[string]string)
	}
	if current, ok := c.owners[key]; ok && current != owner {
		return fmt.Errorf("%w: %q is held by %s", ErrTokenInUse, key, current)
	}
	c.owners[key] = owner
	return nil
}

// Release frees token if owner holds it.
func (c *TokenCatalog) Release(token, owner string) bool {
	key := strings.ToLower(token)

	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.owners[key]; !ok || current != owner {
		return false
	}
	delete(c.owners, key)
	return true
}

func (c *TokenCatalog) Owner(token string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[strings.ToLower(token)]
	return owner, ok
}

// Tokens returns the claimed tokens sorted.
func (c *TokenCatalog) Tokens() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.owners))
	for token := range c.owners {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}
