package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidToken(t *testing.T) {
	for _, tok := range []string{"greet", "wx", "A1", "do"} {
		assert.True(t, ValidToken(tok), tok)
	}
	for _, tok := range []string{"", "1abc", "with space", "dash-ed", "!greet", "ünï"} {
		assert.False(t, ValidToken(tok), tok)
	}
}

func TestTokenCatalog(t *testing.T) {
	c := NewTokenCatalog()

	require.NoError(t, c.Claim("Greet", "greets"))
	require.NoError(t, c.Claim("greet", "greets"), "same owner claims again")

	err := c.Claim("GREET", "impostor")
	assert.ErrorIs(t, err, ErrTokenInUse)

	assert.ErrorIs(t, c.Claim("9lives", "cat"), ErrInvalidToken)

	owner, ok := c.Owner("gReEt")
	assert.True(t, ok)
	assert.Equal(t, "greets", owner)

	require.NoError(t, c.Claim("wx", "weather"))
	assert.Equal(t, []string{"greet", "wx"}, c.Tokens())

	assert.False(t, c.Release("greet", "impostor"))
	assert.True(t, c.Release("greet", "greets"))
	assert.False(t, c.Release("greet", "greets"))

	require.NoError(t, c.Claim("greet", "impostor"), "released tokens can be reused")
}
