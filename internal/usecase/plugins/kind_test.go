package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rubot/internal/domain"
)

type empty struct{}

func newEmpty(Env) (*empty, error) { return &empty{}, nil }

func noop(*empty, context.Context, *Call) error { return nil }

func TestType_Commands(t *testing.T) {
	kind := greetsKind()
	require.NoError(t, kind.Validate())

	cmds := kind.Commands()
	names := make([]string, 0, len(cmds))
	for _, d := range cmds {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"help", "hi", "hello", "special", "_secret"}, names)
	assert.True(t, cmds[4].Hidden())
	assert.Equal(t, domain.ScopeRoom, cmds[2].Scope)

	info := kind.Info()
	assert.Equal(t, "greet", info.Token)
	assert.Equal(t, HelpCommand, info.DefaultCommand)
	assert.Equal(t, domain.ScopeBoth, info.DefaultScope)
}

func TestType_AutoHelp(t *testing.T) {
	kind := Define[empty]("Quiet", newEmpty).
		Token("quiet").
		Command("ping", noop, domain.ScopeRoom)

	cmds := kind.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "help", cmds[1].Name)
	assert.Equal(t, "Quiet is indescribable!", kind.Info().Description)

	b, err := kind.Instantiate(Env{})
	require.NoError(t, err)
	_, ok := b.Lookup("HELP")
	assert.True(t, ok)
	_, ok = b.Lookup("pong")
	assert.False(t, ok)
}

func TestType_ReservedNamesAreHidden(t *testing.T) {
	kind := Define[empty]("Hidden", newEmpty).
		Token("hid").
		Command("init", noop, domain.ScopeBoth).
		Command("new", noop, domain.ScopeRoom).
		Command("_helper", noop, domain.ScopePrivate).
		Command("helper", noop, domain.ScopeHidden).
		Command("visible", noop, domain.ScopeBoth)

	var visible []string
	for _, d := range kind.Commands() {
		if !d.Hidden() {
			visible = append(visible, d.Name)
		}
	}
	assert.Equal(t, []string{"visible", "help"}, visible)
}

func TestType_ValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want error
	}{
		{
			name: "bad token",
			kind: Define[empty]("Bad", newEmpty).Token("1bad"),
			want: ErrInvalidToken,
		},
		{
			name: "missing token",
			kind: Define[empty]("Bad", newEmpty),
			want: ErrInvalidToken,
		},
		{
			name: "missing default",
			kind: Define[empty]("Bad", newEmpty).Token("bad").Default("ghost", domain.ScopeBoth),
			want: ErrNoDefaultCommand,
		},
		{
			name: "duplicate command",
			kind: Define[empty]("Bad", newEmpty).Token("bad").
				Command("x", noop, domain.ScopeBoth).
				Command("X", noop, domain.ScopeRoom),
			want: ErrInvalidKind,
		},
		{
			name: "usage without command",
			kind: Define[empty]("Bad", newEmpty).Token("bad").Usage("nothing"),
			want: ErrInvalidKind,
		},
		{
			name: "hidden default scope",
			kind: Define[empty]("Bad", newEmpty).Token("bad").Default("help", domain.ScopeHidden),
			want: ErrInvalidKind,
		},
		{
			name: "nil constructor",
			kind: Define[empty]("Bad", nil).Token("bad"),
			want: ErrInvalidKind,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.kind.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrInvalidKind)

			_, err = tc.kind.Instantiate(Env{})
			assert.Error(t, err)
		})
	}
}

func TestType_InstantiateError(t *testing.T) {
	boom := errors.New("no config")
	kind := Define[empty]("Fails", func(Env) (*empty, error) { return nil, boom }).Token("fails")

	_, err := kind.Instantiate(Env{})
	assert.ErrorIs(t, err, boom)
}

func TestType_InstantiatePanic(t *testing.T) {
	kind := Define[empty]("Boom", func(Env) (*empty, error) { panic("ctor exploded") }).Token("boom")

	var err error
	require.NotPanics(t, func() { _, err = kind.Instantiate(Env{}) })
	assert.ErrorIs(t, err, ErrInvalidKind)
	assert.Contains(t, err.Error(), "ctor exploded")
}

func TestHelpLine(t *testing.T) {
	cmds := greetsKind().Commands()

	assert.Equal(t, "!greet (help|hi|hello)", HelpLine("!", "greet", cmds, domain.ScopeRoom))
	assert.Equal(t, "!greet (help|hi|special)", HelpLine("!", "greet", cmds, domain.ScopePrivate))
	assert.Equal(t, "", HelpLine("!", "x", []Descriptor{{Name: "p", Scope: domain.ScopePrivate}}, domain.ScopeRoom))
}
