package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	glua "github.com/yuin/gopher-lua"

	"rubot/internal/domain"
	"rubot/internal/logger"
	"rubot/internal/usecase/plugins"
)

const Ext = ".lua"

type command struct {
	name  string
	scope domain.Scope
	usage string
}

type manifest struct {
	name           string
	token          string
	description    string
	defaultCommand string
	defaultScope   domain.Scope
	commands       []command
}

// Source resolves plugin names to "<dir>/<name>.lua" scripts. File names are
// matched ignoring case.
type Source struct {
	dir string
	log *log.Logger
}

func NewSource(dir string, l *log.Logger) *Source {
	if l == nil {
		l = logger.With("lua")
	}
	return &Source{dir: dir, log: l}
}

func (s *Source) Resolve(name string) (plugins.Kind, error) {
	path, err := s.find(plugins.NormalizeName(name))
	if err != nil {
		return nil, err
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lua: read %s: %w", path, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m, err := readManifest(base, string(code), s.log)
	if err != nil {
		return nil, err
	}
	s.log.Debug("script resolved", "path", path, "token", m.token, "commands", len(m.commands))
	return buildKind(m, string(code), s.log), nil
}

func (s *Source) find(key string) (string, error) {
	if s.dir == "" || key == "" {
		return "", fmt.Errorf("%w: %s", plugins.ErrPluginNotFound, key)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", plugins.ErrPluginNotFound, key)
		}
		return "", fmt.Errorf("lua: read plugin dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), Ext) {
			continue
		}
		if strings.EqualFold(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())), key) {
			return filepath.Join(s.dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: %s", plugins.ErrPluginNotFound, key)
}

// readManifest runs the script once in a throwaway state and reads its
// global "plugin" table.
func readManifest(base, code string, l *log.Logger) (manifest, error) {
	sc, err := newScript(base, code, l)
	if err != nil {
		return manifest{}, err
	}
	defer sc.Close()

	L := sc.L
	tbl, ok := L.GetGlobal("plugin").(*glua.LTable)
	if !ok {
		return manifest{}, fmt.Errorf("%w: %s: missing global plugin table", plugins.ErrInvalidKind, base)
	}

	m := manifest{
		name:           stringField(tbl, "name", base),
		token:          stringField(tbl, "token", ""),
		description:    stringField(tbl, "description", ""),
		defaultCommand: stringField(tbl, "default_command", plugins.HelpCommand),
	}
	if m.defaultScope, err = domain.ParseScope(stringField(tbl, "default_scope", "")); err != nil {
		return manifest{}, fmt.Errorf("%w: %s: default_scope: %w", plugins.ErrInvalidKind, base, err)
	}

	cmds, _ := tbl.RawGetString("commands").(*glua.LTable)
	if cmds == nil {
		return m, nil
	}
	for i := 1; i <= cmds.Len(); i++ {
		c := command{}
		switch v := cmds.RawGetInt(i).(type) {
		case glua.LString:
			c.name = string(v)
		case *glua.LTable:
			c.name = stringField(v, "name", "")
			c.usage = stringField(v, "usage", "")
			if c.scope, err = domain.ParseScope(stringField(v, "scope", "")); err != nil {
				return manifest{}, fmt.Errorf("%w: %s: command %d: %w", plugins.ErrInvalidKind, base, i, err)
			}
		default:
			return manifest{}, fmt.Errorf("%w: %s: command %d is a %s", plugins.ErrInvalidKind, base, i, v.Type())
		}
		if fn := L.GetGlobal(funcName(c.name)); fn.Type() != glua.LTFunction {
			return manifest{}, fmt.Errorf("%w: %s: no function %s for command %q", plugins.ErrInvalidKind, base, funcName(c.name), c.name)
		}
		m.commands = append(m.commands, c)
	}
	return m, nil
}

func buildKind(m manifest, code string, l *log.Logger) plugins.Kind {
	t := plugins.Define[script](m.name, func(env plugins.Env) (*script, error) {
		return newScript(m.name, code, l)
	}).
		Token(m.token).
		Default(m.defaultCommand, m.defaultScope)
	if m.description != "" {
		t.Describe(m.description)
	}

	for _, c := range m.commands {
		fn := funcName(c.name)
		t.Command(c.name, func(s *script, ctx context.Context, call *plugins.Call) error {
			return s.invoke(ctx, fn, call)
		}, c.scope)
		if c.usage != "" {
			t.Usage(c.usage)
		}
	}
	return t
}

// funcName maps a command such as "toggle-sound" to its Lua function "toggle_sound".
func funcName(command string) string {
	return strings.ReplaceAll(strings.ToLower(command), "-", "_")
}

func stringField(t *glua.LTable, key, fallback string) string {
	switch v := t.RawGetString(key).(type) {
	case glua.LString:
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	case glua.LNumber:
		return v.String()
	}
	return fallback
}
