// Package lua turns sandboxed Lua scripts into plugin kinds.
package lua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	glua "github.com/yuin/gopher-lua"

	"rubot/internal/usecase/plugins"
)

var ErrStateClosed = errors.New("lua: state is closed")

// RunTimeout bounds a script's top-level code and every command call.
var RunTimeout = 5 * time.Second

// newSandbox opens only the libraries scripts need and removes the ways to
// load more code.
func newSandbox(l *log.Logger, name string) *glua.LState {
	L := glua.NewState(glua.Options{SkipOpenLibs: true})

	glua.OpenBase(L)
	glua.OpenTable(L)
	glua.OpenString(L)
	glua.OpenMath(L)

	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(fn, glua.LNil)
	}

	L.SetGlobal("print", L.NewFunction(func(L *glua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		if l != nil {
			l.Info(strings.Join(parts, "\t"), "script", name)
		}
		return 0
	}))
	return L
}

// script is one live plugin backed by its own Lua state. The state is not
// goroutine-safe, so every entry goes through mu.
type script struct {
	mu     sync.Mutex
	L      *glua.LState
	name   string
	closed bool
}

func newScript(name, code string, l *log.Logger) (*script, error) {
	L := newSandbox(l, name)
	ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	defer cancel()
	L.SetContext(ctx)
	err := protect(func() error { return L.DoString(code) })
	L.RemoveContext()
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("lua: %s: %w", name, err)
	}
	return &script{L: L, name: name}, nil
}

// invoke calls the global function fn with a table describing call.
func (s *script) invoke(ctx context.Context, fn string, call *plugins.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	target := s.L.GetGlobal(fn)
	if target.Type() != glua.LTFunction {
		return fmt.Errorf("lua: %s: %q is not a function", s.name, fn)
	}

	ctx, cancel := context.WithTimeout(ctx, RunTimeout)
	defer cancel()

	arg := s.callTable(ctx, call)
	top := s.L.GetTop()
	s.L.SetContext(ctx)
	err := protect(func() error {
		s.L.Push(target)
		s.L.Push(arg)
		return s.L.PCall(1, 0, nil)
	})
	s.L.RemoveContext()
	s.L.SetTop(top)
	if err != nil {
		return fmt.Errorf("lua: %s.%s: %w", s.name, fn, err)
	}
	return nil
}

func (s *script) callTable(ctx context.Context, call *plugins.Call) *glua.LTable {
	L := s.L
	t := L.NewTable()
	t.RawSetString("nick", glua.LString(call.Nick()))
	t.RawSetString("room", glua.LString(call.Room()))
	t.RawSetString("args", glua.LString(call.Args()))
	t.RawSetString("private", glua.LBool(call.IsPrivate()))
	t.RawSetString("owner", glua.LBool(call.IsOwner()))
	t.RawSetString("reply", L.NewFunction(func(L *glua.LState) int {
		if err := call.Reply(ctx, L.CheckString(1)); err != nil {
			L.RaiseError("reply: %v", err)
		}
		return 0
	}))
	t.RawSetString("msg", L.NewFunction(func(L *glua.LState) int {
		if err := call.Msg(ctx, L.CheckString(1), L.CheckString(2)); err != nil {
			L.RaiseError("msg: %v", err)
		}
		return 0
	}))
	return t
}

func (s *script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.L.Close()
	return nil
}

func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
