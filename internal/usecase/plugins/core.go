package plugins

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"rubot/internal/domain"
	"rubot/internal/logger"
)

var roomRe = regexp.MustCompile(`^#[\w-]+$`)

type corePlugin struct {
	m *Manager
}

func newCoreKind(m *Manager) Kind {
	return Define[corePlugin]("Core", func(Env) (*corePlugin, error) {
		return &corePlugin{m: m}, nil
	}).
		Token("do").
		Describe("Core plugin for administrative tasks.").
		Default(HelpCommand, domain.ScopePrivate).
		Command("load", (*corePlugin).load, domain.ScopePrivate).
		Usage("load <plugin> [plugin]... :: load plugins by name").
		Command("unload", (*corePlugin).unload, domain.ScopePrivate).
		Usage("unload <plugin> [plugin]... :: unload plugins by name").
		Command("list", (*corePlugin).list, domain.ScopePrivate).
		Usage("list :: show loaded plugins in order of appearance").
		Command(HelpCommand, (*corePlugin).help, domain.ScopePrivate).
		Usage("help [command] :: list commands or explain one").
		Command("join", (*corePlugin).join, domain.ScopePrivate).
		Usage("(owner) join <#room> [#room]... :: join rooms").
		Command("part", (*corePlugin).part, domain.ScopePrivate).
		Usage("(owner) part <#room> [#room]... :: leave rooms").
		Command("hangup", (*corePlugin).hangup, domain.ScopePrivate).
		Usage("(owner) hangup :: disconnect and shut down").
		Command("toggle-verbosity", (*corePlugin).toggleVerbosity, domain.ScopePrivate).
		Usage("(owner) toggle-verbosity :: switch debug logging on or off")
}

func (p *corePlugin) load(ctx context.Context, call *Call) error {
	names := call.Fields()
	if len(names) == 0 {
		return call.Msg(ctx, call.Nick(), "usage: load <plugin> [plugin]...")
	}

	var errs []error
	for _, name := range names {
		var text string
		_, err := p.m.Load(ctx, name)
		switch {
		case err == nil:
			text = fmt.Sprintf("%s loaded.", name)
		case errors.Is(err, ErrPluginNotFound):
			text = fmt.Sprintf("Unable to find plugin %s", name)
		default:
			text = fmt.Sprintf("Unable to load plugin %s: %v", name, err)
			call.Logger().Warn("load failed", "plugin", name, "by", call.Nick(), "err", err)
		}
		if err := call.Msg(ctx, call.Nick(), text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *corePlugin) unload(ctx context.Context, call *Call) error {
	names := call.Fields()
	if len(names) == 0 {
		return call.Msg(ctx, call.Nick(), "usage: unload <plugin> [plugin]...")
	}

	var errs []error
	for _, name := range names {
		var text string
		err := p.m.Unload(ctx, name)
		switch {
		case err == nil:
			text = fmt.Sprintf("%s unloaded.", name)
		case errors.Is(err, ErrNotLoaded):
			text = fmt.Sprintf("Unable to find plugin %s", name)
		default:
			text = fmt.Sprintf("Unable to unload plugin %s: %v", name, err)
			call.Logger().Warn("unload failed", "plugin", name, "by", call.Nick(), "err", err)
		}
		if err := call.Msg(ctx, call.Nick(), text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *corePlugin) list(ctx context.Context, call *Call) error {
	return p.m.sendListing(ctx, call.Message())
}

func (p *corePlugin) help(ctx context.Context, call *Call) error {
	fields := call.Fields()
	if len(fields) == 0 {
		if err := call.Help(ctx); err != nil {
			return err
		}
		return call.Msg(ctx, call.Nick(), fmt.Sprintf("try %sdo help <command>", call.Env().Prefix))
	}

	for _, d := range call.inst.kind.Commands() {
		if d.Name == fields[0] && !d.Hidden() {
			return call.Msg(ctx, call.Nick(), d.Usage)
		}
	}
	return call.Msg(ctx, call.Nick(), fmt.Sprintf("no such command: %s", fields[0]))
}

func (p *corePlugin) join(ctx context.Context, call *Call) error {
	if !call.IsOwner() {
		return nil
	}
	var errs []error
	for _, room := range call.Fields() {
		if !roomRe.MatchString(room) {
			continue
		}
		call.Logger().Info("joining", "room", room)
		if err := call.Join(ctx, room); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *corePlugin) part(ctx context.Context, call *Call) error {
	if !call.IsOwner() {
		return nil
	}
	var errs []error
	for _, room := range call.Fields() {
		if !roomRe.MatchString(room) {
			continue
		}
		call.Logger().Info("leaving", "room", room)
		if err := call.Part(ctx, room); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *corePlugin) hangup(ctx context.Context, call *Call) error {
	if !call.IsOwner() {
		return nil
	}
	call.Logger().Info("owner hangup", "by", call.Nick())
	return call.Quit(ctx, "Disconnecting")
}

func (p *corePlugin) toggleVerbosity(ctx context.Context, call *Call) error {
	if !call.IsOwner() {
		return nil
	}
	on := logger.ToggleVerbose()
	call.Logger().Info("verbosity toggled", "verbose", on)
	state := "off"
	if on {
		state = "on"
	}
	return call.Msg(ctx, call.Nick(), "Verbosity: "+state)
}
