// Package greets is the example plugin: one command per scope and its own help.
package greets

import (
	"context"
	"fmt"

	"rubot/internal/domain"
	"rubot/internal/usecase/plugins"
)

type Plugin struct{}

func Kind() plugins.Kind {
	return plugins.Define[Plugin]("Greets", func(plugins.Env) (*Plugin, error) {
		return &Plugin{}, nil
	}).
		Token("greet").
		Describe("Silly example plugin").
		Command("help", (*Plugin).help, domain.ScopeBoth).
		Command("hi", (*Plugin).hi, domain.ScopeBoth).
		Usage("hi :: say hi").
		Command("hello", (*Plugin).hello, domain.ScopeRoom).
		Usage("hello :: room greeting").
		Command("special", (*Plugin).special, domain.ScopePrivate).
		Usage("special :: private compliment")
}

func (p *Plugin) help(ctx context.Context, call *plugins.Call) error {
	if !call.IsPrivate() {
		text := fmt.Sprintf("Additional features available in private, send %sgreet to get the list", call.Env().Prefix)
		if err := call.Reply(ctx, text); err != nil {
			return err
		}
	}
	return call.Help(ctx)
}

func (p *Plugin) hi(ctx context.Context, call *plugins.Call) error {
	return call.Reply(ctx, call.Nick()+" said hi!")
}

func (p *Plugin) hello(ctx context.Context, call *plugins.Call) error {
	return call.Reply(ctx, "Hello, "+call.Nick())
}

func (p *Plugin) special(ctx context.Context, call *plugins.Call) error {
	return call.Msg(ctx, call.Nick(), "No matter what the others say, to me you are still special!")
}
