// Package banter answers "!fortune" with a short saying.
package banter

import (
	"context"
	"math/rand/v2"
	"strings"

	"rubot/internal/domain"
	"rubot/internal/usecase/plugins"
)

var Fortunes = []string{
	"You will be hungry again in one hour.",
	"A bug in the hand is better than one as yet undetected.",
	"Today is the first day of the rest of your uptime.",
	"Never trust a computer you can't throw out a window.",
	"The best way to predict the future is to deploy it.\n    -- someone on call",
	"If it compiles, ship it. If it ships, page someone.",
	"Beware of bugs in the above code; I have only proved it correct, not tried it.\n    -- Donald Knuth",
}

type Plugin struct {
	lines []string
	pick  func(n int) int
}

func Kind() plugins.Kind {
	return KindWith(Fortunes, rand.IntN)
}

// KindWith builds the plugin over a fixed set of fortunes and chooser.
func KindWith(lines []string, pick func(n int) int) plugins.Kind {
	return plugins.Define[Plugin]("Banter", func(plugins.Env) (*Plugin, error) {
		return &Plugin{lines: lines, pick: pick}, nil
	}).
		Token("fortune").
		Describe("Fortune cookies on demand").
		Default("fortune", domain.ScopeBoth).
		Command("fortune", (*Plugin).fortune, domain.ScopeBoth).
		Usage("fortune :: tell a fortune")
}

func (p *Plugin) fortune(ctx context.Context, call *plugins.Call) error {
	if len(p.lines) == 0 {
		return nil
	}
	text := p.lines[p.pick(len(p.lines))]
	for _, line := range strings.Split(text, "\n") {
		if err := call.Reply(ctx, line); err != nil {
			return err
		}
	}
	return nil
}
