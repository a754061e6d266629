// Package stream reports whether a channel is live.
package stream

import (
	"context"
	"fmt"
	"time"

	"rubot/internal/domain"
	"rubot/internal/usecase/plugins"
)

const lookupTimeout = 10 * time.Second

type Plugin struct {
	svc domain.StreamStatusService
	now func() time.Time
}

func Kind(svc domain.StreamStatusService) plugins.Kind {
	return plugins.Define[Plugin]("Stream", func(plugins.Env) (*Plugin, error) {
		if svc == nil {
			return nil, fmt.Errorf("stream: no status service configured")
		}
		return &Plugin{svc: svc, now: time.Now}, nil
	}).
		Token("live").
		Describe("Is that channel live?").
		Default("status", domain.ScopeBoth).
		Command("status", (*Plugin).status, domain.ScopeBoth).
		Usage("status <channel> :: check whether a channel is streaming")
}

func (p *Plugin) status(ctx context.Context, call *plugins.Call) error {
	fields := call.Fields()
	if len(fields) == 0 {
		return call.Reply(ctx, fmt.Sprintf("usage: %slive <channel>", call.Env().Prefix))
	}
	login := fields[0]

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	st, err := p.svc.Status(lookupCtx, login)
	if err != nil {
		_ = call.Reply(ctx, fmt.Sprintf("Unable to check %s right now", login))
		return err
	}
	if !st.IsLive {
		return call.Reply(ctx, fmt.Sprintf("%s is offline. %s", st.Login, st.URL))
	}

	up := p.now().Sub(st.StartedAt).Truncate(time.Minute)
	text := fmt.Sprintf("%s is live playing %s: %s (%d viewers, up %s) %s",
		st.Login, st.GameTitle, st.Title, st.ViewerCount, up, st.URL)
	return call.Reply(ctx, text)
}
