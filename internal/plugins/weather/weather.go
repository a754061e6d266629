// Package weather reports weather alerts on demand and watches zones in the
// background, repeating active alerts to whoever asked.
package weather

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"rubot/internal/domain"
	"rubot/internal/usecase/plugins"
)

const (
	DefaultInterval = 600 * time.Second

	watchesKey   = "watches"
	intervalKey  = "interval"
	storeTimeout = 5 * time.Second
	fetchTimeout = 15 * time.Second
	timeLayout   = "Jan 2 15:04 MST"
)

type watch struct {
	Zone     string          `json:"zone"`
	Platform domain.Platform `json:"platform"`
	Target   string          `json:"target"`
	Cookie   string          `json:"cookie"`
}

type Plugin struct {
	env plugins.Env
	svc domain.WeatherAlertService

	mu       sync.Mutex
	watches  []watch
	interval time.Duration
	wake     chan struct{}
}

// Kind builds the weather plugin. interval is the default polling period of
// the background watcher; a stored interval takes precedence.
func Kind(svc domain.WeatherAlertService, interval time.Duration) plugins.Kind {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return plugins.Define[Plugin]("Weather", func(env plugins.Env) (*Plugin, error) {
		if svc == nil {
			return nil, fmt.Errorf("weather: no alert service configured")
		}
		p := &Plugin{
			env:      env,
			svc:      svc,
			interval: interval,
			wake:     make(chan struct{}, 1),
		}
		p.restore()
		return p, nil
	}).
		Token("wx").
		Describe("Weather Information").
		Command("alerts", (*Plugin).alerts, domain.ScopeBoth).
		Usage("alerts <zone> :: active alerts for a zone or state").
		Command("alert", (*Plugin).alerts, domain.ScopeBoth).
		Usage("alert <zone> :: same as alerts").
		Command("bulletin", (*Plugin).bulletin, domain.ScopeBoth).
		Usage("bulletin <zone> :: full text of active alerts").
		Command("watch", (*Plugin).watch, domain.ScopeBoth).
		Usage("watch <zone> :: repeat alerts for a zone here while they are active").
		Command("unwatch", (*Plugin).unwatch, domain.ScopeBoth).
		Usage("unwatch <cookie> :: stop a watch").
		Command("watchers", (*Plugin).watchers, domain.ScopeBoth).
		Usage("(owner) watchers :: list watches").
		Command("interval", (*Plugin).setInterval, domain.ScopeBoth).
		Usage("(owner) interval [seconds] :: show or set the watch interval")
}

func (p *Plugin) alerts(ctx context.Context, call *plugins.Call) error {
	zone := strings.TrimSpace(call.Args())
	if zone == "" {
		return call.Reply(ctx, fmt.Sprintf("usage: %swx alerts <zone>", call.Env().Prefix))
	}

	alerts, err := p.fetch(ctx, zone)
	if err != nil {
		_ = call.Reply(ctx, fmt.Sprintf("Unable to fetch alerts for %s", zone))
		return err
	}
	if len(alerts) == 0 {
		return call.Reply(ctx, fmt.Sprintf("No alerts for %s", zone))
	}
	for _, a := range alerts {
		if err := call.Reply(ctx, summary(zone, a)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plugin) bulletin(ctx context.Context, call *plugins.Call) error {
	zone := strings.TrimSpace(call.Args())
	if zone == "" {
		return call.Reply(ctx, fmt.Sprintf("usage: %swx bulletin <zone>", call.Env().Prefix))
	}

	alerts, err := p.fetch(ctx, zone)
	if err != nil {
		_ = call.Reply(ctx, fmt.Sprintf("Unable to fetch alerts for %s", zone))
		return err
	}
	if len(alerts) == 0 {
		return call.Reply(ctx, fmt.Sprintf("No alerts for %s", zone))
	}

	lines := []string{fmt.Sprintf("WX Bulletin for %s has %d alerts:", zone, len(alerts))}
	for _, a := range alerts {
		lines = append(lines,
			"Description: "+a.Headline,
			"Effective: "+formatTime(a.Effective),
			"Expires: "+formatTime(a.Expires),
		)
		for _, line := range strings.Split(strings.TrimSpace(a.Description), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, "Bulletin: "+line)
			}
		}
	}
	for _, line := range lines {
		if err := call.Reply(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plugin) watch(ctx context.Context, call *plugins.Call) error {
	zone := strings.ToUpper(strings.TrimSpace(call.Args()))
	if zone == "" {
		return call.Reply(ctx, fmt.Sprintf("usage: %swx watch <zone>", call.Env().Prefix))
	}

	target := call.Room()
	if target == "" {
		target = call.Nick()
	}
	w := watch{Zone: zone, Platform: call.Platform(), Target: target, Cookie: cookie(zone, target)}

	p.mu.Lock()
	for _, existing := range p.watches {
		if existing.Cookie == w.Cookie {
			p.mu.Unlock()
			return call.Reply(ctx, fmt.Sprintf("Already watching %s: \"%swx unwatch %s\" to remove.", zone, call.Env().Prefix, w.Cookie))
		}
	}
	p.watches = append(p.watches, w)
	p.mu.Unlock()
	p.persist()

	return call.Reply(ctx, fmt.Sprintf("Added %s WX query:  \"%swx unwatch %s\"  to remove.", zone, call.Env().Prefix, w.Cookie))
}

func (p *Plugin) unwatch(ctx context.Context, call *plugins.Call) error {
	c := strings.TrimSpace(call.Args())
	if c == "" {
		return call.Reply(ctx, fmt.Sprintf("usage: %swx unwatch <cookie>", call.Env().Prefix))
	}

	p.mu.Lock()
	removed := false
	kept := p.watches[:0]
	for _, w := range p.watches {
		if w.Cookie == c {
			removed = true
			continue
		}
		kept = append(kept, w)
	}
	p.watches = kept
	p.mu.Unlock()

	if !removed {
		return call.Reply(ctx, fmt.Sprintf("No watch with cookie %s", c))
	}
	p.persist()
	return call.Reply(ctx, fmt.Sprintf("Removed watch %s", c))
}

func (p *Plugin) watchers(ctx context.Context, call *plugins.Call) error {
	if !call.IsOwner() {
		return nil
	}

	p.mu.Lock()
	watches := append([]watch(nil), p.watches...)
	interval := p.interval
	p.mu.Unlock()

	for _, w := range watches {
		line := strings.Join([]string{w.Zone, string(w.Platform), w.Target, w.Cookie}, "::")
		if err := call.Msg(ctx, call.Nick(), line); err != nil {
			return err
		}
	}
	return call.Msg(ctx, call.Nick(), fmt.Sprintf("%d second interval", int(interval.Seconds())))
}

func (p *Plugin) setInterval(ctx context.Context, call *plugins.Call) error {
	if !call.IsOwner() {
		return nil
	}

	arg := strings.TrimSpace(call.Args())
	if arg == "" {
		p.mu.Lock()
		interval := p.interval
		p.mu.Unlock()
		return call.Reply(ctx, fmt.Sprintf("Interval set at %d seconds", int(interval.Seconds())))
	}

	secs, err := strconv.Atoi(arg)
	if err != nil || secs <= 0 {
		return call.Reply(ctx, fmt.Sprintf("%swx interval [seconds]", call.Env().Prefix))
	}

	p.mu.Lock()
	p.interval = time.Duration(secs) * time.Second
	p.mu.Unlock()
	p.persist()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return call.Reply(ctx, fmt.Sprintf("Interval set to %d", secs))
}

// Run polls every watched zone once per interval until ctx is cancelled.
func (p *Plugin) Run(ctx context.Context) {
	for {
		p.mu.Lock()
		interval := p.interval
		p.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
			p.poll(ctx)
		}
	}
}

func (p *Plugin) poll(ctx context.Context) {
	p.mu.Lock()
	watches := append([]watch(nil), p.watches...)
	interval := p.interval
	p.mu.Unlock()

	for _, w := range watches {
		if ctx.Err() != nil {
			return
		}
		alerts, err := p.fetch(ctx, w.Zone)
		if err != nil {
			p.env.Logger.Warn("watch fetch failed", "plugin", p.env.Name, "zone", w.Zone, "err", err)
			continue
		}
		if len(alerts) == 0 {
			p.env.Logger.Debug("no alerts", "plugin", p.env.Name, "zone", w.Zone)
			continue
		}

		lines := make([]string, 0, len(alerts)+1)
		for _, a := range alerts {
			lines = append(lines, summary(w.Zone, a))
		}
		lines = append(lines, fmt.Sprintf("send \"%swx unwatch %s\" to remove.  (Repeats every %d seconds while alerts are active)",
			p.env.Prefix, w.Cookie, int(interval.Seconds())))

		for _, line := range lines {
			// stop mid-watch as soon as the plugin is unloaded
			if ctx.Err() != nil {
				return
			}
			if err := p.env.Send(ctx, w.Platform, w.Target, line); err != nil {
				p.env.Logger.Warn("watch send failed", "plugin", p.env.Name, "target", w.Target, "err", err)
				break
			}
		}
	}
}

func (p *Plugin) fetch(ctx context.Context, zone string) ([]domain.WeatherAlert, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	return p.svc.Alerts(ctx, zone)
}

func (p *Plugin) restore() {
	if p.env.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if raw, ok, err := p.env.Store.Get(ctx, watchesKey); err != nil {
		p.env.Logger.Warn("restore watches", "plugin", p.env.Name, "err", err)
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &p.watches); err != nil {
			p.env.Logger.Warn("decode watches", "plugin", p.env.Name, "err", err)
			p.watches = nil
		}
	}

	if raw, ok, err := p.env.Store.Get(ctx, intervalKey); err == nil && ok {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			p.interval = time.Duration(secs) * time.Second
		}
	}
}

func (p *Plugin) persist() {
	if p.env.Store == nil {
		return
	}
	p.mu.Lock()
	encoded, err := json.Marshal(p.watches)
	interval := int(p.interval.Seconds())
	p.mu.Unlock()
	if err != nil {
		p.env.Logger.Warn("encode watches", "plugin", p.env.Name, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := p.env.Store.Put(ctx, watchesKey, string(encoded)); err != nil {
		p.env.Logger.Warn("persist watches", "plugin", p.env.Name, "err", err)
	}
	if err := p.env.Store.Put(ctx, intervalKey, strconv.Itoa(interval)); err != nil {
		p.env.Logger.Warn("persist interval", "plugin", p.env.Name, "err", err)
	}
}

func summary(zone string, a domain.WeatherAlert) string {
	return fmt.Sprintf("A %q for %s expires %s. %s", a.Event, zone, formatTime(a.Expires), a.Headline)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(timeLayout)
}

// cookie is a short handle for a watch, stable for the same zone and target.
func cookie(zone, target string) string {
	sum := sha1.Sum([]byte(zone + target))
	return hex.EncodeToString(sum[:])[:6]
}
