// Package runtime wires configuration, storage, transports and the plugin
// manager into a running bot.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"rubot/internal/app"
	"rubot/internal/app/events"
	"rubot/internal/domain"
	"rubot/internal/infrastructure/config"
	sqlitestorage "rubot/internal/infrastructure/persistence/sqlite"
	twitchinfra "rubot/internal/infrastructure/platform/twitch"
	weatherinfra "rubot/internal/infrastructure/platform/weather"
	luasource "rubot/internal/infrastructure/scripting/lua"
	kickadapter "rubot/internal/interface/adapters/kick"
	twitchadapter "rubot/internal/interface/adapters/twitch"
	ws "rubot/internal/interface/api/ws"
	"rubot/internal/interface/outs"
	"rubot/internal/logger"
	"rubot/internal/plugins/banter"
	"rubot/internal/plugins/greets"
	"rubot/internal/plugins/stream"
	"rubot/internal/plugins/weather"
	"rubot/internal/usecase/commands"
	"rubot/internal/usecase/handle_message"
	"rubot/internal/usecase/plugins"
)

const shutdownReason = "shutting down"

type Options struct {
	ConfigPath string
}

type Runtime struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	log    *log.Logger

	store      *sqlitestorage.PluginStore
	bus        *events.Bus
	router     *commands.Router
	manager    *plugins.Manager
	transport  *outs.MultiTransport
	platforms  *app.PlatformManager
	interactor *handle_message.Interactor
	wsServer   *ws.Server

	stopOnce sync.Once
	stopErr  error
}

// Start loads the configuration at opts.ConfigPath and starts the bot.
func Start(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return New(ctx, cfg)
}

// New starts the bot described by cfg: the core plugin, every transport that
// is configured and the autoload list.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Connection.Verbose {
		logger.SetVerbose(true)
	}

	dbPath := strings.TrimSpace(cfg.DatabasePath)
	if dbPath == "" {
		dbPath = filepath.Join("data", "rubot.db")
	}
	store, err := sqlitestorage.NewPluginStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Runtime{
		ctx:       runCtx,
		cancel:    cancel,
		cfg:       cfg,
		log:       logger.With("runtime"),
		store:     store,
		bus:       events.NewBus(nil),
		router:    commands.NewRouter(nil),
		transport: outs.NewMultiTransport(),
	}

	r.transport.OnQuit(func(reason string) {
		r.log.Info("quit requested", "reason", reason)
		cancel()
	})

	source, err := r.buildSource()
	if err != nil {
		r.abort()
		return nil, err
	}

	r.manager, err = plugins.NewManager(plugins.Config{
		Router:    r.router,
		Source:    source,
		Transport: r.transport,
		Store:     store,
		Owner:     cfg.OwnerNick,
		Prefix:    cfg.CommandPrefix,
		Bus:       r.bus,
	})
	if err != nil {
		r.abort()
		return nil, err
	}
	if err := r.manager.Start(runCtx); err != nil {
		r.abort()
		return nil, fmt.Errorf("core plugin: %w", err)
	}

	r.interactor = handle_message.NewInteractor(r.router, r.bus)
	r.platforms = app.NewPlatformManager(runCtx, r.transport)
	r.startTransports()
	r.autoload()

	r.log.Info("bot started", "nick", cfg.BotNick, "owner", cfg.OwnerNick, "plugins", r.manager.Names())
	return r, nil
}

func (r *Runtime) buildSource() (plugins.Source, error) {
	static := plugins.NewStaticSource(greets.Kind(), banter.Kind())

	interval := time.Duration(r.cfg.Weather.IntervalSeconds) * time.Second
	alerts := weatherinfra.NewClient(weatherinfra.Config{BaseURL: r.cfg.Weather.AlertsURL})
	if err := static.Add(weather.Kind(alerts, interval)); err != nil {
		return nil, err
	}

	tw := r.cfg.Transports.Twitch
	if tw.HelixEnabled() {
		svc, err := twitchinfra.NewStreamService(twitchinfra.StreamServiceConfig{
			ClientID:    tw.ClientID,
			AccessToken: tw.APIToken,
		})
		if err != nil {
			r.log.Warn("stream plugin unavailable", "err", err)
		} else if err := static.Add(stream.Kind(svc)); err != nil {
			return nil, err
		}
	}

	if dir := strings.TrimSpace(r.cfg.PluginDir); dir != "" {
		return plugins.MultiSource{static, luasource.NewSource(dir, logger.With("lua"))}, nil
	}
	return static, nil
}

func (r *Runtime) startTransports() {
	ts := r.cfg.Transports

	r.wsServer = ws.NewServer(ws.Config{
		Addr:  r.cfg.Addr(),
		Nick:  r.cfg.BotNick,
		Rooms: ts.WebSocket.Rooms,
	})
	r.wsServer.SetHandler(r.interactor.Handle)
	r.wsServer.Forward(r.ctx, r.bus, events.TopicChatMessage, events.TopicPluginLoaded, events.TopicPluginUnloaded)
	r.platforms.Start(domain.PlatformWebSocket, r.wsServer)

	if ts.Twitch.Enabled() {
		adapter := twitchadapter.NewAdapter(twitchadapter.Config{
			Username:   ts.Twitch.Username,
			OAuthToken: formatTwitchOAuthToken(ts.Twitch.OAuthToken),
			Channels:   ts.Twitch.Channels,
		})
		adapter.SetHandler(r.interactor.Handle)
		r.platforms.Start(domain.PlatformTwitch, adapter)
	}

	if ts.Kick.Enabled() {
		adapter := kickadapter.NewAdapter(kickadapter.Config{
			AccessToken:       ts.Kick.AccessToken,
			BroadcasterUserID: ts.Kick.BroadcasterUserID,
			ChatroomID:        ts.Kick.ChatroomID,
		})
		adapter.SetHandler(r.interactor.Handle)
		r.platforms.Start(domain.PlatformKick, adapter)
	}
}

func (r *Runtime) autoload() {
	for _, name := range r.cfg.Autoload {
		if _, err := r.manager.Load(r.ctx, name); err != nil {
			r.log.Warn("autoload failed", "plugin", name, "err", err)
		}
	}
}

// Done is closed once the bot was told to hang up or its parent context ended.
func (r *Runtime) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Runtime) Manager() *plugins.Manager { return r.manager }

func (r *Runtime) Config() *config.Config { return r.cfg }

// Handle feeds msg in as if a transport had delivered it.
func (r *Runtime) Handle(ctx context.Context, msg domain.Message) error {
	return r.interactor.Handle(ctx, msg)
}

// Stop unloads every plugin, disconnects all transports and closes storage.
// Calling it more than once returns the first result.
func (r *Runtime) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		var errs []error
		if err := r.manager.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := r.wsServer.Close(ctx, shutdownReason); err != nil {
			errs = append(errs, err)
		}
		r.cancel()
		r.platforms.StopAll()
		r.bus.Close()
		if err := r.store.Close(); err != nil {
			errs = append(errs, err)
		}
		r.stopErr = errors.Join(errs...)
		r.log.Info("bot stopped")
	})
	return r.stopErr
}

func (r *Runtime) abort() {
	r.cancel()
	if err := r.store.Close(); err != nil {
		r.log.Warn("close store", "err", err)
	}
}

func formatTwitchOAuthToken(token string) string {
	if token == "" || strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}
