package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"rubot/internal/domain"
	"rubot/internal/logger"
	"rubot/internal/usecase/commands"
)

const (
	// CoreName is the name the administrative plugin is tracked under.
	CoreName = "core"
	// RootHelpToken answers "!help" with the list of loaded plugins.
	RootHelpToken = "help"

	EventLoaded   = "plugin:loaded"
	EventUnloaded = "plugin:unloaded"
)

var errCoreUnload = errors.New("plugins: the core plugin cannot be unloaded")

// Publisher receives load and unload events.
type Publisher interface {
	Publish(topic string, payload any)
}

type Config struct {
	Router    *commands.Router
	Source    Source
	Transport domain.Transport
	Store     domain.PluginStore
	Tokens    *TokenCatalog
	Owner     string
	Prefix    string
	Bus       Publisher
	Logger    *log.Logger
}

// Entry is one row of the plugin listing.
type Entry struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token"`
	Description string `json:"description"`
}

// Manager loads and unloads plugins at runtime and keeps them in load order.
// It is itself served by the core plugin, registered once by Start.
type Manager struct {
	mu sync.Mutex

	router    *commands.Router
	source    Source
	transport domain.Transport
	store     domain.PluginStore
	tokens    *TokenCatalog
	owner     string
	prefix    string
	bus       Publisher
	log       *log.Logger

	core      *Instance
	rootRules []installedRule
	table     map[string]*Instance
	order     []string
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Router == nil {
		return nil, errors.New("plugins: manager needs a router")
	}
	if cfg.Source == nil {
		cfg.Source = NewStaticSource()
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Tokens == nil {
		cfg.Tokens = NewTokenCatalog()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = commands.DefaultPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.With("plugins")
	}

	return &Manager{
		router:    cfg.Router,
		source:    cfg.Source,
		transport: cfg.Transport,
		store:     cfg.Store,
		tokens:    cfg.Tokens,
		owner:     cfg.Owner,
		prefix:    cfg.Prefix,
		bus:       cfg.Bus,
		log:       cfg.Logger,
		table:     make(map[string]*Instance),
	}, nil
}

func (m *Manager) env(name string) Env {
	return Env{
		Name:      name,
		Prefix:    m.prefix,
		Owner:     m.owner,
		Transport: m.transport,
		Store:     NewStore(name, m.store),
		Logger:    m.log,
	}
}

// Start registers the core plugin and the root help rules. It may only run once.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.core != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, CoreName)
	}

	core, err := NewInstance(CoreName, newCoreKind(m), m.env(CoreName), m.router, m.tokens)
	if err != nil {
		return err
	}
	if err := core.Register(ctx); err != nil {
		return err
	}
	if err := m.installRootHelpLocked(); err != nil {
		_ = core.Unregister(ctx)
		return err
	}
	m.core = core
	m.log.Info("core plugin registered", "token", core.Info().Token)
	return nil
}

func (m *Manager) installRootHelpLocked() error {
	if err := m.tokens.Claim(RootHelpToken, CoreName); err != nil {
		return err
	}
	p, err := commands.NewPattern(m.prefix, RootHelpToken, "")
	if err != nil {
		return err
	}
	for _, scope := range domain.ScopeBoth.Expand() {
		if err := m.router.On(scope, p, m.rootHelp); err != nil {
			m.removeRootHelpLocked()
			return err
		}
		m.rootRules = append(m.rootRules, installedRule{scope: scope, pattern: p})
	}
	return nil
}

func (m *Manager) removeRootHelpLocked() error {
	var errs []error
	for _, r := range m.rootRules {
		if err := m.router.Off(r.scope, r.pattern); err != nil {
			errs = append(errs, err)
		}
	}
	m.rootRules = nil
	m.tokens.Release(RootHelpToken, CoreName)
	return errors.Join(errs...)
}

func (m *Manager) rootHelp(ctx context.Context, msg domain.Message, _ string) error {
	return m.sendListing(ctx, msg)
}

// Load resolves sourceName, builds and registers an instance and stores it
// under the normalized name. Nothing is kept when any step fails.
func (m *Manager) Load(ctx context.Context, sourceName string) (*Instance, error) {
	name := NormalizeName(sourceName)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrPluginNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if name == CoreName || m.table[name] != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, name)
	}

	inst, err := m.build(sourceName, name)
	if err != nil {
		return nil, err
	}
	if err := inst.Register(ctx); err != nil {
		if cerr := inst.Close(); cerr != nil {
			m.log.Warn("close after failed register", "plugin", name, "err", cerr)
		}
		return nil, err
	}

	m.table[name] = inst
	m.order = append(m.order, name)
	m.log.Info("plugin loaded", "plugin", name, "token", inst.Info().Token)
	m.publish(EventLoaded, entryOf(inst))
	return inst, nil
}

// build resolves and instantiates a plugin. A panic in a source or a kind
// is reported as ErrInvalidKind so a bad plugin never takes the process down.
func (m *Manager) build(sourceName, name string) (inst *Instance, err error) {
	defer func() {
		if v := recover(); v != nil {
			inst, err = nil, fmt.Errorf("%w: %s panicked: %v", ErrInvalidKind, name, v)
		}
	}()
	kind, err := m.source.Resolve(sourceName)
	if err != nil {
		return nil, err
	}
	return NewInstance(name, kind, m.env(name), m.router, m.tokens)
}

// Unload unregisters and closes the named instance. The instance leaves the
// table even when unregistering fails; the failure is still returned.
func (m *Manager) Unload(ctx context.Context, name string) error {
	key := NormalizeName(name)
	if key == CoreName {
		return errCoreUnload
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.table[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	err := m.discardLocked(ctx, key, inst)
	m.publish(EventUnloaded, entryOf(inst))
	return err
}

func (m *Manager) discardLocked(ctx context.Context, key string, inst *Instance) error {
	err := errors.Join(inst.Unregister(ctx), inst.Close())

	delete(m.table, key)
	for i, n := range m.order {
		if n == key {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}

	if err != nil {
		m.log.Error("plugin unloaded with errors", "plugin", key, "err", err)
	} else {
		m.log.Info("plugin unloaded", "plugin", key)
	}
	return err
}

// Stop unloads every plugin in reverse load order and the core plugin last.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.order) - 1; i >= 0; i-- {
		key := m.order[i]
		inst := m.table[key]
		if err := m.discardLocked(ctx, key, inst); err != nil {
			errs = append(errs, err)
		}
		m.publish(EventUnloaded, entryOf(inst))
	}

	if m.core != nil {
		if err := m.removeRootHelpLocked(); err != nil {
			errs = append(errs, err)
		}
		if err := m.core.Unregister(ctx); err != nil {
			errs = append(errs, err)
		}
		m.core = nil
	}
	return errors.Join(errs...)
}

// List returns the core plugin followed by every loaded plugin in load order.
func (m *Manager) List() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.order)+1)
	if m.core != nil {
		out = append(out, entryOf(m.core))
	}
	for _, name := range m.order {
		out = append(out, entryOf(m.table[name]))
	}
	return out
}

// Names returns the loaded plugin names, core first.
func (m *Manager) Names() []string {
	entries := m.List()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func (m *Manager) Lookup(name string) (*Instance, bool) {
	key := NormalizeName(name)

	m.mu.Lock()
	defer m.mu.Unlock()
	if key == CoreName && m.core != nil {
		return m.core, true
	}
	inst, ok := m.table[key]
	return inst, ok
}

// Tokens lists the tokens currently claimed.
func (m *Manager) Tokens() []string { return m.tokens.Tokens() }

// ListingLines renders List the way "!do list" and "!help" print it.
func (m *Manager) ListingLines() []string {
	lines := []string{
		"loaded plugins in order of appearance: ",
		"   Token Name            Description",
	}
	for _, e := range m.List() {
		name := e.DisplayName
		if len(name) > 14 {
			name = name[:14]
		}
		lines = append(lines, fmt.Sprintf("%8s %-15s %s", m.prefix+e.Token, name, e.Description))
	}
	return lines
}

// sendListing answers privately, or in the room when the transport cannot
// reach the sender directly.
func (m *Manager) sendListing(ctx context.Context, msg domain.Message) error {
	var errs []error
	for _, line := range m.ListingLines() {
		if err := m.sendPrivate(ctx, msg, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) sendPrivate(ctx context.Context, msg domain.Message, text string) error {
	if m.transport == nil {
		return errNoTransport
	}
	err := m.transport.SendMessage(ctx, msg.Platform, msg.Username, text)
	if errors.Is(err, domain.ErrUnsupported) && msg.Scope() == domain.ScopeRoom {
		return m.transport.SendMessage(ctx, msg.Platform, msg.ChannelID, text)
	}
	return err
}

func (m *Manager) publish(topic string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, payload)
}

func entryOf(inst *Instance) Entry {
	info := inst.Info()
	return Entry{
		Name:        inst.Name(),
		DisplayName: info.Name,
		Token:       info.Token,
		Description: strings.TrimSpace(info.Description),
	}
}
