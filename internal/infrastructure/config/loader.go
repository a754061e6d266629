// Package config reads the bot's YAML configuration, fills in what is
// missing and writes the corrected file back.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rubot/internal/logger"
)

const DefaultPath = "rubot.yaml"

var (
	ErrCorruptConfig    = errors.New("config: corrupt configuration")
	ErrIncompleteConfig = errors.New("config: incomplete configuration")
)

// connectionSettings must all be present; a missing one is written back with
// its own name as placeholder.
var connectionSettings = []string{"server", "port", "ssl", "realname", "verbose"}

var (
	randN = rand.IntN
	clog  = logger.With("config")
)

type Config struct {
	BotNick        string               `yaml:"bot_nick"`
	OwnerNick      string               `yaml:"owner_nick"`
	Connection     ConnectionParameters `yaml:"connection_parameters"`
	NickservSecret string               `yaml:"nickserv_secret"`

	CommandPrefix string     `yaml:"command_prefix"`
	PluginDir     string     `yaml:"plugin_dir"`
	DatabasePath  string     `yaml:"database_path"`
	Autoload      []string   `yaml:"autoload"`
	Transports    Transports `yaml:"transports"`
	Weather       Weather    `yaml:"weather"`
}

type ConnectionParameters struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	SSL      bool   `yaml:"ssl"`
	Realname string `yaml:"realname"`
	Verbose  bool   `yaml:"verbose"`
}

type Transports struct {
	WebSocket WebSocket `yaml:"websocket"`
	Twitch    Twitch    `yaml:"twitch"`
	Kick      Kick      `yaml:"kick"`
}

type WebSocket struct {
	Addr  string   `yaml:"addr"`
	Rooms []string `yaml:"rooms"`
}

type Twitch struct {
	Username   string   `yaml:"username"`
	OAuthToken string   `yaml:"oauth_token"`
	Channels   []string `yaml:"channels"`
	ClientID   string   `yaml:"client_id"`
	APIToken   string   `yaml:"api_token"`
}

type Kick struct {
	AccessToken       string `yaml:"access_token"`
	BroadcasterUserID int    `yaml:"broadcaster_user_id"`
	ChatroomID        int    `yaml:"chatroom_id"`
}

type Weather struct {
	AlertsURL       string `yaml:"alerts_url"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// Enabled reports whether enough is set to connect to Twitch chat.
func (t Twitch) Enabled() bool {
	return t.Username != "" && t.OAuthToken != "" && len(t.Channels) > 0
}

// HelixEnabled reports whether the stream status API can be used.
func (t Twitch) HelixEnabled() bool {
	return t.ClientID != "" && t.APIToken != ""
}

func (k Kick) Enabled() bool {
	return k.AccessToken != "" && k.ChatroomID != 0 && k.BroadcasterUserID != 0
}

// Addr is the websocket listen address: transports.websocket.addr, or the
// connection server and port.
func (c *Config) Addr() string {
	if c.Transports.WebSocket.Addr != "" {
		return c.Transports.WebSocket.Addr
	}
	if c.Connection.Port > 0 {
		return c.Connection.Server + ":" + strconv.Itoa(c.Connection.Port)
	}
	return ""
}

// Load reads path. A missing file is treated as empty. Defaults for missing
// settings are filled in and the file is always written back, except when
// it does not hold a mapping at all. Environment variables, including those
// from a .env file, override file values afterwards.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}

	root := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		clog.Warn("unable to locate config, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w (%s): %w", ErrCorruptConfig, path, err)
		}
		switch v := raw.(type) {
		case nil:
		case map[string]any:
			root = v
		default:
			return nil, fmt.Errorf("%w (%s): top level is not a mapping", ErrCorruptConfig, path)
		}
	}

	var fatal []error

	if missing(root, "bot_nick") {
		root["bot_nick"] = fmt.Sprintf("UnnamedBot_%d", randN(10000))
		clog.Warn("no bot_nick setting", "using", root["bot_nick"])
	}
	if missing(root, "owner_nick") {
		root["owner_nick"] = os.Getenv("USER")
		clog.Warn("no owner_nick setting", "using", root["owner_nick"])
	}

	if missing(root, "connection_parameters") {
		root["connection_parameters"] = map[string]any{}
	}
	if params, ok := root["connection_parameters"].(map[string]any); !ok {
		fatal = append(fatal, fmt.Errorf("%w (%s): connection_parameters is not a mapping", ErrCorruptConfig, path))
	} else {
		for _, setting := range connectionSettings {
			if missing(params, setting) {
				params[setting] = setting
				clog.Warn("missing connection setting", "setting", setting, "path", path)
				fatal = append(fatal, fmt.Errorf("%w (%s): connection_parameters.%s", ErrIncompleteConfig, path, setting))
			}
		}
	}

	if missing(root, "nickserv_secret") {
		root["nickserv_secret"] = ""
	}

	if err := write(path, root); err != nil {
		return nil, err
	}
	if len(fatal) > 0 {
		return nil, errors.Join(fatal...)
	}

	out, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(out, cfg); err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrCorruptConfig, path, err)
	}

	applyEnv(cfg)
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	return cfg, nil
}

func missing(m map[string]any, key string) bool {
	v, ok := m[key]
	return !ok || v == nil
}

func write(path string, root map[string]any) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.OwnerNick, "RUBOT_OWNER")
	setString(&cfg.BotNick, "RUBOT_NICK")

	tw := &cfg.Transports.Twitch
	setString(&tw.Username, "TWITCH_BOT_USERNAME")
	setString(&tw.OAuthToken, "TWITCH_BOT_ACCESS_TOKEN")
	setString(&tw.ClientID, "TWITCH_CLIENT_ID")
	setString(&tw.APIToken, "TWITCH_API_ACCESS_TOKEN")
	if v := strings.TrimSpace(os.Getenv("TWITCH_BOT_CHANNELS")); v != "" {
		tw.Channels = tw.Channels[:0]
		for _, ch := range strings.Split(v, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				tw.Channels = append(tw.Channels, ch)
			}
		}
	}

	k := &cfg.Transports.Kick
	setString(&k.AccessToken, "KICK_ACCESS_TOKEN")
	setInt(&k.BroadcasterUserID, "KICK_BROADCASTER_USER_ID")
	setInt(&k.ChatroomID, "KICK_CHATROOM_ID")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		clog.Warn("ignoring non-numeric environment value", "key", key)
		return
	}
	*dst = n
}
