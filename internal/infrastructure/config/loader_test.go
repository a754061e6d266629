package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const complete = `bot_nick: rubot
owner_nick: boss
connection_parameters:
  server: 127.0.0.1
  port: 6667
  ssl: false
  realname: Ru Bot
  verbose: true
command_prefix: "?"
plugin_dir: plugins
autoload: [greets, banter]
transports:
  twitch:
    username: botty
    oauth_token: oauth:abc
    channels: ["#one"]
  kick:
    access_token: k
    broadcaster_user_id: 10
    chatroom_id: 20
weather:
  interval_seconds: 300
`

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"RUBOT_OWNER", "RUBOT_NICK",
		"TWITCH_BOT_USERNAME", "TWITCH_BOT_ACCESS_TOKEN", "TWITCH_BOT_CHANNELS",
		"TWITCH_CLIENT_ID", "TWITCH_API_ACCESS_TOKEN",
		"KICK_ACCESS_TOKEN", "KICK_BROADCASTER_USER_ID", "KICK_CHATROOM_ID",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rubot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func readBack(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, yaml.Unmarshal(data, &out))
	return out
}

func TestLoadComplete(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, complete)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "rubot", cfg.BotNick)
	assert.Equal(t, "boss", cfg.OwnerNick)
	assert.Equal(t, 6667, cfg.Connection.Port)
	assert.True(t, cfg.Connection.Verbose)
	assert.Equal(t, "?", cfg.CommandPrefix)
	assert.Equal(t, []string{"greets", "banter"}, cfg.Autoload)
	assert.True(t, cfg.Transports.Twitch.Enabled())
	assert.False(t, cfg.Transports.Twitch.HelixEnabled())
	assert.True(t, cfg.Transports.Kick.Enabled())
	assert.Equal(t, 300, cfg.Weather.IntervalSeconds)
	assert.Equal(t, "127.0.0.1:6667", cfg.Addr())

	back := readBack(t, path)
	assert.Equal(t, "", back["nickserv_secret"])
}

func TestLoadFillsDefaultsAndWritesBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("USER", "someone")
	prev := randN
	randN = func(int) int { return 42 }
	t.Cleanup(func() { randN = prev })

	path := writeFile(t, "connection_parameters:\n  server: localhost\n  port: 8080\n")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrIncompleteConfig)

	back := readBack(t, path)
	assert.Equal(t, "UnnamedBot_42", back["bot_nick"])
	assert.Equal(t, "someone", back["owner_nick"])
	params := back["connection_parameters"].(map[string]any)
	assert.Equal(t, "localhost", params["server"])
	assert.Equal(t, "ssl", params["ssl"])
	assert.Equal(t, "realname", params["realname"])
	assert.Equal(t, "verbose", params["verbose"])
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "absent.yaml")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrIncompleteConfig)

	back := readBack(t, path)
	assert.Contains(t, back, "bot_nick")
	assert.Contains(t, back, "connection_parameters")
}

func TestLoadCorrupt(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "- just\n- a list\n")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrCorruptConfig)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "- just\n- a list\n", string(data))
}

func TestLoadConnectionNotMapping(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "bot_nick: a\nowner_nick: b\nconnection_parameters: nope\n")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrCorruptConfig)
	assert.Equal(t, "nope", readBack(t, path)["connection_parameters"])
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RUBOT_OWNER", "envboss")
	t.Setenv("TWITCH_BOT_CHANNELS", "#a, #b,")
	t.Setenv("KICK_CHATROOM_ID", "77")
	t.Setenv("KICK_BROADCASTER_USER_ID", "not-a-number")
	path := writeFile(t, complete)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "envboss", cfg.OwnerNick)
	assert.Equal(t, []string{"#a", "#b"}, cfg.Transports.Twitch.Channels)
	assert.Equal(t, 77, cfg.Transports.Kick.ChatroomID)
	assert.Equal(t, 10, cfg.Transports.Kick.BroadcasterUserID)

	assert.Equal(t, "boss", readBack(t, path)["owner_nick"])
}
