package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rubot/internal/domain"
	"rubot/internal/infrastructure/config"
)

const shoutScript = `
plugin = {
  name = "Shout",
  token = "shout",
  default_command = "up",
  commands = { "up" },
}

function up(call)
  call.reply(string.upper(call.args))
end
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	pluginDir := filepath.Join(dir, "plugins")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "shout.lua"), []byte(shoutScript), 0o600))

	cfg := &config.Config{
		BotNick:       "rubot",
		OwnerNick:     "boss",
		CommandPrefix: "!",
		DatabasePath:  filepath.Join(dir, "rubot.db"),
		PluginDir:     pluginDir,
		Autoload:      []string{"greets", "banter", "shout", "missing"},
	}
	cfg.Transports.WebSocket.Addr = "127.0.0.1:0"
	cfg.Transports.WebSocket.Rooms = []string{"#lobby"}
	return cfg
}

func stop(t *testing.T, r *Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, r.Stop(ctx))
}

func TestNewAutoloads(t *testing.T) {
	r, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer stop(t, r)

	assert.Equal(t, []string{"core", "greets", "banter", "shout"}, r.Manager().Names())
	assert.ElementsMatch(t, []string{"do", "help", "greet", "fortune", "shout"}, r.Manager().Tokens())
}

func TestHangupEndsRuntime(t *testing.T) {
	r, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer stop(t, r)

	require.NoError(t, r.Handle(context.Background(), domain.Message{
		Platform:  domain.PlatformWebSocket,
		Username:  "boss",
		Text:      "!do hangup",
		IsPrivate: true,
	}))

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runtime still running after hangup")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)

	stop(t, r)
	stop(t, r)
	assert.Empty(t, r.Manager().Names())
}

func TestFormatTwitchOAuthToken(t *testing.T) {
	assert.Equal(t, "", formatTwitchOAuthToken(""))
	assert.Equal(t, "oauth:abc", formatTwitchOAuthToken("abc"))
	assert.Equal(t, "oauth:abc", formatTwitchOAuthToken("oauth:abc"))
}
