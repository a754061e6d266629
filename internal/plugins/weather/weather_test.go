package weather

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rubot/internal/domain"
	"rubot/internal/plugins/plugintest"
	"rubot/internal/usecase/plugins"
)

type fakeAlerts struct {
	mu     sync.Mutex
	alerts map[string][]domain.WeatherAlert
	err    error
}

func (f *fakeAlerts) set(zone string, alerts ...domain.WeatherAlert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alerts == nil {
		f.alerts = make(map[string][]domain.WeatherAlert)
	}
	f.alerts[strings.ToUpper(zone)] = alerts
}

func (f *fakeAlerts) Alerts(_ context.Context, zone string) ([]domain.WeatherAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.alerts[strings.ToUpper(zone)], nil
}

var expires = time.Date(2026, 3, 4, 18, 30, 0, 0, time.UTC)

func tornado() domain.WeatherAlert {
	return domain.WeatherAlert{
		ID:          "urn:1",
		Event:       "Tornado Watch",
		Headline:    "Tornado Watch issued for the county",
		Severity:    "Severe",
		Description: "Conditions are favorable.\n\nTake shelter if warned.",
		Effective:   expires.Add(-2 * time.Hour),
		Expires:     expires,
	}
}

func TestAlerts(t *testing.T) {
	svc := &fakeAlerts{}
	svc.set("KSZ001", tornado())
	h := plugintest.New(t, Kind(svc, time.Hour))
	h.Load(t, "weather")

	require.True(t, h.Say(plugintest.RoomLine("alice", "!wx alerts KSZ001")))
	require.True(t, h.Say(plugintest.RoomLine("alice", "!wx alert ksz002")))
	assert.Equal(t, []string{
		`A "Tornado Watch" for KSZ001 expires Mar 4 18:30 UTC. Tornado Watch issued for the county`,
		"No alerts for ksz002",
	}, h.Transport.Texts())

	h.Transport.Reset()
	require.True(t, h.Say(plugintest.RoomLine("alice", "!wx alerts")))
	assert.Equal(t, []string{"usage: !wx alerts <zone>"}, h.Transport.Texts())
}

func TestAlertsFailure(t *testing.T) {
	svc := &fakeAlerts{err: errors.New("upstream 503")}
	h := plugintest.New(t, Kind(svc, time.Hour))
	h.Load(t, "weather")

	require.True(t, h.Say(plugintest.PrivateLine("alice", "!wx alerts KS")))
	assert.Equal(t, []string{"Unable to fetch alerts for KS"}, h.Transport.Texts())
}

func TestBulletin(t *testing.T) {
	svc := &fakeAlerts{}
	svc.set("KSZ001", tornado())
	h := plugintest.New(t, Kind(svc, time.Hour))
	h.Load(t, "weather")

	require.True(t, h.Say(plugintest.PrivateLine("alice", "!wx bulletin KSZ001")))
	assert.Equal(t, []string{
		"WX Bulletin for KSZ001 has 1 alerts:",
		"Description: Tornado Watch issued for the county",
		"Effective: Mar 4 16:30 UTC",
		"Expires: Mar 4 18:30 UTC",
		"Bulletin: Conditions are favorable.",
		"Bulletin: Take shelter if warned.",
	}, h.Transport.Texts())
}

func TestWatchRepeatsUntilUnloaded(t *testing.T) {
	svc := &fakeAlerts{}
	svc.set("KSZ001", tornado())
	h := plugintest.New(t, Kind(svc, 20*time.Millisecond))
	h.Load(t, "weather")

	c := cookie("KSZ001", plugintest.Room)
	require.True(t, h.Say(plugintest.RoomLine("alice", "!wx watch ksz001")))
	require.Contains(t, h.Transport.Texts(), `Added KSZ001 WX query:  "!wx unwatch `+c+`"  to remove.`)

	require.Eventually(t, func() bool {
		for _, s := range h.Transport.Sent() {
			if strings.HasPrefix(s.Text, `send "!wx unwatch `+c+`" to remove.`) && s.Target == plugintest.Room {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Manager.Unload(context.Background(), "weather"))
	h.Transport.Reset()
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, h.Transport.Texts())
}

func TestWatchQuietWithoutAlerts(t *testing.T) {
	svc := &fakeAlerts{}
	h := plugintest.New(t, Kind(svc, 10*time.Millisecond))
	h.Load(t, "weather")

	require.True(t, h.Say(plugintest.PrivateLine("alice", "!wx watch KS")))
	require.Len(t, h.Transport.Texts(), 1)

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, h.Transport.Texts(), 1)
}

func TestUnwatch(t *testing.T) {
	svc := &fakeAlerts{}
	h := plugintest.New(t, Kind(svc, time.Hour))
	h.Load(t, "weather")

	c := cookie("KS", "alice")
	require.True(t, h.Say(plugintest.PrivateLine("alice", "!wx watch ks")))
	require.True(t, h.Say(plugintest.PrivateLine("alice", "!wx watch ks")))
	require.True(t, h.Say(plugintest.PrivateLine("alice", "!wx unwatch "+c)))
	require.True(t, h.Say(plugintest.PrivateLine("alice", "!wx unwatch "+c)))

	assert.Equal(t, []string{
		`Added KS WX query:  "!wx unwatch ` + c + `"  to remove.`,
		`Already watching KS: "!wx unwatch ` + c + `" to remove.`,
		"Removed watch " + c,
		"No watch with cookie " + c,
	}, h.Transport.Texts())
}

func TestWatchesSurviveReload(t *testing.T) {
	store := plugins.NewMemoryStore()
	svc := &fakeAlerts{}
	h := plugintest.NewWithStore(t, store, Kind(svc, time.Hour))
	h.Load(t, "weather")

	require.True(t, h.Say(plugintest.RoomLine("alice", "!wx watch KSZ001")))
	require.True(t, h.Say(plugintest.PrivateLine(plugintest.Owner, "!wx interval 30")))
	require.NoError(t, h.Manager.Unload(context.Background(), "weather"))

	h.Load(t, "weather")
	h.Transport.Reset()
	require.True(t, h.Say(plugintest.PrivateLine(plugintest.Owner, "!wx watchers")))

	c := cookie("KSZ001", plugintest.Room)
	assert.Equal(t, []string{
		"KSZ001::ws::#lobby::" + c,
		"30 second interval",
	}, h.Transport.Texts())
}

func TestIntervalOwnerOnly(t *testing.T) {
	h := plugintest.New(t, Kind(&fakeAlerts{}, 45*time.Second))
	h.Load(t, "weather")

	require.True(t, h.Say(plugintest.PrivateLine("mallory", "!wx interval 1")))
	require.True(t, h.Say(plugintest.PrivateLine("mallory", "!wx watchers")))
	assert.Empty(t, h.Transport.Texts())

	require.True(t, h.Say(plugintest.PrivateLine(plugintest.Owner, "!wx interval")))
	require.True(t, h.Say(plugintest.PrivateLine(plugintest.Owner, "!wx interval soon")))
	require.True(t, h.Say(plugintest.PrivateLine(plugintest.Owner, "!wx interval 0")))
	require.True(t, h.Say(plugintest.PrivateLine(plugintest.Owner, "!wx interval 120")))
	require.True(t, h.Say(plugintest.PrivateLine(plugintest.Owner, "!wx interval")))

	assert.Equal(t, []string{
		"Interval set at 45 seconds",
		"!wx interval [seconds]",
		"!wx interval [seconds]",
		"Interval set to 120",
		"Interval set at 120 seconds",
	}, h.Transport.Texts())
}

func TestCookieIsStable(t *testing.T) {
	assert.Equal(t, cookie("KS", "#a"), cookie("KS", "#a"))
	assert.NotEqual(t, cookie("KS", "#a"), cookie("KS", "#b"))
	assert.Len(t, cookie("KS", "#a"), 6)
}
