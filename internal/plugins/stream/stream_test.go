package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rubot/internal/domain"
	"rubot/internal/plugins/plugintest"
)

type fakeStatus struct {
	statuses map[string]domain.StreamStatus
	err      error
	asked    []string
}

func (f *fakeStatus) Status(_ context.Context, login string) (domain.StreamStatus, error) {
	f.asked = append(f.asked, login)
	if f.err != nil {
		return domain.StreamStatus{}, f.err
	}
	st, ok := f.statuses[login]
	if !ok {
		return domain.StreamStatus{Login: login, URL: "https://twitch.tv/" + login}, nil
	}
	return st, nil
}

func TestStatusLive(t *testing.T) {
	started := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	svc := &fakeStatus{statuses: map[string]domain.StreamStatus{
		"streamer": {
			Platform:    domain.PlatformTwitch,
			Login:       "streamer",
			IsLive:      true,
			Title:       "building a bot",
			GameTitle:   "Software and Game Development",
			ViewerCount: 42,
			StartedAt:   started,
			URL:         "https://twitch.tv/streamer",
		},
	}}
	h := plugintest.New(t, Kind(svc))
	inst := h.Load(t, "stream")
	p := inst.Value().(*Plugin)
	p.now = func() time.Time { return started.Add(90*time.Minute + 25*time.Second) }

	require.True(t, h.Say(plugintest.RoomLine("alice", "!live streamer")))
	assert.Equal(t, []string{
		"streamer is live playing Software and Game Development: building a bot (42 viewers, up 1h30m0s) https://twitch.tv/streamer",
	}, h.Transport.Texts())
	assert.Equal(t, []string{"streamer"}, svc.asked)
}

func TestStatusOffline(t *testing.T) {
	svc := &fakeStatus{}
	h := plugintest.New(t, Kind(svc))
	h.Load(t, "stream")

	require.True(t, h.Say(plugintest.PrivateLine("alice", "!live status quiet")))
	sent := h.Transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice", sent[0].Target)
	assert.Equal(t, "quiet is offline. https://twitch.tv/quiet", sent[0].Text)
}

func TestStatusUsageAndFailure(t *testing.T) {
	svc := &fakeStatus{}
	h := plugintest.New(t, Kind(svc))
	h.Load(t, "stream")

	require.True(t, h.Say(plugintest.RoomLine("alice", "!live")))
	assert.Equal(t, []string{"usage: !live <channel>"}, h.Transport.Texts())
	assert.Empty(t, svc.asked)

	h.Transport.Reset()
	svc.err = errors.New("helix down")
	require.True(t, h.Say(plugintest.RoomLine("alice", "!live streamer")))
	assert.Equal(t, []string{"Unable to check streamer right now"}, h.Transport.Texts())
}

func TestNilServiceRefusesToLoad(t *testing.T) {
	h := plugintest.New(t, Kind(nil))
	_, err := h.Manager.Load(context.Background(), "stream")
	require.Error(t, err)
	assert.NotContains(t, h.Manager.Names(), "stream")
}
