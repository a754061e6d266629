package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = `{
  "type": "FeatureCollection",
  "features": [
    {"properties": {
      "id": "urn:oid:1",
      "event": "Tornado Warning",
      "headline": "Tornado Warning issued for Jackson County",
      "severity": "Extreme",
      "description": "Take cover now.",
      "effective": "2026-10-19T18:00:00-05:00",
      "expires": "2026-10-19T18:45:00-05:00"
    }},
    {"properties": {
      "id": "urn:oid:2",
      "event": "Wind Advisory",
      "headline": "Wind Advisory until 9 PM",
      "severity": "Moderate",
      "description": "Gusts to 45 mph."
    }}
  ]
}`

func newFeed(t *testing.T) (*httptest.Server, *atomic.Int32, *atomic.Value) {
	t.Helper()
	var hits atomic.Int32
	var lastQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		lastQuery.Store(r.URL.RawQuery)
		if r.Header.Get("User-Agent") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Query().Get("zone") == "BAD" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"bad zone"}`))
			return
		}
		_, _ = w.Write([]byte(feed))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, &lastQuery
}

func TestClient_Alerts(t *testing.T) {
	srv, _, lastQuery := newFeed(t)
	c := NewClient(Config{BaseURL: srv.URL})

	alerts, err := c.Alerts(context.Background(), "moz041")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "zone=MOZ041", lastQuery.Load())

	a := alerts[0]
	assert.Equal(t, "urn:oid:1", a.ID)
	assert.Equal(t, "Tornado Warning", a.Event)
	assert.Equal(t, "Extreme", a.Severity)
	assert.Equal(t, "Take cover now.", a.Description)
	assert.Equal(t, time.Date(2026, 10, 19, 23, 0, 0, 0, time.UTC), a.Effective.UTC())
	assert.True(t, alerts[1].Expires.IsZero())

	_, err = c.Alerts(context.Background(), "mo")
	require.NoError(t, err)
	assert.Equal(t, "area=MO", lastQuery.Load())
}

func TestClient_Cache(t *testing.T) {
	srv, hits, _ := newFeed(t)
	c := NewClient(Config{BaseURL: srv.URL, TTL: time.Minute})
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := c.Alerts(context.Background(), "MOZ041")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())

	now = now.Add(2 * time.Minute)
	_, err := c.Alerts(context.Background(), "MOZ041")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_Errors(t *testing.T) {
	srv, _, _ := newFeed(t)
	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.Alerts(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyZone)

	_, err = c.Alerts(context.Background(), "bad")
	assert.ErrorContains(t, err, "bad zone")
}
