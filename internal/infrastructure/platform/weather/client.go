// Package weather fetches active weather alerts from an NWS-style JSON feed.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"rubot/internal/domain"
)

const (
	DefaultBaseURL   = "https://api.weather.gov/alerts/active"
	DefaultTTL       = 600 * time.Second
	DefaultUserAgent = "rubot (chat bot weather plugin)"
)

var ErrEmptyZone = errors.New("weather: empty zone")

type Config struct {
	BaseURL    string
	TTL        time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

type cacheEntry struct {
	alerts  []domain.WeatherAlert
	fetched time.Time
}

// Client implements domain.WeatherAlertService. Results are cached per zone
// for TTL; the cache is shared by command handlers and background watchers.
type Client struct {
	baseURL   string
	ttl       time.Duration
	userAgent string
	http      *http.Client
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		ttl:       cfg.TTL,
		userAgent: cfg.UserAgent,
		http:      cfg.HTTPClient,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
}

func (c *Client) Alerts(ctx context.Context, zone string) ([]domain.WeatherAlert, error) {
	zone = strings.ToUpper(strings.TrimSpace(zone))
	if zone == "" {
		return nil, ErrEmptyZone
	}

	c.mu.Lock()
	entry, ok := c.cache[zone]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetched) < c.ttl {
		return entry.alerts, nil
	}

	alerts, err := c.fetch(ctx, zone)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[zone] = cacheEntry{alerts: alerts, fetched: c.now()}
	c.mu.Unlock()
	return alerts, nil
}

func (c *Client) fetch(ctx context.Context, zone string) ([]domain.WeatherAlert, error) {
	q := url.Values{}
	// two letters is a state or marine area, anything else a zone id
	if len(zone) == 2 {
		q.Set("area", zone)
	} else {
		q.Set("zone", zone)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("weather: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: fetch %s: %w", zone, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("weather: read %s: %w", zone, err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := gjson.GetBytes(body, "detail").String()
		return nil, fmt.Errorf("weather: fetch %s failed (%d) %s", zone, resp.StatusCode, detail)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("weather: fetch %s: invalid json", zone)
	}

	return parseAlerts(body), nil
}

func parseAlerts(body []byte) []domain.WeatherAlert {
	features := gjson.GetBytes(body, "features").Array()
	alerts := make([]domain.WeatherAlert, 0, len(features))
	for _, f := range features {
		p := f.Get("properties")
		alerts = append(alerts, domain.WeatherAlert{
			ID:          p.Get("id").String(),
			Event:       p.Get("event").String(),
			Headline:    p.Get("headline").String(),
			Severity:    p.Get("severity").String(),
			Description: p.Get("description").String(),
			Effective:   parseTime(p.Get("effective").String()),
			Expires:     parseTime(p.Get("expires").String()),
		})
	}
	return alerts
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
