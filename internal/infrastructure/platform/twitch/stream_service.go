package twitchinfra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/nicklaw5/helix/v2"

	"rubot/internal/domain"
)

type StreamServiceConfig struct {
	ClientID    string
	AccessToken string
	// APIBaseURL overrides the Helix endpoint, e.g. for a mock server.
	APIBaseURL string
}

// StreamService answers whether a Twitch channel is live.
type StreamService struct {
	client *helix.Client
	mu     sync.RWMutex
}

func NewStreamService(cfg StreamServiceConfig) (*StreamService, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("helix: empty client id")
	}
	client, err := helix.NewClient(&helix.Options{
		ClientID:        cfg.ClientID,
		UserAccessToken: cfg.AccessToken,
		APIBaseURL:      cfg.APIBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("helix: NewClient: %w", err)
	}

	return &StreamService{client: client}, nil
}

func (s *StreamService) Status(ctx context.Context, login string) (domain.StreamStatus, error) {
	login = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(login), "#"))
	if login == "" {
		return domain.StreamStatus{}, errors.New("helix: empty login")
	}

	status := domain.StreamStatus{
		Platform: domain.PlatformTwitch,
		Login:    login,
		URL:      "https://twitch.tv/" + login,
	}

	resp, err := s.getClient().GetStreams(&helix.StreamsParams{
		UserLogins: []string{login},
	})
	if err != nil {
		return status, fmt.Errorf("helix: GetStreams: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("helix: GetStreams failed (%d: %s) %s",
			resp.StatusCode, resp.Error, resp.ErrorMessage)
	}
	if err := ctx.Err(); err != nil {
		return status, err
	}

	if len(resp.Data.Streams) == 0 {
		return status, nil
	}

	stream := resp.Data.Streams[0]
	status.IsLive = true
	status.Title = stream.Title
	status.GameTitle = stream.GameName
	status.ViewerCount = stream.ViewerCount
	status.StartedAt = stream.StartedAt
	return status, nil
}

func (s *StreamService) UpdateAccessToken(token string) {
	if s == nil || s.client == nil {
		return
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.SetUserAccessToken(token)
}

func (s *StreamService) getClient() *helix.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}
