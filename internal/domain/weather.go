package domain

import (
	"context"
	"time"
)

type WeatherAlert struct {
	ID          string
	Event       string
	Headline    string
	Severity    string
	Description string
	Effective   time.Time
	Expires     time.Time
}

type WeatherAlertService interface {
	// Alerts returns the active alerts for a zone or area code.
	Alerts(ctx context.Context, zone string) ([]WeatherAlert, error)
}
