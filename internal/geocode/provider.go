// Package geocode resolves GPS coordinates to a city and country through a
// reverse-geocoding provider, with a persistent coarse-key cache in front.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Address holds the address components a provider returned for one result.
type Address struct {
	City          string
	Town          string
	Village       string
	Hamlet        string
	Municipality  string
	Suburb        string
	County        string
	StateDistrict string
	Country       string
}

// CityName picks the most specific populated-place name, falling back from
// city to smaller localities and then to administrative areas.
func (a Address) CityName() string {
	for _, v := range []string{
		a.City,
		a.Town,
		a.Village,
		a.Hamlet,
		a.Municipality,
		a.Suburb,
		a.County,
		a.StateDistrict,
	} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Location converts the address into a Location.
func (a Address) Location() Location {
	return NewLocation(a.CityName(), strings.TrimSpace(a.Country))
}

// Provider performs reverse lookups. Results are ordered by confidence,
// highest first.
type Provider interface {
	Name() string
	Reverse(ctx context.Context, lat, lon float64) ([]Address, error)
}

// ErrMissingAPIKey is returned when a provider that needs a key has none.
var ErrMissingAPIKey = errors.New("geocoder API key is not set")

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Name      string
	APIKey    string
	BaseURL   string
	UserAgent string
	Email     string
}

const defaultTimeout = 15 * time.Second

// NewProvider returns the named provider. It returns a nil Provider and nil
// error when the name is empty or "none", which disables geocoding.
func NewProvider(cfg ProviderConfig, client *http.Client) (Provider, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "none":
		return nil, nil
	case "openstreetmap", "osm", "nominatim":
		return newNominatim(cfg, client), nil
	case "locationiq":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("locationiq: %w", ErrMissingAPIKey)
		}
		return newLocationIQ(cfg, client), nil
	case "opencage":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("opencage: %w", ErrMissingAPIKey)
		}
		return newOpenCage(cfg, client), nil
	case "google":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("google: %w", ErrMissingAPIKey)
		}
		return newGoogle(cfg, client), nil
	default:
		return nil, fmt.Errorf("unknown geocoder provider %q", cfg.Name)
	}
}
