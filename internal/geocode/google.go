package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
)

const googleURL = "https://maps.googleapis.com/maps/api/geocode/json"

type google struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

func newGoogle(cfg ProviderConfig, client *http.Client) *google {
	g := &google{client: client, baseURL: googleURL, apiKey: cfg.APIKey}
	if cfg.BaseURL != "" {
		g.baseURL = cfg.BaseURL
	}
	return g
}

func (g *google) Name() string { return "google" }

func (g *google) Reverse(ctx context.Context, lat, lon float64) ([]Address, error) {
	q := url.Values{}
	q.Set("latlng", formatCoord(lat)+","+formatCoord(lon))
	q.Set("key", g.apiKey)

	resp, err := getJSON[googleResponse](ctx, g.client, g.baseURL, q, nil)
	if err != nil {
		return nil, fmt.Errorf("google reverse: %w", err)
	}
	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("google reverse: %s: %s", resp.Status, resp.ErrorMessage)
	}

	out := make([]Address, 0, len(resp.Results))
	for _, r := range resp.Results {
		var a Address
		for _, c := range r.AddressComponents {
			has := func(t string) bool { return slices.Contains(c.Types, t) }
			switch {
			case has("country"):
				a.Country = c.LongName
			case has("locality"):
				a.City = c.LongName
			case has("postal_town"):
				a.Town = c.LongName
			case has("sublocality"):
				a.Suburb = c.LongName
			case has("administrative_area_level_3"):
				a.Municipality = c.LongName
			case has("administrative_area_level_2"):
				a.County = c.LongName
			}
		}
		out = append(out, a)
	}
	return out, nil
}
