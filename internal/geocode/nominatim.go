package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	nominatimURL  = "https://nominatim.openstreetmap.org/reverse"
	locationIQURL = "https://us1.locationiq.com/v1/reverse"
	defaultAgent  = "photomanifest"
)

// nominatim talks to the OpenStreetMap Nominatim reverse endpoint. LocationIQ
// serves the same response shape behind an API key.
type nominatim struct {
	name      string
	client    *http.Client
	baseURL   string
	apiKey    string
	userAgent string
	email     string
}

type nominatimResponse struct {
	Error   string `json:"error"`
	Address struct {
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
		Hamlet        string `json:"hamlet"`
		Municipality  string `json:"municipality"`
		Suburb        string `json:"suburb"`
		County        string `json:"county"`
		StateDistrict string `json:"state_district"`
		Country       string `json:"country"`
	} `json:"address"`
}

func newNominatim(cfg ProviderConfig, client *http.Client) *nominatim {
	n := &nominatim{
		name:      "openstreetmap",
		client:    client,
		baseURL:   nominatimURL,
		userAgent: cfg.UserAgent,
		email:     cfg.Email,
	}
	if cfg.BaseURL != "" {
		n.baseURL = cfg.BaseURL
	}
	if n.userAgent == "" {
		n.userAgent = defaultAgent
	}
	return n
}

func newLocationIQ(cfg ProviderConfig, client *http.Client) *nominatim {
	n := newNominatim(cfg, client)
	n.name = "locationiq"
	n.apiKey = cfg.APIKey
	if cfg.BaseURL == "" {
		n.baseURL = locationIQURL
	}
	return n
}

func (n *nominatim) Name() string { return n.name }

func (n *nominatim) Reverse(ctx context.Context, lat, lon float64) ([]Address, error) {
	q := url.Values{}
	q.Set("lat", formatCoord(lat))
	q.Set("lon", formatCoord(lon))
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("zoom", "10")
	if n.apiKey != "" {
		q.Set("key", n.apiKey)
	}
	if n.email != "" {
		q.Set("email", n.email)
	}
	header := http.Header{}
	header.Set("User-Agent", n.userAgent)

	resp, err := getJSON[nominatimResponse](ctx, n.client, n.baseURL, q, header)
	if err != nil {
		return nil, fmt.Errorf("%s reverse: %w", n.name, err)
	}
	if resp.Error != "" {
		// "Unable to geocode" means open water or similar; not a failure.
		if strings.Contains(strings.ToLower(resp.Error), "unable to geocode") {
			return nil, nil
		}
		return nil, fmt.Errorf("%s reverse: %s", n.name, resp.Error)
	}

	a := resp.Address
	return []Address{{
		City:          a.City,
		Town:          a.Town,
		Village:       a.Village,
		Hamlet:        a.Hamlet,
		Municipality:  a.Municipality,
		Suburb:        a.Suburb,
		County:        a.County,
		StateDistrict: a.StateDistrict,
		Country:       a.Country,
	}}, nil
}
