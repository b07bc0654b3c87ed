package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const openCageURL = "https://api.opencagedata.com/geocode/v1/json"

type openCage struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

type openCageResponse struct {
	Status struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Results []struct {
		Components struct {
			City          string `json:"city"`
			Town          string `json:"town"`
			Village       string `json:"village"`
			Hamlet        string `json:"hamlet"`
			Municipality  string `json:"municipality"`
			Suburb        string `json:"suburb"`
			County        string `json:"county"`
			StateDistrict string `json:"state_district"`
			Country       string `json:"country"`
		} `json:"components"`
	} `json:"results"`
}

func newOpenCage(cfg ProviderConfig, client *http.Client) *openCage {
	o := &openCage{client: client, baseURL: openCageURL, apiKey: cfg.APIKey}
	if cfg.BaseURL != "" {
		o.baseURL = cfg.BaseURL
	}
	return o
}

func (o *openCage) Name() string { return "opencage" }

func (o *openCage) Reverse(ctx context.Context, lat, lon float64) ([]Address, error) {
	q := url.Values{}
	q.Set("q", formatCoord(lat)+","+formatCoord(lon))
	q.Set("key", o.apiKey)
	q.Set("no_annotations", "1")
	q.Set("limit", "1")

	resp, err := getJSON[openCageResponse](ctx, o.client, o.baseURL, q, nil)
	if err != nil {
		return nil, fmt.Errorf("opencage reverse: %w", err)
	}
	if resp.Status.Code != 0 && resp.Status.Code != http.StatusOK {
		return nil, fmt.Errorf("opencage reverse: status %d: %s", resp.Status.Code, resp.Status.Message)
	}

	out := make([]Address, 0, len(resp.Results))
	for _, r := range resp.Results {
		c := r.Components
		out = append(out, Address{
			City:          c.City,
			Town:          c.Town,
			Village:       c.Village,
			Hamlet:        c.Hamlet,
			Municipality:  c.Municipality,
			Suburb:        c.Suburb,
			County:        c.County,
			StateDistrict: c.StateDistrict,
			Country:       c.Country,
		})
	}
	return out, nil
}
