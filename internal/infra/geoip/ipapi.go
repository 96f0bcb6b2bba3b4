package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultIPAPIBaseURL = "https://ipapi.co"

// HTTPProvider queries an ipapi.co compatible JSON endpoint.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

type ipapiResponse struct {
	Error       bool     `json:"error"`
	Reason      string   `json:"reason"`
	CountryName string   `json:"country_name"`
	Region      string   `json:"region"`
	City        string   `json:"city"`
	Timezone    string   `json:"timezone"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Org         string   `json:"org"`
}

// NewHTTPProvider builds a provider for baseURL, defaulting to ipapi.co.
func NewHTTPProvider(baseURL string, httpClient *http.Client) *HTTPProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultIPAPIBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPProvider{baseURL: baseURL, httpClient: httpClient}
}

// Lookup fetches {base}/{ip}/json/.
func (p *HTTPProvider) Lookup(ctx context.Context, ip string) (Location, error) {
	if strings.TrimSpace(ip) == "" {
		return Location{}, fmt.Errorf("geoip: empty ip")
	}
	endpoint := p.baseURL + "/" + url.PathEscape(ip) + "/json/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, fmt.Errorf("geoip: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geoip: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Location{}, fmt.Errorf("geoip: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Location{}, fmt.Errorf("geoip: status %d", resp.StatusCode)
	}
	var decoded ipapiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Location{}, fmt.Errorf("geoip: decode response: %w", err)
	}
	if decoded.Error {
		return Location{}, fmt.Errorf("geoip: lookup failed: %s", decoded.Reason)
	}
	return Location{
		Country:   decoded.CountryName,
		Region:    decoded.Region,
		City:      decoded.City,
		Timezone:  decoded.Timezone,
		Latitude:  decoded.Latitude,
		Longitude: decoded.Longitude,
		ISP:       decoded.Org,
	}, nil
}

// Chain tries providers in order and returns the first success.
type Chain []Provider

func (c Chain) Lookup(ctx context.Context, ip string) (Location, error) {
	err := ErrUnavailable
	for _, p := range c {
		if p == nil {
			continue
		}
		loc, lookupErr := p.Lookup(ctx, ip)
		if lookupErr == nil {
			return loc, nil
		}
		err = lookupErr
	}
	return Location{}, err
}
