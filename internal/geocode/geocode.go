// Package geocode provides the reverse-geocoding client used to enrich user
// reports with a human-readable location name before AI analysis.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Geocoder resolves coordinates to a display name. An empty name with a nil
// error means the location could not be resolved; callers fall back to raw
// coordinates.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// Client reverse-geocodes against a Nominatim-shaped endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// NewClient creates a geocoding client.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With("component", "geocoder"),
	}
}

// SetBaseURL overrides the upstream URL. Tests point this at a local server.
func (c *Client) SetBaseURL(url string) { c.baseURL = url }

// ReverseGeocode implements Geocoder. Failures return an empty name and the
// error; callers treat geocoding as optional enrichment.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%f", lat))
	query.Set("lon", fmt.Sprintf("%f", lon))
	query.Set("format", "jsonv2")
	query.Set("zoom", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "disaster-intel/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.DisplayName, nil
}
