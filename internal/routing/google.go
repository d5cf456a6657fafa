package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/relief-net/disaster-intel/internal/geo"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// GoogleClient produces the baseline shortest-path route via the Routes API.
// The baseline carries no avoidance: it exists so the client can show what
// the unavoided path would have been, scored against the same disasters.
type GoogleClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

const googleDefaultBaseURL = "https://routes.googleapis.com/directions/v2:computeRoutes"

// NewGoogleClient creates the baseline routing client.
func NewGoogleClient(apiKey string, logger *slog.Logger) *GoogleClient {
	return &GoogleClient{
		baseURL:    googleDefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "google_client"),
	}
}

// SetBaseURL overrides the upstream URL. Tests point this at a local server.
func (c *GoogleClient) SetBaseURL(url string) { c.baseURL = url }

// Name implements BaselineRouter.
func (c *GoogleClient) Name() string { return string(types.ProviderGoogle) }

type googleRequest struct {
	Origin            googleWaypoint `json:"origin"`
	Destination       googleWaypoint `json:"destination"`
	TravelMode        string         `json:"travelMode"`
	RoutingPreference string         `json:"routingPreference"`
}

type googleWaypoint struct {
	Location struct {
		LatLng struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"latLng"`
	} `json:"location"`
}

type googleResponse struct {
	Routes []struct {
		DistanceMeters float64 `json:"distanceMeters"`
		Duration       string  `json:"duration"` // "1234s"
		Polyline       struct {
			EncodedPolyline string `json:"encodedPolyline"`
		} `json:"polyline"`
	} `json:"routes"`
}

// BaselineRoute implements BaselineRouter.
func (c *GoogleClient) BaselineRoute(ctx context.Context, origin, destination types.LatLon) (*types.Route, error) {
	var payload googleRequest
	payload.Origin.Location.LatLng.Latitude = origin.Lat
	payload.Origin.Location.LatLng.Longitude = origin.Lon
	payload.Destination.Location.LatLng.Latitude = destination.Lat
	payload.Destination.Location.LatLng.Longitude = destination.Lon
	payload.TravelMode = "DRIVE"
	payload.RoutingPreference = "TRAFFIC_UNAWARE"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google routes request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google routes returned status %d", resp.StatusCode)
	}

	var data googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding google response: %w", err)
	}
	if len(data.Routes) == 0 {
		return nil, ErrNoRoutes
	}

	r := data.Routes[0]
	duration := parseGoogleDuration(r.Duration)
	now := time.Now().UTC()

	return &types.Route{
		RouteID:          "route_baseline",
		DistanceMi:       r.DistanceMeters / geo.MetersPerMile,
		DurationSeconds:  duration,
		EstimatedArrival: now.Add(time.Duration(duration * float64(time.Second))),
		Waypoints:        []types.Waypoint{},
		Geometry:         decodeGooglePolyline(r.Polyline.EncodedPolyline),
		Provider:         types.ProviderGoogle,
	}, nil
}

// parseGoogleDuration parses the protobuf duration rendering ("1234s").
func parseGoogleDuration(v string) float64 {
	seconds, err := strconv.ParseFloat(strings.TrimSuffix(v, "s"), 64)
	if err != nil {
		return 0
	}
	return seconds
}
