package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relief-net/disaster-intel/internal/geo"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// hereMaxPolygons bounds the avoid[areas] parameter; beyond this the URI
// overflows anyway.
const hereMaxPolygons = 20

// HEREClient is the fallback router, talking to the HERE Routing API v8.
// HERE has better rural road coverage than the primary, which is exactly
// when the primary's routable-point errors appear.
type HEREClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

const hereDefaultBaseURL = "https://router.hereapi.com/v8/routes"

// NewHEREClient creates the fallback routing client.
func NewHEREClient(apiKey string, logger *slog.Logger) *HEREClient {
	return &HEREClient{
		baseURL:    hereDefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "here_client"),
	}
}

// SetBaseURL overrides the upstream URL. Tests point this at a local server.
func (c *HEREClient) SetBaseURL(url string) { c.baseURL = url }

// Name implements Router.
func (c *HEREClient) Name() string { return string(types.ProviderHERE) }

type hereResponse struct {
	Routes []struct {
		ID       string `json:"id"`
		Sections []struct {
			Summary struct {
				Duration int `json:"duration"` // seconds
				Length   int `json:"length"`   // meters
			} `json:"summary"`
			Polyline string `json:"polyline"`
			Actions  []struct {
				Action      string  `json:"action"`
				Instruction string  `json:"instruction"`
				Duration    float64 `json:"duration"`
				Length      float64 `json:"length"`
			} `json:"actions"`
		} `json:"sections"`
	} `json:"routes"`
}

// CalculateRoutes implements Router.
func (c *HEREClient) CalculateRoutes(ctx context.Context, req RouteRequest) ([]types.Route, error) {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("transportMode", "car")
	params.Set("origin", fmt.Sprintf("%f,%f", req.Origin.Lat, req.Origin.Lon))
	params.Set("destination", fmt.Sprintf("%f,%f", req.Destination.Lat, req.Destination.Lon))
	params.Set("return", "polyline,summary,actions,instructions")
	if req.Alternatives > 1 {
		params.Set("alternatives", fmt.Sprintf("%d", req.Alternatives-1))
	}
	if len(req.AvoidPolygons) > 0 {
		params.Set("avoid[areas]", formatAvoidAreas(req.AvoidPolygons))
	}

	requestURL := c.baseURL + "?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("here request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusRequestURITooLong:
		return nil, ErrRequestTooLarge
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: here rejected the request", ErrNoRoutablePoint)
	default:
		return nil, fmt.Errorf("here returned status %d", resp.StatusCode)
	}

	var data hereResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding here response: %w", err)
	}
	if len(data.Routes) == 0 {
		return nil, ErrNoRoutes
	}

	now := time.Now().UTC()
	routes := make([]types.Route, 0, len(data.Routes))
	for i, r := range data.Routes {
		var (
			duration  float64
			distanceM float64
			geometry  [][]float64
			waypoints []types.Waypoint
		)
		for _, section := range r.Sections {
			duration += float64(section.Summary.Duration)
			distanceM += float64(section.Summary.Length)
			geometry = append(geometry, decodeFlexPolyline(section.Polyline)...)
			for _, action := range section.Actions {
				waypoints = append(waypoints, types.Waypoint{
					Instruction:     action.Instruction,
					DistanceMi:      action.Length / geo.MetersPerMile,
					DurationSeconds: action.Duration,
					Type:            action.Action,
				})
			}
		}

		routes = append(routes, types.Route{
			RouteID:          fmt.Sprintf("route_%d", i+1),
			DistanceMi:       distanceM / geo.MetersPerMile,
			DurationSeconds:  duration,
			EstimatedArrival: now.Add(time.Duration(duration * float64(time.Second))),
			Waypoints:        waypoints,
			Geometry:         geometry,
			Provider:         types.ProviderHERE,
		})
	}
	return routes, nil
}

// formatAvoidAreas renders buffers in HERE's pipe-separated polygon syntax.
// HERE takes lat,lon order, opposite of GeoJSON.
func formatAvoidAreas(polygons []geo.Polygon) string {
	if len(polygons) > hereMaxPolygons {
		polygons = polygons[:hereMaxPolygons]
	}
	parts := make([]string, 0, len(polygons))
	for _, polygon := range polygons {
		pairs := make([]string, 0, len(polygon))
		for _, v := range polygon {
			pairs = append(pairs, fmt.Sprintf("%f,%f", v[1], v[0]))
		}
		parts = append(parts, "polygon:"+strings.Join(pairs, ";"))
	}
	return strings.Join(parts, "|")
}
