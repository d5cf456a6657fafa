package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/relief-net/disaster-intel/internal/geo"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// ORS error codes that trigger the fallback chain.
const (
	orsErrNoRoutablePoint = 2010
	orsErrAltWithAvoid    = 2018
)

// ORSClient is the primary router, talking to the OpenRouteService
// directions API in its GeoJSON shape.
type ORSClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

const orsDefaultBaseURL = "https://api.openrouteservice.org/v2/directions/driving-car/geojson"

// NewORSClient creates the primary routing client.
func NewORSClient(apiKey string, logger *slog.Logger) *ORSClient {
	return &ORSClient{
		baseURL:    orsDefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "ors_client"),
	}
}

// SetBaseURL overrides the upstream URL. Tests point this at a local server.
func (c *ORSClient) SetBaseURL(url string) { c.baseURL = url }

// Name implements Router.
func (c *ORSClient) Name() string { return string(types.ProviderORS) }

type orsRequest struct {
	Coordinates        [][]float64      `json:"coordinates"`
	Instructions       bool             `json:"instructions"`
	InstructionsFormat string           `json:"instructions_format"`
	Language           string           `json:"language"`
	Geometry           bool             `json:"geometry"`
	Elevation          bool             `json:"elevation"`
	Preference         string           `json:"preference"`
	Units              string           `json:"units"`
	AlternativeRoutes  *orsAlternatives `json:"alternative_routes,omitempty"`
	Options            *orsOptions      `json:"options,omitempty"`
}

type orsAlternatives struct {
	ShareFactor  float64 `json:"share_factor"`
	TargetCount  int     `json:"target_count"`
	WeightFactor float64 `json:"weight_factor"`
}

type orsOptions struct {
	AvoidPolygons orsMultiPolygon `json:"avoid_polygons"`
}

type orsMultiPolygon struct {
	Type        string          `json:"type"`
	Coordinates [][][][]float64 `json:"coordinates"`
}

type orsResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Features []struct {
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"` // meters
				Duration float64 `json:"duration"` // seconds
			} `json:"summary"`
			Segments []struct {
				Steps []struct {
					Instruction string          `json:"instruction"`
					Distance    float64         `json:"distance"`
					Duration    float64         `json:"duration"`
					Type        json.RawMessage `json:"type"`
				} `json:"steps"`
			} `json:"segments"`
		} `json:"properties"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// CalculateRoutes implements Router.
//
// ORS rejects alternatives combined with avoid_polygons, so alternatives are
// only requested when no polygons are present.
func (c *ORSClient) CalculateRoutes(ctx context.Context, req RouteRequest) ([]types.Route, error) {
	payload := orsRequest{
		Coordinates: [][]float64{
			{req.Origin.Lon, req.Origin.Lat},
			{req.Destination.Lon, req.Destination.Lat},
		},
		Instructions:       true,
		InstructionsFormat: "text",
		Language:           "en",
		Geometry:           true,
		Preference:         "recommended",
		Units:              "km",
	}
	if req.Alternatives > 1 && len(req.AvoidPolygons) == 0 {
		payload.AlternativeRoutes = &orsAlternatives{
			ShareFactor:  0.6,
			TargetCount:  req.Alternatives - 1,
			WeightFactor: 1.4,
		}
	}
	if len(req.AvoidPolygons) > 0 {
		payload.Options = &orsOptions{AvoidPolygons: toMultiPolygon(req.AvoidPolygons)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ors request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge || resp.StatusCode == http.StatusRequestURITooLong {
		return nil, ErrRequestTooLarge
	}

	var data orsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding ors response: %w", err)
	}

	// ORS reports its own error codes even on non-200 statuses.
	if data.Error != nil {
		switch data.Error.Code {
		case orsErrNoRoutablePoint:
			c.logger.Warn("ors: no routable point", "message", data.Error.Message)
			return nil, fmt.Errorf("%w: %s", ErrNoRoutablePoint, data.Error.Message)
		case orsErrAltWithAvoid:
			return nil, fmt.Errorf("%w: %s", ErrRequestTooLarge, data.Error.Message)
		default:
			return nil, fmt.Errorf("ors error %d: %s", data.Error.Code, data.Error.Message)
		}
	}
	if len(data.Features) == 0 {
		return nil, ErrNoRoutes
	}

	now := time.Now().UTC()
	routes := make([]types.Route, 0, len(data.Features))
	for i, feature := range data.Features {
		duration := feature.Properties.Summary.Duration

		var waypoints []types.Waypoint
		for _, segment := range feature.Properties.Segments {
			for _, step := range segment.Steps {
				waypoints = append(waypoints, types.Waypoint{
					Instruction:     step.Instruction,
					DistanceMi:      step.Distance / geo.MetersPerMile,
					DurationSeconds: step.Duration,
					Type:            stringifyStepType(step.Type),
				})
			}
		}

		routes = append(routes, types.Route{
			RouteID:          fmt.Sprintf("route_%d", i+1),
			DistanceMi:       feature.Properties.Summary.Distance / geo.MetersPerMile,
			DurationSeconds:  duration,
			EstimatedArrival: now.Add(time.Duration(duration * float64(time.Second))),
			Waypoints:        waypoints,
			Geometry:         feature.Geometry.Coordinates,
			Provider:         types.ProviderORS,
		})
	}
	return routes, nil
}

// stringifyStepType normalizes the instruction type: ORS returns integer
// codes, some profiles return strings.
func stringifyStepType(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown"
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.Itoa(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	return "unknown"
}

// toMultiPolygon renders avoidance buffers as a GeoJSON MultiPolygon with
// closed rings.
func toMultiPolygon(polygons []geo.Polygon) orsMultiPolygon {
	coords := make([][][][]float64, 0, len(polygons))
	for _, p := range polygons {
		coords = append(coords, [][][]float64{p.Ring()})
	}
	return orsMultiPolygon{Type: "MultiPolygon", Coordinates: coords}
}
