package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// NOAAAdapter ingests active alerts from the National Weather Service API.
// Alerts arrive as GeoJSON features; alerts without geometry are dropped
// since they cannot be placed on the map.
type NOAAAdapter struct {
	baseURL string
	client  *http.Client
	scorer  ConfidenceScorer
	logger  *slog.Logger
}

const noaaDefaultBaseURL = "https://api.weather.gov"

// NewNOAAAdapter creates the weather-alert adapter.
func NewNOAAAdapter(scorer ConfidenceScorer, logger *slog.Logger) *NOAAAdapter {
	return &NOAAAdapter{
		baseURL: noaaDefaultBaseURL,
		client:  newHTTPClient(),
		scorer:  scorer,
		logger:  logger.With("component", "noaa_adapter"),
	}
}

// SetBaseURL overrides the upstream URL. Tests point this at a local server.
func (a *NOAAAdapter) SetBaseURL(url string) { a.baseURL = url }

// FeedType implements Adapter.
func (a *NOAAAdapter) FeedType() types.FeedType { return types.FeedWeatherAlerts }

type noaaResponse struct {
	Features []struct {
		ID       string `json:"id"`
		Geometry *struct {
			Type        string `json:"type"`
			Coordinates any    `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			ID        string `json:"id"`
			Event     string `json:"event"`
			Severity  string `json:"severity"`
			Urgency   string `json:"urgency"`
			Certainty string `json:"certainty"`
			Headline  string `json:"headline"`
			AreaDesc  string `json:"areaDesc"`
			Sent      string `json:"sent"`
			Expires   string `json:"expires"`
		} `json:"properties"`
	} `json:"features"`
}

// Fetch implements Adapter. The active-alerts endpoint has no window
// parameter; windowDays is ignored beyond validation.
func (a *NOAAAdapter) Fetch(ctx context.Context, windowDays int) ([]types.DisasterEvent, error) {
	_ = clampWindow(windowDays, 1, 7)

	var resp noaaResponse
	if err := getJSON(ctx, a.client, a.baseURL+"/alerts/active?status=actual", &resp); err != nil {
		return nil, fmt.Errorf("fetching NOAA alerts: %w", err)
	}

	var events []types.DisasterEvent
	dropped := 0
	for _, f := range resp.Features {
		if f.Geometry == nil {
			dropped++
			continue
		}
		lat, lon, ok := geometryCentroid(f.Geometry.Type, f.Geometry.Coordinates)
		if !ok || !types.ValidCoordinates(lat, lon) {
			dropped++
			continue
		}
		sent, ok := parseFlexibleTime(f.Properties.Sent)
		if !ok {
			dropped++
			continue
		}

		id := f.Properties.ID
		if id == "" {
			id = f.ID
		}

		event := types.DisasterEvent{
			ID:           "noaa_" + lastPathSegment(id),
			Source:       types.SourceNOAA,
			Type:         NOAAEventType(f.Properties.Event),
			Latitude:     lat,
			Longitude:    lon,
			Severity:     NOAASeverity(f.Properties.Severity),
			Timestamp:    sent,
			Description:  f.Properties.Event,
			LocationName: f.Properties.AreaDesc,
			AlertLevel:   f.Properties.Severity,
			Urgency:      f.Properties.Urgency,
			Certainty:    f.Properties.Certainty,
			Event:        f.Properties.Event,
		}
		if expires, ok := parseFlexibleTime(f.Properties.Expires); ok {
			event.Expires = &expires
		}
		a.scorer.ScoreEvent(&event)
		events = append(events, event)
	}

	if dropped > 0 {
		a.logger.Debug("dropped NOAA alerts without usable geometry", "count", dropped)
	}
	return events, nil
}

// NOAASeverity maps NWS severity strings onto the unified bands.
func NOAASeverity(severity string) types.Severity {
	switch strings.ToLower(severity) {
	case "extreme":
		return types.SeverityCritical
	case "severe":
		return types.SeverityHigh
	case "moderate":
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// NOAAEventType maps an NWS event name onto the unified taxonomy.
func NOAAEventType(event string) types.DisasterType {
	e := strings.ToLower(event)
	switch {
	case strings.Contains(e, "flood"):
		return types.TypeFlood
	case strings.Contains(e, "hurricane"), strings.Contains(e, "tropical storm"):
		return types.TypeHurricane
	case strings.Contains(e, "tornado"):
		return types.TypeTornado
	case strings.Contains(e, "fire"):
		return types.TypeWildfire
	case strings.Contains(e, "drought"):
		return types.TypeDrought
	default:
		return types.TypeWeatherAlert
	}
}

// geometryCentroid extracts a representative point from a GeoJSON geometry.
// Point geometries return their coordinate; polygons return the vertex
// average of the outer ring.
func geometryCentroid(geomType string, coordinates any) (float64, float64, bool) {
	switch geomType {
	case "Point":
		pair, ok := coordinates.([]any)
		if !ok || len(pair) < 2 {
			return 0, 0, false
		}
		lon, ok1 := toFloat(pair[0])
		lat, ok2 := toFloat(pair[1])
		return lat, lon, ok1 && ok2
	case "Polygon":
		rings, ok := coordinates.([]any)
		if !ok || len(rings) == 0 {
			return 0, 0, false
		}
		return ringCentroid(rings[0])
	case "MultiPolygon":
		polys, ok := coordinates.([]any)
		if !ok || len(polys) == 0 {
			return 0, 0, false
		}
		rings, ok := polys[0].([]any)
		if !ok || len(rings) == 0 {
			return 0, 0, false
		}
		return ringCentroid(rings[0])
	}
	return 0, 0, false
}

func ringCentroid(ring any) (float64, float64, bool) {
	points, ok := ring.([]any)
	if !ok || len(points) == 0 {
		return 0, 0, false
	}
	var sumLat, sumLon float64
	n := 0
	for _, p := range points {
		pair, ok := p.([]any)
		if !ok || len(pair) < 2 {
			continue
		}
		lon, ok1 := toFloat(pair[0])
		lat, ok2 := toFloat(pair[1])
		if !ok1 || !ok2 {
			continue
		}
		sumLat += lat
		sumLon += lon
		n++
	}
	if n == 0 {
		return 0, 0, false
	}
	return sumLat / float64(n), sumLon / float64(n), true
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func lastPathSegment(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
