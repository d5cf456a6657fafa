package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// USGSAdapter ingests earthquakes from the USGS GeoJSON summary feeds.
type USGSAdapter struct {
	baseURL string
	client  *http.Client
	scorer  ConfidenceScorer
	logger  *slog.Logger
}

const usgsDefaultBaseURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary"

// NewUSGSAdapter creates the seismic adapter.
func NewUSGSAdapter(scorer ConfidenceScorer, logger *slog.Logger) *USGSAdapter {
	return &USGSAdapter{
		baseURL: usgsDefaultBaseURL,
		client:  newHTTPClient(),
		scorer:  scorer,
		logger:  logger.With("component", "usgs_adapter"),
	}
}

// SetBaseURL overrides the upstream URL. Tests point this at a local server.
func (a *USGSAdapter) SetBaseURL(url string) { a.baseURL = url }

// FeedType implements Adapter.
func (a *USGSAdapter) FeedType() types.FeedType { return types.FeedEarthquakes }

type usgsResponse struct {
	Features []struct {
		ID         string `json:"id"`
		Properties struct {
			Mag   *float64 `json:"mag"`
			Place string   `json:"place"`
			Time  int64    `json:"time"` // epoch milliseconds
		} `json:"properties"`
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat, depth_km]
		} `json:"geometry"`
	} `json:"features"`
}

// Fetch implements Adapter. The summary feeds cover fixed windows; anything
// above one day uses the weekly feed.
func (a *USGSAdapter) Fetch(ctx context.Context, windowDays int) ([]types.DisasterEvent, error) {
	feed := "all_day.geojson"
	if clampWindow(windowDays, 1, 30) > 1 {
		feed = "all_week.geojson"
	}

	var resp usgsResponse
	if err := getJSON(ctx, a.client, a.baseURL+"/"+feed, &resp); err != nil {
		return nil, fmt.Errorf("fetching USGS earthquakes: %w", err)
	}

	var events []types.DisasterEvent
	dropped := 0
	for _, f := range resp.Features {
		if len(f.Geometry.Coordinates) < 2 || f.Properties.Time == 0 {
			dropped++
			continue
		}
		lon, lat := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
		if !types.ValidCoordinates(lat, lon) {
			dropped++
			continue
		}

		magnitude := 0.0
		if f.Properties.Mag != nil {
			magnitude = *f.Properties.Mag
		}

		event := types.DisasterEvent{
			ID:           "usgs_" + f.ID,
			Source:       types.SourceUSGS,
			Type:         types.TypeEarthquake,
			Latitude:     lat,
			Longitude:    lon,
			Severity:     EarthquakeSeverity(magnitude),
			Timestamp:    time.UnixMilli(f.Properties.Time).UTC(),
			Magnitude:    &magnitude,
			Description:  fmt.Sprintf("Magnitude %.1f earthquake", magnitude),
			LocationName: f.Properties.Place,
		}
		if len(f.Geometry.Coordinates) > 2 {
			depth := f.Geometry.Coordinates[2]
			event.DepthKm = &depth
		}
		a.scorer.ScoreEvent(&event)
		events = append(events, event)
	}

	if dropped > 0 {
		a.logger.Debug("dropped malformed USGS features", "count", dropped)
	}
	return events, nil
}

// EarthquakeSeverity maps magnitude to the unified severity bands.
func EarthquakeSeverity(magnitude float64) types.Severity {
	switch {
	case magnitude >= 7.0:
		return types.SeverityCritical
	case magnitude >= 6.0:
		return types.SeverityHigh
	case magnitude >= 5.0:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}
