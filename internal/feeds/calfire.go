package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// CalFireAdapter ingests active California wildfire incidents from the state
// incident GeoJSON endpoint. Geopolitical bounding is the upstream's: the
// feed only ever covers California, the core never filters by state.
type CalFireAdapter struct {
	baseURL string
	client  *http.Client
	scorer  ConfidenceScorer
	logger  *slog.Logger
}

const calFireDefaultBaseURL = "https://incidents.fire.ca.gov/umbraco/api/IncidentApi/GeoJsonList?inactive=false"

// NewCalFireAdapter creates the state fire-incident adapter.
func NewCalFireAdapter(scorer ConfidenceScorer, logger *slog.Logger) *CalFireAdapter {
	return &CalFireAdapter{
		baseURL: calFireDefaultBaseURL,
		client:  newHTTPClient(),
		scorer:  scorer,
		logger:  logger.With("component", "cal_fire_adapter"),
	}
}

// SetBaseURL overrides the upstream URL. Tests point this at a local server.
func (a *CalFireAdapter) SetBaseURL(url string) { a.baseURL = url }

// FeedType implements Adapter.
func (a *CalFireAdapter) FeedType() types.FeedType { return types.FeedCalFire }

type calFireResponse struct {
	Features []struct {
		Geometry struct {
			Type        string `json:"type"`
			Coordinates any    `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Name             string   `json:"Name"`
			County           string   `json:"County"`
			AcresBurned      *float64 `json:"AcresBurned"`
			PercentContained *float64 `json:"PercentContained"`
			Updated          string   `json:"Updated"`
			Started          string   `json:"Started"`
			IsActive         bool     `json:"IsActive"`
			URL              string   `json:"Url"`
		} `json:"properties"`
	} `json:"features"`
}

// Fetch implements Adapter. The incident list is a snapshot; windowDays only
// trims inactive incidents last updated before the window; active incidents
// are always kept.
func (a *CalFireAdapter) Fetch(ctx context.Context, windowDays int) ([]types.DisasterEvent, error) {
	days := clampWindow(windowDays, 1, 30)
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var resp calFireResponse
	if err := getJSON(ctx, a.client, a.baseURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching Cal Fire incidents: %w", err)
	}

	var events []types.DisasterEvent
	dropped := 0
	for _, f := range resp.Features {
		lat, lon, ok := geometryCentroid(f.Geometry.Type, f.Geometry.Coordinates)
		if !ok || !types.ValidCoordinates(lat, lon) {
			dropped++
			continue
		}

		ts, ok := parseFlexibleTime(f.Properties.Updated)
		if !ok {
			ts, ok = parseFlexibleTime(f.Properties.Started)
		}
		if !ok {
			dropped++
			continue
		}
		if ts.Before(cutoff) && !f.Properties.IsActive {
			continue
		}

		acres := 0.0
		if f.Properties.AcresBurned != nil {
			acres = *f.Properties.AcresBurned
		}

		event := types.DisasterEvent{
			ID:               calFireIncidentID(f.Properties.Name, f.Properties.County, lat, lon),
			Source:           types.SourceCalFire,
			Type:             types.TypeWildfire,
			Latitude:         lat,
			Longitude:        lon,
			Severity:         CalFireSeverity(acres),
			Timestamp:        ts,
			Description:      fmt.Sprintf("%s - %.0f acres", firstNonEmpty(f.Properties.Name, "Wildfire"), acres),
			LocationName:     f.Properties.County,
			County:           f.Properties.County,
			State:            "CA",
			AcresBurned:      f.Properties.AcresBurned,
			PercentContained: f.Properties.PercentContained,
		}
		a.scorer.ScoreEvent(&event)
		events = append(events, event)
	}

	if dropped > 0 {
		a.logger.Debug("dropped Cal Fire incidents without usable geometry", "count", dropped)
	}
	return events, nil
}

// CalFireSeverity maps acreage to the unified severity bands.
func CalFireSeverity(acresBurned float64) types.Severity {
	switch {
	case acresBurned >= 5000:
		return types.SeverityCritical
	case acresBurned >= 1000:
		return types.SeverityHigh
	case acresBurned >= 100:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func calFireIncidentID(name, county string, lat, lon float64) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name+" "+county), " ", "_"))
	if slug == "" || slug == "_" {
		slug = "incident"
	}
	return fmt.Sprintf("cal_fire_%s_%.4f_%.4f", slug, lat, lon)
}
