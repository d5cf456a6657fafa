package feeds

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// FIRMSAdapter ingests NASA FIRMS satellite wildfire detections. The area
// CSV API returns one row per detection with brightness and fire radiative
// power columns.
type FIRMSAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	scorer  ConfidenceScorer
	logger  *slog.Logger
}

const firmsDefaultBaseURL = "https://firms.modaps.eosdis.nasa.gov/api/area/csv"

// NewFIRMSAdapter creates the satellite wildfire adapter.
func NewFIRMSAdapter(apiKey string, scorer ConfidenceScorer, logger *slog.Logger) *FIRMSAdapter {
	return &FIRMSAdapter{
		baseURL: firmsDefaultBaseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(),
		scorer:  scorer,
		logger:  logger.With("component", "firms_adapter"),
	}
}

// SetBaseURL overrides the upstream URL. Tests point this at a local server.
func (a *FIRMSAdapter) SetBaseURL(url string) { a.baseURL = url }

// FeedType implements Adapter.
func (a *FIRMSAdapter) FeedType() types.FeedType { return types.FeedWildfires }

// Fetch implements Adapter. The FIRMS area API accepts 1-10 day windows.
func (a *FIRMSAdapter) Fetch(ctx context.Context, windowDays int) ([]types.DisasterEvent, error) {
	days := clampWindow(windowDays, 1, 10)
	url := fmt.Sprintf("%s/%s/VIIRS_SNPP_NRT/world/%d", a.baseURL, a.apiKey, days)

	body, err := get(ctx, a.client, url, "text/csv")
	if err != nil {
		return nil, fmt.Errorf("fetching FIRMS detections: %w", err)
	}
	defer body.Close()

	return a.parseCSV(body)
}

func (a *FIRMSAdapter) parseCSV(r io.Reader) ([]types.DisasterEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading FIRMS header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	var events []types.DisasterEvent
	dropped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			dropped++
			continue
		}

		lat, ok1 := csvFloat(row, col, "latitude")
		lon, ok2 := csvFloat(row, col, "longitude")
		if !ok1 || !ok2 || !types.ValidCoordinates(lat, lon) {
			dropped++
			continue
		}

		ts, ok := firmsTimestamp(csvField(row, col, "acq_date"), csvField(row, col, "acq_time"))
		if !ok {
			dropped++
			continue
		}

		brightness, _ := csvFloat(row, col, "bright_ti4")
		frp, _ := csvFloat(row, col, "frp")

		event := types.DisasterEvent{
			ID:          fmt.Sprintf("firms_%.5f_%.5f_%s", lat, lon, ts.Format("20060102T1504")),
			Source:      types.SourceNASAFirms,
			Type:        types.TypeWildfire,
			Latitude:    lat,
			Longitude:   lon,
			Severity:    WildfireSeverity(brightness),
			Timestamp:   ts,
			Brightness:  &brightness,
			FRP:         &frp,
			Description: fmt.Sprintf("Satellite-detected fire (brightness: %.0fK)", brightness),
		}
		a.scorer.ScoreEvent(&event)
		events = append(events, event)
	}

	if dropped > 0 {
		a.logger.Debug("dropped malformed FIRMS rows", "count", dropped)
	}
	return events, nil
}

// WildfireSeverity maps satellite brightness (Kelvin) to the unified
// severity bands.
func WildfireSeverity(brightness float64) types.Severity {
	switch {
	case brightness >= 400:
		return types.SeverityCritical
	case brightness >= 360:
		return types.SeverityHigh
	case brightness >= 330:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func firmsTimestamp(date, hhmm string) (time.Time, bool) {
	if date == "" {
		return time.Time{}, false
	}
	for len(hhmm) < 4 {
		hhmm = "0" + hhmm
	}
	t, err := time.Parse("2006-01-02 1504", date+" "+hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func csvField(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func csvFloat(row []string, col map[string]int, name string) (float64, bool) {
	v, err := strconv.ParseFloat(csvField(row, col, name), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
