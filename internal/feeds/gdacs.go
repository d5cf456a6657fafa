package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// GDACSAdapter ingests the GDACS global alert RSS feed. Event type and alert
// level live in the gdacs: namespace; georss:point carries "lat lon".
type GDACSAdapter struct {
	baseURL string
	client  *http.Client
	scorer  ConfidenceScorer
	logger  *slog.Logger
}

const gdacsDefaultFeedURL = "https://www.gdacs.org/xml/rss.xml"

// NewGDACSAdapter creates the global aggregator adapter.
func NewGDACSAdapter(scorer ConfidenceScorer, logger *slog.Logger) *GDACSAdapter {
	return &GDACSAdapter{
		baseURL: gdacsDefaultFeedURL,
		client:  newHTTPClient(),
		scorer:  scorer,
		logger:  logger.With("component", "gdacs_adapter"),
	}
}

// SetBaseURL overrides the upstream URL. Tests point this at a local server.
func (a *GDACSAdapter) SetBaseURL(url string) { a.baseURL = url }

// FeedType implements Adapter.
func (a *GDACSAdapter) FeedType() types.FeedType { return types.FeedGDACS }

type gdacsRSS struct {
	Channel struct {
		Items []gdacsItem `xml:"item"`
	} `xml:"channel"`
}

type gdacsItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Point       string `xml:"http://www.georss.org/georss point"`
	EventType   string `xml:"http://www.gdacs.org eventtype"`
	EventID     string `xml:"http://www.gdacs.org eventid"`
	AlertLevel  string `xml:"http://www.gdacs.org alertlevel"`
	FromDate    string `xml:"http://www.gdacs.org fromdate"`
	Country     string `xml:"http://www.gdacs.org country"`
	EventName   string `xml:"http://www.gdacs.org eventname"`
	Description string `xml:"description"`
}

// Fetch implements Adapter. The RSS feed always covers the recent window;
// windowDays filters out older items.
func (a *GDACSAdapter) Fetch(ctx context.Context, windowDays int) ([]types.DisasterEvent, error) {
	days := clampWindow(windowDays, 1, 7)
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var feed gdacsRSS
	if err := getXML(ctx, a.client, a.baseURL, &feed); err != nil {
		return nil, fmt.Errorf("fetching GDACS feed: %w", err)
	}

	var events []types.DisasterEvent
	dropped := 0
	for _, item := range feed.Channel.Items {
		lat, lon, ok := parseGeoRSSPoint(item.Point)
		if !ok || !types.ValidCoordinates(lat, lon) {
			dropped++
			continue
		}

		ts, ok := parseFlexibleTime(item.FromDate)
		if !ok {
			ts, ok = parseFlexibleTime(item.PubDate)
		}
		if !ok {
			dropped++
			continue
		}
		if ts.Before(cutoff) {
			continue
		}

		id := item.EventID
		if id == "" {
			id = item.GUID
		}
		if id == "" {
			id = fmt.Sprintf("%s_%.4f_%.4f", ts.Format("20060102"), lat, lon)
		}

		event := types.DisasterEvent{
			ID:           "gdacs_" + id,
			Source:       types.SourceGDACS,
			Type:         GDACSEventType(item.EventType),
			Latitude:     lat,
			Longitude:    lon,
			Severity:     GDACSSeverity(item.AlertLevel),
			Timestamp:    ts,
			Description:  firstNonEmpty(item.EventName, item.Title),
			LocationName: item.Country,
			AlertLevel:   item.AlertLevel,
			Country:      item.Country,
		}
		a.scorer.ScoreEvent(&event)
		events = append(events, event)
	}

	if dropped > 0 {
		a.logger.Debug("dropped GDACS items without coordinates or timestamps", "count", dropped)
	}
	return events, nil
}

// GDACSEventType maps the two-letter GDACS event code onto the unified
// taxonomy.
func GDACSEventType(code string) types.DisasterType {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "EQ":
		return types.TypeEarthquake
	case "FL":
		return types.TypeFlood
	case "TC":
		return types.TypeHurricane
	case "DR":
		return types.TypeDrought
	case "VO":
		return types.TypeVolcano
	case "WF":
		return types.TypeWildfire
	default:
		return types.TypeOther
	}
}

// GDACSSeverity maps alert colors onto the unified bands.
func GDACSSeverity(alertLevel string) types.Severity {
	switch strings.ToLower(strings.TrimSpace(alertLevel)) {
	case "red":
		return types.SeverityCritical
	case "orange":
		return types.SeverityHigh
	case "green":
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func parseGeoRSSPoint(point string) (float64, float64, bool) {
	fields := strings.Fields(point)
	if len(fields) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(fields[0], 64)
	lon, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
