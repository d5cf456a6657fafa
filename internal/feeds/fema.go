package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// FEMAAdapter ingests federal disaster declarations from the OpenFEMA API.
// Declarations carry no coordinates, so each is placed at its state's
// centroid.
type FEMAAdapter struct {
	baseURL string
	client  *http.Client
	scorer  ConfidenceScorer
	logger  *slog.Logger
}

const femaDefaultBaseURL = "https://www.fema.gov/api/open/v2"

// NewFEMAAdapter creates the federal declarations adapter.
func NewFEMAAdapter(scorer ConfidenceScorer, logger *slog.Logger) *FEMAAdapter {
	return &FEMAAdapter{
		baseURL: femaDefaultBaseURL,
		client:  newHTTPClient(),
		scorer:  scorer,
		logger:  logger.With("component", "fema_adapter"),
	}
}

// SetBaseURL overrides the upstream URL. Tests point this at a local server.
func (a *FEMAAdapter) SetBaseURL(url string) { a.baseURL = url }

// FeedType implements Adapter.
func (a *FEMAAdapter) FeedType() types.FeedType { return types.FeedFEMA }

type femaResponse struct {
	DisasterDeclarationsSummaries []struct {
		DisasterNumber   int    `json:"disasterNumber"`
		State            string `json:"state"`
		DeclarationDate  string `json:"declarationDate"`
		IncidentType     string `json:"incidentType"`
		DeclarationTitle string `json:"declarationTitle"`
		DeclarationType  string `json:"declarationType"`
	} `json:"DisasterDeclarationsSummaries"`
}

// Fetch implements Adapter.
func (a *FEMAAdapter) Fetch(ctx context.Context, windowDays int) ([]types.DisasterEvent, error) {
	days := clampWindow(windowDays, 1, 365)
	since := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("declarationDate ge '%s'", since))
	query.Set("$orderby", "declarationDate desc")
	query.Set("$top", "200")

	var resp femaResponse
	endpoint := a.baseURL + "/DisasterDeclarationsSummaries?" + query.Encode()
	if err := getJSON(ctx, a.client, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("fetching FEMA declarations: %w", err)
	}

	var events []types.DisasterEvent
	dropped := 0
	seen := map[string]bool{}
	for _, d := range resp.DisasterDeclarationsSummaries {
		centroid, ok := stateCentroids[d.State]
		if !ok {
			dropped++
			continue
		}
		ts, ok := parseFlexibleTime(d.DeclarationDate)
		if !ok {
			dropped++
			continue
		}

		id := fmt.Sprintf("fema_%d_%s", d.DisasterNumber, d.State)
		if seen[id] {
			continue
		}
		seen[id] = true

		event := types.DisasterEvent{
			ID:        id,
			Source:    types.SourceFEMA,
			Type:      FEMAIncidentType(d.IncidentType),
			Latitude:  centroid[0],
			Longitude: centroid[1],
			// Federally declared disasters are treated as high severity.
			Severity:     types.SeverityHigh,
			Timestamp:    ts,
			Description:  firstNonEmpty(d.DeclarationTitle, d.IncidentType),
			LocationName: d.State,
			State:        d.State,
		}
		a.scorer.ScoreEvent(&event)
		events = append(events, event)
	}

	if dropped > 0 {
		a.logger.Debug("dropped FEMA declarations without usable state or date", "count", dropped)
	}
	return events, nil
}

// FEMAIncidentType maps an OpenFEMA incident type onto the unified taxonomy.
func FEMAIncidentType(incidentType string) types.DisasterType {
	t := strings.ToLower(incidentType)
	switch {
	case strings.Contains(t, "flood"):
		return types.TypeFlood
	case strings.Contains(t, "hurricane"), strings.Contains(t, "typhoon"):
		return types.TypeHurricane
	case strings.Contains(t, "tornado"):
		return types.TypeTornado
	case strings.Contains(t, "fire"):
		return types.TypeWildfire
	case strings.Contains(t, "earthquake"):
		return types.TypeEarthquake
	case strings.Contains(t, "drought"):
		return types.TypeDrought
	case strings.Contains(t, "volcan"):
		return types.TypeVolcano
	default:
		return types.TypeOther
	}
}

// stateCentroids places state-level declarations at approximate geographic
// centers, keyed by postal code.
var stateCentroids = map[string][2]float64{
	"AL": {32.7794, -86.8287}, "AK": {64.0685, -152.2782}, "AZ": {34.2744, -111.6602},
	"AR": {34.8938, -92.4426}, "CA": {37.1841, -119.4696}, "CO": {38.9972, -105.5478},
	"CT": {41.6219, -72.7273}, "DE": {38.9896, -75.5050}, "FL": {28.6305, -82.4497},
	"GA": {32.6415, -83.4426}, "HI": {20.2927, -156.3737}, "ID": {44.3509, -114.6130},
	"IL": {40.0417, -89.1965}, "IN": {39.8942, -86.2816}, "IA": {42.0751, -93.4960},
	"KS": {38.4937, -98.3804}, "KY": {37.5347, -85.3021}, "LA": {31.0689, -91.9968},
	"ME": {45.3695, -69.2428}, "MD": {39.0550, -76.7909}, "MA": {42.2596, -71.8083},
	"MI": {44.3467, -85.4102}, "MN": {46.2807, -94.3053}, "MS": {32.7364, -89.6678},
	"MO": {38.3566, -92.4580}, "MT": {47.0527, -109.6333}, "NE": {41.5378, -99.7951},
	"NV": {39.3289, -116.6312}, "NH": {43.6805, -71.5811}, "NJ": {40.1907, -74.6728},
	"NM": {34.4071, -106.1126}, "NY": {42.9538, -75.5268}, "NC": {35.5557, -79.3877},
	"ND": {47.4501, -100.4659}, "OH": {40.2862, -82.7937}, "OK": {35.5889, -97.4943},
	"OR": {43.9336, -120.5583}, "PA": {40.8781, -77.7996}, "RI": {41.6762, -71.5562},
	"SC": {33.9169, -80.8964}, "SD": {44.4443, -100.2263}, "TN": {35.8580, -86.3505},
	"TX": {31.4757, -99.3312}, "UT": {39.3055, -111.6703}, "VT": {44.0687, -72.6658},
	"VA": {37.5215, -78.8537}, "WA": {47.3826, -120.4472}, "WV": {38.6409, -80.6227},
	"WI": {44.6243, -89.9941}, "WY": {42.9957, -107.5512}, "DC": {38.9101, -77.0147},
	"PR": {18.2208, -66.5901}, "GU": {13.4443, 144.7937}, "VI": {18.3358, -64.8963},
	"AS": {-14.2710, -170.1322}, "MP": {15.0979, 145.6739},
}
