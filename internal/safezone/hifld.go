package safezone

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// HIFLDClient queries the national shelter system layer for shelters by
// radius or record ID.
type HIFLDClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

const hifldDefaultBaseURL = "https://services1.arcgis.com/Hp6G80Pky0om7QvQ/arcgis/rest/services/National_Shelter_System_Facilities/FeatureServer/0"

// NewHIFLDClient creates the shelter feed client.
func NewHIFLDClient(logger *slog.Logger) *HIFLDClient {
	return &HIFLDClient{
		baseURL:    hifldDefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With("component", "hifld_client"),
	}
}

// SetBaseURL overrides the upstream URL. Tests point this at a local server.
func (c *HIFLDClient) SetBaseURL(url string) { c.baseURL = url }

type hifldResponse struct {
	Features []struct {
		Attributes struct {
			ObjectID      int64  `json:"OBJECTID"`
			ShelterName   string `json:"SHELTER_NAME"`
			Address       string `json:"ADDRESS"`
			City          string `json:"CITY"`
			State         string `json:"STATE"`
			EvacCapacity  int    `json:"EVACUATION_CAPACITY"`
			ShelterStatus string `json:"SHELTER_STATUS"`
		} `json:"attributes"`
		Geometry struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"geometry"`
	} `json:"features"`
}

// SheltersInRadius implements ShelterClient using a distance-bounded layer
// query.
func (c *HIFLDClient) SheltersInRadius(ctx context.Context, lat, lon, radiusMi float64) ([]types.SafeZone, error) {
	query := url.Values{}
	query.Set("f", "json")
	query.Set("geometry", fmt.Sprintf("%f,%f", lon, lat))
	query.Set("geometryType", "esriGeometryPoint")
	query.Set("inSR", "4326")
	query.Set("outSR", "4326")
	query.Set("spatialRel", "esriSpatialRelIntersects")
	query.Set("distance", fmt.Sprintf("%f", radiusMi*1609.34))
	query.Set("units", "esriSRUnit_Meter")
	query.Set("outFields", "*")

	return c.query(ctx, query)
}

// ShelterByNumericID implements ShelterClient.
func (c *HIFLDClient) ShelterByNumericID(ctx context.Context, id string) (*types.SafeZone, error) {
	query := url.Values{}
	query.Set("f", "json")
	query.Set("where", "OBJECTID="+id)
	query.Set("outSR", "4326")
	query.Set("outFields", "*")

	zones, err := c.query(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(zones) == 0 {
		return nil, nil
	}
	return &zones[0], nil
}

func (c *HIFLDClient) query(ctx context.Context, query url.Values) ([]types.SafeZone, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shelter feed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shelter feed returned status %d", resp.StatusCode)
	}

	var body hifldResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding shelter response: %w", err)
	}

	now := time.Now().UTC()
	zones := make([]types.SafeZone, 0, len(body.Features))
	for _, f := range body.Features {
		if !types.ValidCoordinates(f.Geometry.Y, f.Geometry.X) {
			continue
		}
		zones = append(zones, types.SafeZone{
			ID:   fmt.Sprintf("hifld_%d", f.Attributes.ObjectID),
			Name: f.Attributes.ShelterName,
			Type: types.ZoneEmergencyShelter,
			Location: types.ZoneLocation{
				Latitude:  f.Geometry.Y,
				Longitude: f.Geometry.X,
			},
			Address:           buildAddress(f.Attributes.Address, f.Attributes.City, f.Attributes.State),
			Capacity:          f.Attributes.EvacCapacity,
			OperationalStatus: shelterStatus(f.Attributes.ShelterStatus),
			Source:            "hifld_nss",
			LastUpdated:       now,
		})
	}
	return zones, nil
}

func buildAddress(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func shelterStatus(status string) string {
	switch strings.ToUpper(status) {
	case "OPEN":
		return "open"
	case "CLOSED":
		return "closed"
	case "FULL":
		return "at_capacity"
	default:
		return "unknown"
	}
}
