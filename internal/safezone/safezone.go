// Package safezone locates shelters near a user: curated zones from the
// document store merged with the national shelter system feed, plus the
// safety check of a zone against active disasters.
package safezone

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/geo"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// Lookup defaults.
const (
	DefaultLimit         = 5
	DefaultMaxDistanceMi = 50.0

	// externalIDPrefix marks zones sourced from the shelter feed.
	externalIDPrefix = "hifld_"

	// coordinateMatchTolerance is the degree tolerance when resolving
	// coordinate-encoded external IDs (~111 meters).
	coordinateMatchTolerance = 0.001
)

// External ID formats: coordinate-encoded (34_137328_n118_677781, 'n' for
// negative) and plain numeric.
var (
	coordinateIDPattern = regexp.MustCompile(`^(n?\d+)_(\d+)_(n?\d+)_(\d+)$`)
	numericIDPattern    = regexp.MustCompile(`^\d+$`)
)

// Store is the storage surface the service needs.
type Store interface {
	ListSafeZones(ctx context.Context) ([]types.SafeZone, error)
	GetSafeZone(ctx context.Context, id string) (*types.SafeZone, error)
}

// ShelterClient is the external national-shelter-system feed.
type ShelterClient interface {
	SheltersInRadius(ctx context.Context, lat, lon, radiusMi float64) ([]types.SafeZone, error)
	ShelterByNumericID(ctx context.Context, id string) (*types.SafeZone, error)
}

// Service answers safe-zone queries.
type Service struct {
	db      Store
	shelter ShelterClient
	logger  *slog.Logger

	// Numeric external-ID lookups are memoized for the process lifetime;
	// shelter records change rarely.
	mu          sync.Mutex
	numericMemo map[string]*types.SafeZone
}

// NewService creates a safe-zone service. The shelter client may be nil,
// disabling external lookups.
func NewService(db Store, shelter ShelterClient, logger *slog.Logger) *Service {
	return &Service{
		db:          db,
		shelter:     shelter,
		logger:      logger.With("component", "safe_zones"),
		numericMemo: map[string]*types.SafeZone{},
	}
}

// GetNearest returns the closest safe zones to a point, distance- and
// type-filtered, optionally merged with the external shelter feed.
func (s *Service) GetNearest(ctx context.Context, lat, lon float64, limit int, maxDistanceMi float64,
	zoneTypes []string, includeExternal bool) ([]types.SafeZone, error) {

	if !types.ValidCoordinates(lat, lon) {
		return nil, fmt.Errorf("invalid coordinates (%f, %f)", lat, lon)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if maxDistanceMi <= 0 {
		maxDistanceMi = DefaultMaxDistanceMi
	}
	typeFilter := map[string]bool{}
	for _, t := range zoneTypes {
		typeFilter[t] = true
	}

	zones, err := s.db.ListSafeZones(ctx)
	if err != nil {
		return nil, err
	}

	var results []types.SafeZone
	for _, zone := range zones {
		if len(typeFilter) > 0 && !typeFilter[string(zone.Type)] {
			continue
		}
		distance := geo.Haversine(lat, lon, zone.Location.Latitude, zone.Location.Longitude)
		if distance > maxDistanceMi {
			continue
		}
		zone.DistanceFromUserMi = round2(distance)
		results = append(results, zone)
	}

	if includeExternal && s.shelter != nil {
		external, err := s.shelter.SheltersInRadius(ctx, lat, lon, maxDistanceMi)
		if err != nil {
			// External outages degrade to curated zones only.
			s.logger.Warn("external shelter lookup failed", "error", err)
		} else {
			for _, zone := range external {
				if len(typeFilter) > 0 && !typeFilter[string(zone.Type)] {
					continue
				}
				zone.DistanceFromUserMi = round2(geo.Haversine(lat, lon, zone.Location.Latitude, zone.Location.Longitude))
				results = append(results, zone)
			}
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceFromUserMi < results[j].DistanceFromUserMi
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// IsZoneSafe checks a zone against the provided active disasters. A zone is
// safe when no disaster lies within the threat radius.
func (s *Service) IsZoneSafe(ctx context.Context, zoneID string, disasters []types.DisasterEvent, threatRadiusMi float64) types.ZoneSafety {
	if threatRadiusMi <= 0 {
		threatRadiusMi = config.SafeZoneThreatRadiusMi
	}

	zone, err := s.GetZoneByID(ctx, zoneID)
	if err != nil || zone == nil {
		return types.ZoneSafety{Safe: false, Threats: []string{}, Error: "Zone not found"}
	}

	threats := []string{}
	var nearest *types.ZoneThreat
	for i := range disasters {
		d := &disasters[i]
		if d.Latitude == 0 && d.Longitude == 0 {
			continue
		}
		distance := geo.Haversine(zone.Location.Latitude, zone.Location.Longitude, d.Latitude, d.Longitude)
		if distance <= threatRadiusMi {
			threats = append(threats, d.ID)
		}
		if nearest == nil || distance < nearest.DistanceMi {
			nearest = &types.ZoneThreat{
				ID:         d.ID,
				Type:       d.Type,
				Severity:   d.Severity,
				DistanceMi: round2(distance),
			}
		}
	}

	safety := types.ZoneSafety{
		Safe:    len(threats) == 0,
		Threats: threats,
	}
	if nearest != nil {
		safety.NearestThreat = nearest
		d := nearest.DistanceMi
		safety.DistanceToNearestThreatMi = &d
	}
	return safety
}

// GetZoneByID resolves a zone ID: curated zones directly, external zones via
// their coordinate-encoded or numeric ID forms.
func (s *Service) GetZoneByID(ctx context.Context, zoneID string) (*types.SafeZone, error) {
	if strings.HasPrefix(zoneID, externalIDPrefix) && s.shelter != nil {
		externalID := strings.TrimPrefix(zoneID, externalIDPrefix)
		switch {
		case coordinateIDPattern.MatchString(externalID):
			return s.externalZoneByCoordinates(ctx, externalID)
		case numericIDPattern.MatchString(externalID):
			return s.externalZoneByNumericID(ctx, externalID)
		default:
			s.logger.Warn("invalid external zone ID format", "zone", zoneID)
			return nil, nil
		}
	}
	return s.db.GetSafeZone(ctx, zoneID)
}

// externalZoneByCoordinates parses LAT_LATDEC_LON_LONDEC ('n' prefix means
// negative) and matches a shelter within the tolerance.
func (s *Service) externalZoneByCoordinates(ctx context.Context, externalID string) (*types.SafeZone, error) {
	parts := strings.Split(externalID, "_")
	if len(parts) != 4 {
		return nil, nil
	}
	lat, err1 := parseSignedCoordinate(parts[0], parts[1])
	lon, err2 := parseSignedCoordinate(parts[2], parts[3])
	if err1 != nil || err2 != nil {
		return nil, nil
	}

	shelters, err := s.shelter.SheltersInRadius(ctx, lat, lon, 1.0)
	if err != nil {
		return nil, err
	}
	for i := range shelters {
		if abs(shelters[i].Location.Latitude-lat) < coordinateMatchTolerance &&
			abs(shelters[i].Location.Longitude-lon) < coordinateMatchTolerance {
			return &shelters[i], nil
		}
	}
	return nil, nil
}

func (s *Service) externalZoneByNumericID(ctx context.Context, id string) (*types.SafeZone, error) {
	s.mu.Lock()
	if cached, ok := s.numericMemo[id]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	zone, err := s.shelter.ShelterByNumericID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.numericMemo[id] = zone
	s.mu.Unlock()
	return zone, nil
}

func parseSignedCoordinate(whole, frac string) (float64, error) {
	sign := 1.0
	if strings.HasPrefix(whole, "n") {
		sign = -1.0
		whole = whole[1:]
	}
	v, err := strconv.ParseFloat(whole+"."+frac, 64)
	if err != nil {
		return 0, err
	}
	return sign * v, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
