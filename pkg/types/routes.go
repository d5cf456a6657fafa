package types

import "time"

// =============================================================================
// ROUTES
// =============================================================================

// RouteProvider names the external router that produced a route.
type RouteProvider string

const (
	ProviderORS    RouteProvider = "ORS"
	ProviderHERE   RouteProvider = "HERE"
	ProviderGoogle RouteProvider = "Google"
)

// LatLon is a WGS84 coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Waypoint is one turn instruction along a route.
type Waypoint struct {
	Instruction     string  `json:"instruction"`
	DistanceMi      float64 `json:"distance_mi"`
	DurationSeconds float64 `json:"duration_seconds"`
	Type            string  `json:"type"`
}

// Route is a normalized route option. Geometry is GeoJSON-ordered
// [lon, lat] pairs; all distances are miles.
type Route struct {
	RouteID          string      `json:"route_id"`
	DistanceMi       float64     `json:"distance_mi"`
	DurationSeconds  float64     `json:"duration_seconds"`
	EstimatedArrival time.Time   `json:"estimated_arrival"`
	Waypoints        []Waypoint  `json:"waypoints"`
	Geometry         [][]float64 `json:"geometry"`

	SafetyScore           float64  `json:"safety_score"`
	IsFastest             bool     `json:"is_fastest"`
	IsSafest              bool     `json:"is_safest"`
	IsShortest            bool     `json:"is_shortest,omitempty"`
	IsBaseline            bool     `json:"is_baseline,omitempty"`
	IntersectsDisasters   bool     `json:"intersects_disasters"`
	DisastersNearby       int      `json:"disasters_nearby"`
	MinDisasterDistanceMi *float64 `json:"min_disaster_distance_mi"`

	Provider RouteProvider `json:"provider"`
	Warning  string        `json:"warning,omitempty"`
}

// =============================================================================
// SAFE ZONES
// =============================================================================

// SafeZoneType classifies a shelter location.
type SafeZoneType string

const (
	ZoneEvacuationCenter SafeZoneType = "evacuation_center"
	ZoneHospital         SafeZoneType = "hospital"
	ZoneFireStation      SafeZoneType = "fire_station"
	ZoneEmergencyShelter SafeZoneType = "emergency_shelter"
	ZonePoliceStation    SafeZoneType = "police_station"
	ZoneCommunityCenter  SafeZoneType = "community_center"
)

// KnownZoneTypes is the accepted set for the type filter.
var KnownZoneTypes = map[SafeZoneType]bool{
	ZoneEvacuationCenter: true,
	ZoneHospital:         true,
	ZoneFireStation:      true,
	ZoneEmergencyShelter: true,
	ZonePoliceStation:    true,
	ZoneCommunityCenter:  true,
}

// ZoneLocation is a safe zone's coordinates.
type ZoneLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SafeZone is a shelter record, either curated (manual) or imported from the
// national shelter system feed.
type SafeZone struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Type              SafeZoneType `json:"type"`
	Location          ZoneLocation `json:"location"`
	Address           string       `json:"address,omitempty"`
	Capacity          int          `json:"capacity,omitempty"`
	Amenities         []string     `json:"amenities,omitempty"`
	Contact           string       `json:"contact,omitempty"`
	OperationalStatus string       `json:"operational_status"`
	Source            string       `json:"source"`
	LastUpdated       time.Time    `json:"last_updated"`

	// Populated on lookup responses only.
	DistanceFromUserMi float64 `json:"distance_from_user_mi,omitempty"`
}

// ZoneThreat describes the disaster closest to a zone in a safety check.
type ZoneThreat struct {
	ID         string       `json:"id"`
	Type       DisasterType `json:"type"`
	Severity   Severity     `json:"severity"`
	DistanceMi float64      `json:"distance_mi"`
}

// ZoneSafety is the result of checking a zone against active disasters.
type ZoneSafety struct {
	Safe                      bool        `json:"safe"`
	Threats                   []string    `json:"threats"`
	DistanceToNearestThreatMi *float64    `json:"distance_to_nearest_threat_mi"`
	NearestThreat             *ZoneThreat `json:"nearest_threat"`
	Error                     string      `json:"error,omitempty"`
}
