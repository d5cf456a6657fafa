// Package types defines the core domain types shared across the service.
//
// # Design Principles
//
//  1. Simplicity: Types represent the domain model directly, no ORM abstractions
//  2. Serialization: All types are JSON-serializable for API transport and the
//     document store
//  3. Validation: Types include Validate() methods for business rule enforcement
package types

import (
	"fmt"
	"time"
)

// =============================================================================
// SOURCES
// =============================================================================

// Source identifies where a disaster event originated.
type Source string

const (
	SourceUserReport     Source = "user_report"
	SourceUserReportAuth Source = "user_report_authenticated"
	SourceNASAFirms      Source = "nasa_firms"
	SourceNOAA           Source = "noaa"
	SourceUSGS           Source = "usgs"
	SourceGDACS          Source = "gdacs"
	SourceFEMA           Source = "fema"
	SourceCalFire        Source = "cal_fire"
	SourceCalOES         Source = "cal_oes"
)

// IsOfficial reports whether the source is one of the three primary official
// feeds that take the simplified high-confidence scoring path.
func (s Source) IsOfficial() bool {
	switch s {
	case SourceNASAFirms, SourceNOAA, SourceUSGS:
		return true
	}
	return false
}

// IsUserReport reports whether the source is a user submission (anonymous or
// authenticated).
func (s Source) IsUserReport() bool {
	return s == SourceUserReport || s == SourceUserReportAuth
}

// =============================================================================
// DISASTER TYPES AND SEVERITY
// =============================================================================

// DisasterType classifies an event into the unified taxonomy.
type DisasterType string

const (
	TypeWildfire     DisasterType = "wildfire"
	TypeEarthquake   DisasterType = "earthquake"
	TypeFlood        DisasterType = "flood"
	TypeHurricane    DisasterType = "hurricane"
	TypeTornado      DisasterType = "tornado"
	TypeVolcano      DisasterType = "volcano"
	TypeDrought      DisasterType = "drought"
	TypeWeatherAlert DisasterType = "weather_alert"
	TypeOther        DisasterType = "other"
)

// KnownDisasterTypes is the recognized set used by the scorer's type
// validation. The alert preference filter validates against its own list.
var KnownDisasterTypes = map[DisasterType]bool{
	TypeWildfire:     true,
	TypeEarthquake:   true,
	TypeFlood:        true,
	TypeHurricane:    true,
	TypeTornado:      true,
	TypeVolcano:      true,
	TypeDrought:      true,
	TypeWeatherAlert: true,
	TypeOther:        true,
}

// Severity is the unified four-band severity scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for comparison: low=1 .. critical=4, unknown=0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Adjacent reports whether two severities are exactly one band apart.
func (s Severity) Adjacent(other Severity) bool {
	a, b := s.Rank(), other.Rank()
	if a == 0 || b == 0 {
		return false
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff == 1
}

// =============================================================================
// CONFIDENCE
// =============================================================================

// ConfidenceLevel is the display band derived from a confidence score.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "Low"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceHigh   ConfidenceLevel = "High"
)

// LevelForScore maps a confidence score to its band. The banding is the
// single source of truth: >=0.8 High, >=0.6 Medium, else Low.
func LevelForScore(score float64) ConfidenceLevel {
	switch {
	case score >= 0.8:
		return ConfidenceHigh
	case score >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// CorroborationMatch records one scored neighbor inside a breakdown.
type CorroborationMatch struct {
	ID         string  `json:"id,omitempty"`
	Source     Source  `json:"source"`
	DistanceMi float64 `json:"distance_mi"`
	Score      float64 `json:"score"`
}

// CorroborationDetail explains the spatial corroboration boost.
type CorroborationDetail struct {
	NearbyCount int                  `json:"nearby_count"`
	Boost       float64              `json:"boost"`
	TotalScore  float64              `json:"total_score,omitempty"`
	Sources     map[string]int       `json:"sources"`
	TopMatches  []CorroborationMatch `json:"top_matches,omitempty"`
}

// CredibilityPenaltyDetail records the user-credibility multiplier applied to
// an authenticated submission.
type CredibilityPenaltyDetail struct {
	UserCredibility   int     `json:"user_credibility"`
	BaseMultiplier    float64 `json:"base_multiplier"`
	OriginalHeuristic float64 `json:"original_heuristic"`
	AfterPenalty      float64 `json:"after_penalty"`
}

// AIEnhancementDetail records the AI contribution to a blended score.
type AIEnhancementDetail struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
	Provider  string  `json:"provider,omitempty"`
}

// ConfidenceBreakdown is the structured explanation attached to every scored
// event. Official sources populate the bonus fields; user reports populate
// the factor fields.
type ConfidenceBreakdown struct {
	SourceCredibility float64 `json:"source_credibility"`

	// User-report heuristic factors.
	Recency           *float64 `json:"recency,omitempty"`
	SpatialValidation *float64 `json:"spatial_validation,omitempty"`
	Completeness      *float64 `json:"completeness,omitempty"`
	TypeValidation    *float64 `json:"type_validation,omitempty"`

	// Official-source bonuses.
	RecencyBonus      *float64 `json:"recency_bonus,omitempty"`
	CompletenessBonus *float64 `json:"completeness_bonus,omitempty"`
	IntensityBonus    *float64 `json:"intensity_bonus,omitempty"`

	UserCredibilityPenalty *CredibilityPenaltyDetail `json:"user_credibility_penalty,omitempty"`
	Corroboration          *CorroborationDetail      `json:"corroboration,omitempty"`
	AIEnhancement          *AIEnhancementDetail      `json:"ai_enhancement,omitempty"`
}

// ConfidenceResult bundles score, level, and explanation.
type ConfidenceResult struct {
	ConfidenceScore float64              `json:"confidence_score"`
	ConfidenceLevel ConfidenceLevel      `json:"confidence_level"`
	Breakdown       *ConfidenceBreakdown `json:"breakdown"`
}

// =============================================================================
// TIME DECAY
// =============================================================================

// TimeDecay is the display-fading hint injected into read endpoints.
// AgeHours is nil when the event timestamp is missing or unparseable.
type TimeDecay struct {
	AgeHours   *float64 `json:"age_hours"`
	Category   string   `json:"category"`
	DecayScore float64  `json:"decay_score"`
}

// =============================================================================
// DISASTER EVENT
// =============================================================================

// DisasterEvent is the unified record every feed adapter must produce.
//
// IDs are namespaced by a source prefix so records from different feeds never
// collide in caches or the document store.
type DisasterEvent struct {
	ID        string       `json:"id"`
	Source    Source       `json:"source"`
	Type      DisasterType `json:"type"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Severity  Severity     `json:"severity"`
	Timestamp time.Time    `json:"timestamp"`

	Description      string     `json:"description,omitempty"`
	LocationName     string     `json:"location_name,omitempty"`
	Magnitude        *float64   `json:"magnitude,omitempty"`
	DepthKm          *float64   `json:"depth_km,omitempty"`
	Brightness       *float64   `json:"brightness,omitempty"`
	FRP              *float64   `json:"frp,omitempty"`
	AcresBurned      *float64   `json:"acres_burned,omitempty"`
	PercentContained *float64   `json:"percent_contained,omitempty"`
	AlertLevel       string     `json:"alert_level,omitempty"`
	Urgency          string     `json:"urgency,omitempty"`
	Certainty        string     `json:"certainty,omitempty"`
	Event            string     `json:"event,omitempty"`
	Country          string     `json:"country,omitempty"`
	State            string     `json:"state,omitempty"`
	County           string     `json:"county,omitempty"`
	ImageURL         string     `json:"image_url,omitempty"`
	Expires          *time.Time `json:"expires,omitempty"`

	ConfidenceScore     float64              `json:"confidence_score,omitempty"`
	ConfidenceLevel     ConfidenceLevel      `json:"confidence_level,omitempty"`
	ConfidenceBreakdown *ConfidenceBreakdown `json:"confidence_breakdown,omitempty"`
	TimeDecay           *TimeDecay           `json:"time_decay,omitempty"`
}

// ValidCoordinates reports whether a lat/lon pair is inside WGS84 bounds.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Validate enforces the invariants every normalized event must satisfy
// before it enters a cache or the store.
func (e *DisasterEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event ID is required")
	}
	if e.Source == "" {
		return fmt.Errorf("event source is required")
	}
	if !ValidCoordinates(e.Latitude, e.Longitude) {
		return fmt.Errorf("invalid coordinates (%f, %f)", e.Latitude, e.Longitude)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event timestamp is required")
	}
	return nil
}

// FeedType names a cached feed document under public_data_cache/.
type FeedType string

const (
	FeedWildfires     FeedType = "wildfires"
	FeedWeatherAlerts FeedType = "weather_alerts"
	FeedEarthquakes   FeedType = "usgs_earthquakes"
	FeedGDACS         FeedType = "gdacs_events"
	FeedFEMA          FeedType = "fema_disasters"
	FeedCalFire       FeedType = "cal_fire_incidents"
	FeedCalOES        FeedType = "cal_oes_alerts"
	FeedSafeZones     FeedType = "safe_zones"
)

// AllFeeds lists every upstream feed in refresh order.
var AllFeeds = []FeedType{
	FeedWildfires,
	FeedWeatherAlerts,
	FeedEarthquakes,
	FeedGDACS,
	FeedFEMA,
	FeedCalFire,
	FeedCalOES,
}

// FeedMetadata describes the freshness of one cached feed.
type FeedMetadata struct {
	LastUpdated time.Time `json:"last_updated"`
	Count       int       `json:"count"`
	Status      string    `json:"status"`
}
