// Package config provides configuration for the disaster intelligence
// service.
//
// This file centralizes tunables that would otherwise be scattered
// throughout the codebase, making them easier to find, modify, and test.
package config

import "time"

// Feed cache freshness windows. Each feed has its own TTL; callers fall back
// to the last successful cache when a refresh fails.
const (
	// TTLWildfires - satellite detections update frequently.
	TTLWildfires = 5 * time.Minute

	// TTLWeatherAlerts - active weather alerts change on the same cadence.
	TTLWeatherAlerts = 5 * time.Minute

	// TTLEarthquakes - seismic feed freshness window.
	TTLEarthquakes = 10 * time.Minute

	// TTLGDACS - the global aggregator publishes slowly.
	TTLGDACS = 30 * time.Minute

	// TTLFEMA - federal declarations change daily at most.
	TTLFEMA = 24 * time.Hour

	// TTLStateFeeds - Cal Fire and Cal OES refresh window.
	TTLStateFeeds = 30 * time.Minute

	// TTLSafeZones - curated shelter data changes rarely.
	TTLSafeZones = time.Hour
)

// Spatial constants shared by scoring, alerting, and rescoring.
const (
	// NeighborRadiusMi bounds every nearby-report query.
	NeighborRadiusMi = 50.0

	// CorroborationWindowHours excludes neighbors observed too far apart in
	// time to corroborate.
	CorroborationWindowHours = 24.0

	// RetroRescoreLimit bounds the retroactive neighbor rescore fanout.
	RetroRescoreLimit = 20

	// ProximityRadiusMinMi and ProximityRadiusMaxMi bound the alert scan
	// radius accepted by the API.
	ProximityRadiusMinMi = 5.0
	ProximityRadiusMaxMi = 50.0
)

// AI enhancement limits.
const (
	// AIRequestsPerHour caps provider calls per clock hour, process-wide.
	AIRequestsPerHour = 50

	// AICacheDuration is how long a content-hash AI result stays reusable.
	AICacheDuration = 24 * time.Hour

	// AIHeuristicWeight and AIWeight blend the heuristic and AI scores.
	AIHeuristicWeight = 0.7
	AIWeight          = 0.3
)

// Report lifecycle.
const (
	// BulkDeleteDefaultAgeHours is the default staleness cutoff for the
	// admin bulk delete.
	BulkDeleteDefaultAgeHours = 48

	// MaxReportAgeFilterHours bounds the max_age_hours list filter (one
	// year).
	MaxReportAgeFilterHours = 8760

	// NotificationTTL is how long a persisted proximity notification lives.
	NotificationTTL = 24 * time.Hour

	// NotificationHistoryMax caps the history endpoint.
	NotificationHistoryMax = 200
)

// Routing.
const (
	// RouteDisasterMaxAge excludes stale disasters from avoidance buffers.
	RouteDisasterMaxAge = 48 * time.Hour

	// RouteBBoxPaddingKm pads the origin-destination bounding box.
	RouteBBoxPaddingKm = 50.0

	// NearbyDisasterThresholdMi is the safety-score "nearby" radius and the
	// e-folding distance of the minimum-distance factor.
	NearbyDisasterThresholdMi = 6.2

	// SafeZoneThreatRadiusMi is the default threat radius for zone safety
	// checks.
	SafeZoneThreatRadiusMi = 3.1
)

// Outbound call deadlines.
const (
	// StoreTimeout bounds document store round trips.
	StoreTimeout = 10 * time.Second

	// FeedFetchTimeout bounds one upstream feed fetch.
	FeedFetchTimeout = 30 * time.Second

	// AIRequestTimeout bounds one AI provider call.
	AIRequestTimeout = 15 * time.Second

	// EnhanceTimeout is the outer budget of the enhance pipeline.
	EnhanceTimeout = 30 * time.Second

	// RouteProviderTimeout bounds one routing provider call.
	RouteProviderTimeout = 30 * time.Second

	// GeocodeTimeout bounds a reverse-geocoding call.
	GeocodeTimeout = 10 * time.Second
)

// HTTP server limits.
const (
	// MaxRequestBytes caps request bodies (10 MiB).
	MaxRequestBytes = 10 << 20

	// PublicDataBrowserCache is the Cache-Control max-age for cached feed
	// pass-through endpoints.
	PublicDataBrowserCache = 5 * time.Minute
)
