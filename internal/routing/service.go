// Package routing implements disaster-aware route planning: avoidance
// buffer generation with origin exclusion, the primary/fallback/baseline
// provider chain, and per-route safety scoring.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/geo"
	"github.com/relief-net/disaster-intel/internal/metrics"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// Provider errors drive the fallback discipline.
var (
	// ErrNoRoutablePoint means the origin or destination is not near a
	// road the provider knows.
	ErrNoRoutablePoint = errors.New("no routable point near coordinates")

	// ErrRequestTooLarge means the avoidance polygons overflowed the
	// provider's request limits.
	ErrRequestTooLarge = errors.New("routing request too large")

	// ErrNoRoutes means the provider answered but produced nothing usable.
	ErrNoRoutes = errors.New("no routes returned")
)

// Buffer radii by severity, in miles.
var bufferRadiusMi = map[types.Severity]float64{
	types.SeverityCritical: 5,
	types.SeverityHigh:     3,
	types.SeverityMedium:   2,
	types.SeverityLow:      1,
}

const defaultBufferMi = 1.0

// routeDisasterTypes are the types that generate avoidance buffers.
var routeDisasterTypes = map[types.DisasterType]bool{
	types.TypeWildfire:   true,
	types.TypeEarthquake: true,
	types.TypeFlood:      true,
	types.TypeHurricane:  true,
	types.TypeTornado:    true,
	types.TypeVolcano:    true,
}

// RouteRequest is the provider-facing request.
type RouteRequest struct {
	Origin        types.LatLon
	Destination   types.LatLon
	AvoidPolygons []geo.Polygon
	Alternatives  int
}

// Router calculates avoidance-aware routes.
type Router interface {
	Name() string
	CalculateRoutes(ctx context.Context, req RouteRequest) ([]types.Route, error)
}

// BaselineRouter produces the unavoided shortest-path comparison route.
type BaselineRouter interface {
	Name() string
	BaselineRoute(ctx context.Context, origin, destination types.LatLon) (*types.Route, error)
}

// ReportReader supplies recent user reports for buffer generation.
type ReportReader interface {
	ListReports(ctx context.Context) ([]types.UserReport, error)
}

// FeedReader supplies cached feed events for buffer generation.
type FeedReader interface {
	GetCachedData(ctx context.Context, feed types.FeedType) ([]types.DisasterEvent, error)
}

// Service orchestrates route calculation.
type Service struct {
	reports  ReportReader
	feeds    FeedReader
	primary  Router
	fallback Router
	baseline BaselineRouter
	clock    clockwork.Clock
	logger   *slog.Logger

	breakers map[string]*gobreaker.CircuitBreaker
}

// NewService creates the route service. Fallback and baseline routers are
// optional.
func NewService(reports ReportReader, feeds FeedReader, primary, fallback Router, baseline BaselineRouter, logger *slog.Logger) *Service {
	s := &Service{
		reports:  reports,
		feeds:    feeds,
		primary:  primary,
		fallback: fallback,
		baseline: baseline,
		clock:    clockwork.NewRealClock(),
		logger:   logger.With("component", "routing"),
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
	for _, r := range []Router{primary, fallback} {
		if r != nil {
			s.breakers[r.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:    r.Name(),
				Timeout: 60 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
			})
		}
	}
	return s
}

// SetClock swaps the clock. Tests use a fake clock.
func (s *Service) SetClock(clock clockwork.Clock) { s.clock = clock }

// CalculateRoutes plans routes from origin to destination, avoiding active
// disaster buffers unless avoidDisasters is false.
func (s *Service) CalculateRoutes(ctx context.Context, origin, destination types.LatLon, avoidDisasters bool, alternatives int) ([]types.Route, error) {
	if !types.ValidCoordinates(origin.Lat, origin.Lon) || !types.ValidCoordinates(destination.Lat, destination.Lon) {
		return nil, fmt.Errorf("invalid origin or destination coordinates")
	}
	if alternatives < 1 {
		alternatives = 1
	}
	if alternatives > 3 {
		alternatives = 3
	}

	var polygons []geo.Polygon
	var disasters []types.DisasterEvent
	if avoidDisasters {
		var err error
		polygons, disasters, err = s.DisasterPolygons(ctx, origin, destination)
		if err != nil {
			// Routing proceeds without avoidance rather than failing.
			s.logger.Warn("disaster polygon generation failed", "error", err)
			polygons, disasters = nil, nil
		}
	}

	req := RouteRequest{
		Origin:        origin,
		Destination:   destination,
		AvoidPolygons: polygons,
		Alternatives:  alternatives,
	}

	routes, warning, err := s.routeWithFallback(ctx, req)
	if err != nil {
		return nil, err
	}

	for i := range routes {
		s.scoreRoute(&routes[i], disasters, polygons)
		if warning != "" {
			routes[i].Warning = warning
		}
	}
	markBest(routes)

	// The baseline route is appended after flagging so fastest/safest refer
	// to real candidates, not the comparison path.
	if s.baseline != nil {
		if baseline := s.baselineRoute(ctx, origin, destination, disasters, polygons); baseline != nil {
			routes = append(routes, *baseline)
		}
	}

	return routes, nil
}

// routeWithFallback applies the selection discipline: primary first; on
// routable-point, request-size or no-routes errors, the secondary with the same
// polygons; if the secondary still overflows, once more without polygons
// with a user-visible warning.
func (s *Service) routeWithFallback(ctx context.Context, req RouteRequest) ([]types.Route, string, error) {
	routes, err := s.callRouter(ctx, s.primary, req)
	if err == nil {
		return routes, "", nil
	}
	if !errors.Is(err, ErrNoRoutablePoint) && !errors.Is(err, ErrRequestTooLarge) && !errors.Is(err, ErrNoRoutes) {
		return nil, "", err
	}
	if s.fallback == nil {
		return nil, "", err
	}

	s.logger.Info("primary router failed, trying fallback",
		"primary", s.primary.Name(), "fallback", s.fallback.Name(), "error", err)

	routes, err = s.callRouter(ctx, s.fallback, req)
	if err == nil {
		return routes, "", nil
	}
	if !errors.Is(err, ErrRequestTooLarge) || len(req.AvoidPolygons) == 0 {
		return nil, "", err
	}

	// Too many polygons for the fallback's URI: drop avoidance but tell the
	// user their route may pass near disaster zones.
	bare := req
	bare.AvoidPolygons = nil
	routes, err = s.callRouter(ctx, s.fallback, bare)
	if err != nil {
		return nil, "", err
	}
	warning := fmt.Sprintf("Too many disasters (%d) to avoid - showing shortest path instead. Routes may pass near disaster zones.", len(req.AvoidPolygons))
	return routes, warning, nil
}

func (s *Service) callRouter(ctx context.Context, router Router, req RouteRequest) ([]types.Route, error) {
	callCtx, cancel := context.WithTimeout(ctx, config.RouteProviderTimeout)
	defer cancel()

	breaker := s.breakers[router.Name()]
	result, err := breaker.Execute(func() (any, error) {
		return router.CalculateRoutes(callCtx, req)
	})
	if err != nil {
		metrics.RouteRequests.WithLabelValues(router.Name(), "error").Inc()
		return nil, err
	}
	metrics.RouteRequests.WithLabelValues(router.Name(), "ok").Inc()

	routes := result.([]types.Route)
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}
	return routes, nil
}

func (s *Service) baselineRoute(ctx context.Context, origin, destination types.LatLon, disasters []types.DisasterEvent, polygons []geo.Polygon) *types.Route {
	callCtx, cancel := context.WithTimeout(ctx, config.RouteProviderTimeout)
	defer cancel()

	route, err := s.baseline.BaselineRoute(callCtx, origin, destination)
	if err != nil {
		metrics.RouteRequests.WithLabelValues(s.baseline.Name(), "error").Inc()
		s.logger.Warn("baseline route failed", "provider", s.baseline.Name(), "error", err)
		return nil
	}
	metrics.RouteRequests.WithLabelValues(s.baseline.Name(), "ok").Inc()

	route.IsShortest = true
	route.IsBaseline = true
	// The shortest path can legitimately be safe when nothing is nearby.
	s.scoreRoute(route, disasters, polygons)
	return route
}

// =============================================================================
// DISASTER BUFFERS
// =============================================================================

// DisasterPolygons collects active disasters inside the padded
// origin-destination bounding box and builds their avoidance buffers.
//
// Origin exclusion is the one hard rule here: a polygon containing the
// origin is omitted, because a user inside a disaster zone must be routed
// out of it, not denied routes.
func (s *Service) DisasterPolygons(ctx context.Context, origin, destination types.LatLon) ([]geo.Polygon, []types.DisasterEvent, error) {
	bbox := geo.BoxAroundPair(origin.Lat, origin.Lon, destination.Lat, destination.Lon, config.RouteBBoxPaddingKm)
	now := s.clock.Now()

	var active []types.DisasterEvent

	reports, err := s.reports.ListReports(ctx)
	if err != nil {
		return nil, nil, err
	}
	for i := range reports {
		if s.relevantDisaster(&reports[i].DisasterEvent, bbox, now) {
			active = append(active, reports[i].DisasterEvent)
		}
	}

	for _, feed := range types.AllFeeds {
		events, err := s.feeds.GetCachedData(ctx, feed)
		if err != nil {
			s.logger.Warn("feed read failed during buffer generation", "feed", feed, "error", err)
			continue
		}
		for i := range events {
			e := &events[i]
			var keep bool
			if feed == types.FeedWeatherAlerts {
				keep = s.relevantWeatherAlert(e, bbox, now)
			} else {
				keep = s.relevantDisaster(e, bbox, now)
			}
			if keep {
				active = append(active, *e)
			}
		}
	}

	polygons := make([]geo.Polygon, 0, len(active))
	excluded := 0
	for i := range active {
		d := &active[i]
		polygon := geo.CirclePolygon(d.Latitude, d.Longitude, bufferRadius(d.Severity))
		if polygon.ContainsPoint(origin.Lat, origin.Lon) {
			excluded++
			s.logger.Info("excluding disaster containing origin from avoidance", "disaster", d.ID)
			continue
		}
		polygons = append(polygons, polygon)
	}
	if excluded > 0 {
		s.logger.Info("origin-exclusion applied", "excluded", excluded, "remaining", len(polygons))
	}

	return polygons, active, nil
}

// relevantDisaster filters standard events: in the box, a routable type,
// recent, and not a low-severity earthquake or flood (those do not affect
// roads).
func (s *Service) relevantDisaster(e *types.DisasterEvent, bbox geo.BoundingBox, now time.Time) bool {
	if !bbox.Contains(e.Latitude, e.Longitude) {
		return false
	}
	if !routeDisasterTypes[e.Type] {
		return false
	}
	if !e.Timestamp.IsZero() && now.Sub(e.Timestamp) > config.RouteDisasterMaxAge {
		return false
	}
	if e.Severity == types.SeverityLow && (e.Type == types.TypeEarthquake || e.Type == types.TypeFlood) {
		return false
	}
	return true
}

// relevantWeatherAlert keeps only Severe/Extreme alerts that have not
// expired.
func (s *Service) relevantWeatherAlert(e *types.DisasterEvent, bbox geo.BoundingBox, now time.Time) bool {
	if !bbox.Contains(e.Latitude, e.Longitude) {
		return false
	}
	if e.AlertLevel != "Severe" && e.AlertLevel != "Extreme" {
		return false
	}
	if e.Expires != nil && !now.Before(*e.Expires) {
		return false
	}
	return true
}

func bufferRadius(severity types.Severity) float64 {
	if r, ok := bufferRadiusMi[severity]; ok {
		return r
	}
	return defaultBufferMi
}

// =============================================================================
// SAFETY SCORING
// =============================================================================

// Safety score weights.
const (
	weightMinDistance = 0.50
	weightNearby      = 0.30
	weightDeviation   = 0.20
)

// scoreRoute fills the safety fields of a route against the candidate
// disaster list and avoidance polygons.
func (s *Service) scoreRoute(route *types.Route, disasters []types.DisasterEvent, polygons []geo.Polygon) {
	line := geo.LineString(route.Geometry)

	if len(disasters) == 0 {
		route.SafetyScore = 100.0
		route.MinDisasterDistanceMi = nil
		route.DisastersNearby = 0
		route.IntersectsDisasters = false
		return
	}

	minDistance := math.Inf(1)
	nearby := 0
	for i := range disasters {
		d := line.MinDistanceMi(disasters[i].Latitude, disasters[i].Longitude)
		if d < minDistance {
			minDistance = d
		}
		if d <= config.NearbyDisasterThresholdMi {
			nearby++
		}
	}

	distanceScore := 100.0
	if !math.IsInf(minDistance, 1) {
		distanceScore = 100.0 * (1.0 - math.Exp(-minDistance/config.NearbyDisasterThresholdMi))
	}

	nearbyScore := 100.0
	if nearby > 0 {
		nearbyScore = math.Max(0.0, 100.0-float64(nearby)*15.0)
	}

	deviationScore := 100.0
	if len(route.Geometry) >= 2 {
		start := route.Geometry[0]
		end := route.Geometry[len(route.Geometry)-1]
		direct := geo.Haversine(start[1], start[0], end[1], end[0])
		routeLength := line.LengthMi()
		deviation := routeLength / math.Max(direct, 0.1)
		switch {
		case deviation <= 1.1:
			deviationScore = 100.0
		case deviation <= 1.5:
			deviationScore = 100.0 - (deviation-1.1)*50.0
		default:
			deviationScore = math.Max(0.0, 100.0-(deviation-1.0)*100.0)
		}
	}

	score := distanceScore*weightMinDistance + nearbyScore*weightNearby + deviationScore*weightDeviation
	route.SafetyScore = math.Round(score*10) / 10

	if !math.IsInf(minDistance, 1) {
		rounded := math.Round(minDistance*100) / 100
		route.MinDisasterDistanceMi = &rounded
	}
	route.DisastersNearby = nearby

	route.IntersectsDisasters = false
	for _, polygon := range polygons {
		if line.IntersectsPolygon(polygon) {
			route.IntersectsDisasters = true
			break
		}
	}
}

// markBest flags the fastest and safest candidates.
func markBest(routes []types.Route) {
	if len(routes) == 0 {
		return
	}
	fastest, safest := 0, 0
	for i := range routes {
		if routes[i].DurationSeconds < routes[fastest].DurationSeconds {
			fastest = i
		}
		if routes[i].SafetyScore > routes[safest].SafetyScore {
			safest = i
		}
	}
	for i := range routes {
		routes[i].IsFastest = i == fastest
		routes[i].IsSafest = i == safest
	}
}
