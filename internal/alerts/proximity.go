// Package alerts implements proximity alerting: multi-source radius scans
// over the cached feeds and user reports, severity escalation by distance,
// preference filtering, and notification materialization for authenticated
// users.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/relief-net/disaster-intel/internal/auth"
	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/geo"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// Alert escalation distance thresholds in miles.
const (
	criticalDistanceMi = 5
	highDistanceMi     = 15
	mediumDistanceMi   = 30
)

// Store is the storage surface the service needs.
type Store interface {
	GetAlertPreferences(ctx context.Context, uid string) (types.AlertPreferences, error)
	PutAlertPreferences(ctx context.Context, uid string, prefs types.AlertPreferences) error
	GetMapSettings(ctx context.Context, uid string) (types.MapSettings, error)
	PutMapSettings(ctx context.Context, uid string, settings types.MapSettings) error
	GetNotification(ctx context.Context, uid, alertID string) (*types.Notification, error)
	PutNotification(ctx context.Context, uid string, n *types.Notification) error
	ListNotifications(ctx context.Context, uid string, limit int) ([]types.Notification, error)
	HasNotificationForDisaster(ctx context.Context, uid, disasterID string) (bool, error)
	ListReports(ctx context.Context) ([]types.UserReport, error)
}

// FeedReader supplies cached feed events.
type FeedReader interface {
	GetCachedData(ctx context.Context, feed types.FeedType) ([]types.DisasterEvent, error)
}

// Service answers proximity queries and manages alert preferences.
type Service struct {
	db     Store
	feeds  FeedReader
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewService creates a proximity alert service.
func NewService(db Store, feeds FeedReader, logger *slog.Logger) *Service {
	return NewServiceWithClock(db, feeds, clockwork.NewRealClock(), logger)
}

// NewServiceWithClock creates a proximity alert service on the given clock.
func NewServiceWithClock(db Store, feeds FeedReader, clock clockwork.Clock, logger *slog.Logger) *Service {
	return &Service{db: db, feeds: feeds, clock: clock, logger: logger.With("component", "proximity_alerts")}
}

// CheckProximity scans every source for disasters within radius of the user
// and returns them sorted by distance. For authenticated users, previously
// unseen high and critical alerts are persisted as notifications unless
// quiet hours are active.
func (s *Service) CheckProximity(ctx context.Context, lat, lon, radiusMi float64, principal *auth.Principal) (*types.ProximityResult, error) {
	if !types.ValidCoordinates(lat, lon) {
		return nil, fmt.Errorf("invalid coordinates (%f, %f)", lat, lon)
	}
	if radiusMi < config.ProximityRadiusMinMi || radiusMi > config.ProximityRadiusMaxMi {
		return nil, fmt.Errorf("radius must be between %g and %g miles",
			config.ProximityRadiusMinMi, config.ProximityRadiusMaxMi)
	}

	prefs := types.DefaultAlertPreferences()
	if principal != nil {
		loaded, err := s.db.GetAlertPreferences(ctx, principal.UserID)
		if err != nil {
			s.logger.Warn("preference load failed, using defaults", "user", principal.UserID, "error", err)
		} else {
			prefs = loaded
		}
	}
	if !prefs.Enabled {
		return &types.ProximityResult{Alerts: []types.ProximityAlert{}}, nil
	}

	typeFilter := toSet(prefs.DisasterTypes)
	severityFilter := toSet(prefs.SeverityFilter)

	var alerts []types.ProximityAlert
	alerts = append(alerts, s.scanReports(ctx, lat, lon, radiusMi, typeFilter)...)
	for _, feed := range types.AllFeeds {
		alerts = append(alerts, s.scanFeed(ctx, feed, lat, lon, radiusMi, typeFilter)...)
	}

	filtered := alerts[:0]
	for _, a := range alerts {
		if severityFilter[string(a.AlertSeverity)] {
			filtered = append(filtered, a)
		}
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].DistanceMi < filtered[j].DistanceMi })

	result := &types.ProximityResult{
		Alerts: filtered,
		Count:  len(filtered),
	}
	if len(filtered) > 0 {
		closest := filtered[0].DistanceMi
		result.ClosestDistance = &closest
		highest := highestSeverity(filtered)
		result.HighestSeverity = &highest
	}

	if principal != nil {
		s.materializeNotifications(ctx, principal.UserID, prefs, filtered)
	}

	return result, nil
}

// scanReports surfaces user reports within radius.
func (s *Service) scanReports(ctx context.Context, lat, lon, radiusMi float64, typeFilter map[string]bool) []types.ProximityAlert {
	reports, err := s.db.ListReports(ctx)
	if err != nil {
		s.logger.Warn("report scan failed", "error", err)
		return nil
	}
	var alerts []types.ProximityAlert
	for i := range reports {
		r := &reports[i]
		if a, ok := s.toAlert(&r.DisasterEvent, lat, lon, radiusMi, typeFilter); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

// scanFeed surfaces one cached feed's events within radius.
func (s *Service) scanFeed(ctx context.Context, feed types.FeedType, lat, lon, radiusMi float64, typeFilter map[string]bool) []types.ProximityAlert {
	events, err := s.feeds.GetCachedData(ctx, feed)
	if err != nil {
		s.logger.Warn("feed scan failed", "feed", feed, "error", err)
		return nil
	}
	var alerts []types.ProximityAlert
	for i := range events {
		if a, ok := s.toAlert(&events[i], lat, lon, radiusMi, typeFilter); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

// toAlert applies the bounding-box prefilter, haversine cut, and type filter
// before building the alert record.
func (s *Service) toAlert(e *types.DisasterEvent, lat, lon, radiusMi float64, typeFilter map[string]bool) (types.ProximityAlert, bool) {
	if len(typeFilter) > 0 && !typeFilter[string(e.Type)] {
		return types.ProximityAlert{}, false
	}
	if !geo.WithinBox(lat, lon, e.Latitude, e.Longitude, radiusMi) {
		return types.ProximityAlert{}, false
	}
	distance := geo.Haversine(lat, lon, e.Latitude, e.Longitude)
	if distance > radiusMi {
		return types.ProximityAlert{}, false
	}

	alert := types.ProximityAlert{
		ID:            e.ID,
		Type:          e.Type,
		DisasterType:  e.Type,
		Severity:      e.Severity,
		AlertSeverity: AlertSeverityFor(e.Severity, distance),
		DistanceMi:    roundMi(distance),
		Latitude:      e.Latitude,
		Longitude:     e.Longitude,
		Source:        e.Source,
		Description:   e.Description,
		LocationName:  e.LocationName,
	}
	if !e.Timestamp.IsZero() {
		ts := e.Timestamp
		alert.Timestamp = &ts
	}
	return alert, true
}

// AlertSeverityFor escalates an alert by disaster severity and distance:
// danger close by outranks danger far away.
func AlertSeverityFor(severity types.Severity, distanceMi float64) types.Severity {
	highOrWorse := severity == types.SeverityHigh || severity == types.SeverityCritical
	switch {
	case highOrWorse && distanceMi <= criticalDistanceMi:
		return types.SeverityCritical
	case highOrWorse && distanceMi <= highDistanceMi:
		return types.SeverityHigh
	case severity.Rank() >= types.SeverityMedium.Rank() && distanceMi <= mediumDistanceMi:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// materializeNotifications persists previously-unseen high/critical alerts.
// Quiet hours suppress persistence only; query responses are unaffected.
func (s *Service) materializeNotifications(ctx context.Context, uid string, prefs types.AlertPreferences, alerts []types.ProximityAlert) {
	if s.inQuietHours(prefs.QuietHours) {
		return
	}
	now := s.clock.Now().UTC()
	for _, a := range alerts {
		if a.AlertSeverity != types.SeverityHigh && a.AlertSeverity != types.SeverityCritical {
			continue
		}
		seen, err := s.db.HasNotificationForDisaster(ctx, uid, a.ID)
		if err != nil || seen {
			continue
		}

		ts := now
		if a.Timestamp != nil {
			ts = *a.Timestamp
		}
		n := &types.Notification{
			AlertID:       uuid.New().String(),
			DisasterID:    a.ID,
			DisasterType:  a.DisasterType,
			Severity:      a.Severity,
			AlertSeverity: a.AlertSeverity,
			DistanceMi:    a.DistanceMi,
			Latitude:      a.Latitude,
			Longitude:     a.Longitude,
			Source:        a.Source,
			Timestamp:     ts,
			Description:   a.Description,
			LocationName:  a.LocationName,
			ExpiresAt:     now.Add(config.NotificationTTL),
		}
		if err := s.db.PutNotification(ctx, uid, n); err != nil {
			s.logger.Warn("failed to persist notification", "user", uid, "disaster", a.ID, "error", err)
		}
	}
}

// inQuietHours checks the current UTC HH:MM against the configured window,
// wrapping past midnight when start > end.
func (s *Service) inQuietHours(q types.QuietHours) bool {
	if !q.Enabled {
		return false
	}
	current := s.clock.Now().UTC().Format("15:04")
	if q.Start > q.End {
		return current >= q.Start || current <= q.End
	}
	return current >= q.Start && current <= q.End
}

func highestSeverity(alerts []types.ProximityAlert) types.Severity {
	highest := types.SeverityLow
	for _, a := range alerts {
		if a.AlertSeverity.Rank() > highest.Rank() {
			highest = a.AlertSeverity
		}
	}
	return highest
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func roundMi(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
