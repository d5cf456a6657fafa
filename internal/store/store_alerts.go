package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// =============================================================================
// ALERT PREFERENCES AND MAP SETTINGS
// =============================================================================

// GetAlertPreferences loads a user's preferences, falling back to defaults
// when none are stored.
func (s *Store) GetAlertPreferences(ctx context.Context, uid string) (types.AlertPreferences, error) {
	var prefs types.AlertPreferences
	found, err := s.GetJSON(ctx, AlertPreferencesPath(uid), &prefs)
	if err != nil {
		return types.DefaultAlertPreferences(), err
	}
	if !found {
		return types.DefaultAlertPreferences(), nil
	}
	return prefs, nil
}

// PutAlertPreferences writes a user's preferences.
func (s *Store) PutAlertPreferences(ctx context.Context, uid string, prefs types.AlertPreferences) error {
	return s.Set(ctx, AlertPreferencesPath(uid), prefs)
}

// GetMapSettings loads a user's map settings, falling back to defaults.
func (s *Store) GetMapSettings(ctx context.Context, uid string) (types.MapSettings, error) {
	var settings types.MapSettings
	found, err := s.GetJSON(ctx, MapSettingsPath(uid), &settings)
	if err != nil {
		return types.DefaultMapSettings(), err
	}
	if !found {
		return types.DefaultMapSettings(), nil
	}
	return settings, nil
}

// PutMapSettings writes a user's map settings.
func (s *Store) PutMapSettings(ctx context.Context, uid string, settings types.MapSettings) error {
	return s.Set(ctx, MapSettingsPath(uid), settings)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// GetNotification loads one notification. Returns nil when absent.
func (s *Store) GetNotification(ctx context.Context, uid, alertID string) (*types.Notification, error) {
	var n types.Notification
	found, err := s.GetJSON(ctx, NotificationPath(uid, alertID), &n)
	if err != nil || !found {
		return nil, err
	}
	n.AlertID = alertID
	return &n, nil
}

// PutNotification writes one notification.
func (s *Store) PutNotification(ctx context.Context, uid string, n *types.Notification) error {
	return s.Set(ctx, NotificationPath(uid, n.AlertID), n)
}

// ListNotifications returns a user's notifications newest first, capped at
// limit.
func (s *Store) ListNotifications(ctx context.Context, uid string, limit int) ([]types.Notification, error) {
	docs, err := s.ListPrefix(ctx, NotificationPrefix(uid))
	if err != nil {
		return nil, err
	}
	notifications := make([]types.Notification, 0, len(docs))
	for id, doc := range docs {
		var n types.Notification
		if err := json.Unmarshal(doc, &n); err != nil {
			continue
		}
		n.AlertID = id
		notifications = append(notifications, n)
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].Timestamp.After(notifications[j].Timestamp)
	})
	if limit > 0 && len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

// HasNotificationForDisaster reports whether the user already has a live
// notification for the given disaster ID.
func (s *Store) HasNotificationForDisaster(ctx context.Context, uid, disasterID string) (bool, error) {
	notifications, err := s.ListNotifications(ctx, uid, 0)
	if err != nil {
		return false, err
	}
	for _, n := range notifications {
		if n.DisasterID == disasterID {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// SAFE ZONES
// =============================================================================

// ListSafeZones returns every curated safe zone.
func (s *Store) ListSafeZones(ctx context.Context) ([]types.SafeZone, error) {
	docs, err := s.ListPrefix(ctx, SafeZonePrefix)
	if err != nil {
		return nil, err
	}
	zones := make([]types.SafeZone, 0, len(docs))
	for id, doc := range docs {
		var zone types.SafeZone
		if err := json.Unmarshal(doc, &zone); err != nil {
			continue
		}
		zone.ID = id
		zones = append(zones, zone)
	}
	return zones, nil
}

// GetSafeZone loads one curated zone. Returns nil when absent.
func (s *Store) GetSafeZone(ctx context.Context, id string) (*types.SafeZone, error) {
	var zone types.SafeZone
	found, err := s.GetJSON(ctx, SafeZonePath(id), &zone)
	if err != nil || !found {
		return nil, err
	}
	zone.ID = id
	return &zone, nil
}
