package alerts

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// ErrValidation marks a rejected preference or settings payload.
var ErrValidation = errors.New("invalid preferences")

var hhmmPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

var validate = validator.New()

// GetPreferences returns a user's alert preferences (defaults when unset).
func (s *Service) GetPreferences(ctx context.Context, uid string) (types.AlertPreferences, error) {
	return s.db.GetAlertPreferences(ctx, uid)
}

// UpdatePreferences validates and persists a user's alert preferences.
func (s *Service) UpdatePreferences(ctx context.Context, uid string, prefs types.AlertPreferences) (types.AlertPreferences, error) {
	if err := validate.Struct(prefs); err != nil {
		return prefs, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if prefs.QuietHours.Enabled {
		if !hhmmPattern.MatchString(prefs.QuietHours.Start) || !hhmmPattern.MatchString(prefs.QuietHours.End) {
			return prefs, fmt.Errorf("%w: quiet hours must use HH:MM", ErrValidation)
		}
	}
	if len(prefs.NotificationChannels) == 0 {
		prefs.NotificationChannels = []string{"in_app"}
	}

	now := s.clock.Now().UTC()
	prefs.UpdatedAt = &now
	if err := s.db.PutAlertPreferences(ctx, uid, prefs); err != nil {
		return prefs, err
	}
	return prefs, nil
}

// GetMapSettings returns a user's map settings (defaults when unset).
func (s *Service) GetMapSettings(ctx context.Context, uid string) (types.MapSettings, error) {
	return s.db.GetMapSettings(ctx, uid)
}

// UpdateMapSettings validates and persists a user's map settings.
func (s *Service) UpdateMapSettings(ctx context.Context, uid string, settings types.MapSettings) (types.MapSettings, error) {
	if err := validate.Struct(settings); err != nil {
		return settings, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	now := s.clock.Now().UTC()
	settings.UpdatedAt = &now
	if err := s.db.PutMapSettings(ctx, uid, settings); err != nil {
		return settings, err
	}
	return settings, nil
}

// Acknowledge marks a notification acknowledged. Acknowledging twice is a
// no-op; a missing notification reports false.
func (s *Service) Acknowledge(ctx context.Context, uid, alertID string) (bool, error) {
	n, err := s.db.GetNotification(ctx, uid, alertID)
	if err != nil {
		return false, err
	}
	if n == nil {
		return false, nil
	}
	if n.Acknowledged {
		return true, nil
	}
	now := s.clock.Now().UTC()
	n.Acknowledged = true
	n.AcknowledgedAt = &now
	return true, s.db.PutNotification(ctx, uid, n)
}

// History returns the user's most recent notifications, newest first.
func (s *Service) History(ctx context.Context, uid string, limit int) ([]types.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.db.ListNotifications(ctx, uid, limit)
}
