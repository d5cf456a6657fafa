package types

import "time"

// =============================================================================
// ALERT PREFERENCES
// =============================================================================

// QuietHours suppresses notification materialization inside a daily UTC
// window. Start and End are "HH:MM"; a Start after End wraps past midnight.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// AlertPreferences controls which proximity alerts a user sees and which are
// persisted as notifications.
type AlertPreferences struct {
	Enabled              bool       `json:"enabled"`
	RadiusMi             float64    `json:"radius_mi" validate:"gte=5,lte=50"`
	ShowRadiusCircle     bool       `json:"show_radius_circle"`
	SeverityFilter       []string   `json:"severity_filter" validate:"dive,oneof=critical high medium low"`
	DisasterTypes        []string   `json:"disaster_types" validate:"dive,oneof=earthquake flood wildfire hurricane tornado volcano drought"`
	NotificationChannels []string   `json:"notification_channels"`
	QuietHours           QuietHours `json:"quiet_hours"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
}

// DefaultAlertPreferences returns the preferences applied until a user saves
// their own.
func DefaultAlertPreferences() AlertPreferences {
	return AlertPreferences{
		Enabled:          true,
		RadiusMi:         50,
		ShowRadiusCircle: true,
		SeverityFilter:   []string{"critical", "high", "medium", "low"},
		DisasterTypes: []string{
			"earthquake", "flood", "wildfire", "hurricane",
			"tornado", "volcano", "drought",
		},
		NotificationChannels: []string{"in_app"},
		QuietHours: QuietHours{
			Enabled: false,
			Start:   "22:00",
			End:     "07:00",
		},
	}
}

// MapSettings is the per-user map display configuration.
type MapSettings struct {
	ZoomRadiusMi     float64    `json:"zoom_radius_mi" validate:"gte=1,lte=100"`
	DisplayRadiusMi  float64    `json:"display_radius_mi" validate:"gte=1,lte=100"`
	AutoZoom         bool       `json:"auto_zoom"`
	ShowAllDisasters bool       `json:"show_all_disasters"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// DefaultMapSettings returns the settings applied until a user saves their own.
func DefaultMapSettings() MapSettings {
	return MapSettings{
		ZoomRadiusMi:    20,
		DisplayRadiusMi: 20,
		AutoZoom:        true,
	}
}

// =============================================================================
// PROXIMITY ALERTS AND NOTIFICATIONS
// =============================================================================

// ProximityAlert is one disaster surfaced by a radius scan, annotated with
// distance and the escalated alert severity.
type ProximityAlert struct {
	ID            string       `json:"id"`
	Type          DisasterType `json:"type"`
	DisasterType  DisasterType `json:"disaster_type"`
	Severity      Severity     `json:"severity"`
	AlertSeverity Severity     `json:"alert_severity"`
	DistanceMi    float64      `json:"distance_mi"`
	Latitude      float64      `json:"latitude"`
	Longitude     float64      `json:"longitude"`
	Source        Source       `json:"source"`
	Timestamp     *time.Time   `json:"timestamp"`
	Description   string       `json:"description,omitempty"`
	LocationName  string       `json:"location_name,omitempty"`
}

// ProximityResult is the response of a proximity scan.
type ProximityResult struct {
	Alerts          []ProximityAlert `json:"alerts"`
	HighestSeverity *Severity        `json:"highest_severity"`
	Count           int              `json:"count"`
	ClosestDistance *float64         `json:"closest_distance"`
}

// Notification is a persisted high/critical proximity alert. Notifications
// are immutable after creation except for acknowledgement, and expire 24
// hours after they are written.
type Notification struct {
	AlertID        string       `json:"alert_id,omitempty"`
	DisasterID     string       `json:"disaster_id"`
	DisasterType   DisasterType `json:"disaster_type"`
	Severity       Severity     `json:"severity"`
	AlertSeverity  Severity     `json:"alert_severity"`
	DistanceMi     float64      `json:"distance_mi"`
	Latitude       float64      `json:"latitude"`
	Longitude      float64      `json:"longitude"`
	Source         Source       `json:"source"`
	Timestamp      time.Time    `json:"timestamp"`
	Description    string       `json:"description,omitempty"`
	LocationName   string       `json:"location_name,omitempty"`
	Acknowledged   bool         `json:"acknowledged"`
	AcknowledgedAt *time.Time   `json:"acknowledged_at,omitempty"`
	ExpiresAt      time.Time    `json:"expires_at"`
}
