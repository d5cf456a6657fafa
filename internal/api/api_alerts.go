package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/relief-net/disaster-intel/internal/ratelimit"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// =============================================================================
// PROXIMITY ALERTS
// =============================================================================

func (s *Server) handleProximity(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, "proximity", ratelimit.PerHour(600)) {
		return
	}

	principal, err := s.principal(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	lat, ok1 := queryFloat(r, "lat")
	lon, ok2 := queryFloat(r, "lon")
	if !ok1 || !ok2 {
		s.writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	radius := 50.0
	if v, ok := queryFloat(r, "radius"); ok {
		radius = v
	}

	result, err := s.alerts.CheckProximity(r.Context(), lat, lon, radius, principal)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// PREFERENCES
// =============================================================================

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p := s.requirePrincipal(w, r)
	if p == nil {
		return
	}
	if !s.allowRate(w, r, "preferences_read", ratelimit.PerHour(100)) {
		return
	}

	prefs, err := s.alerts.GetPreferences(r.Context(), p.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	p := s.requirePrincipal(w, r)
	if p == nil {
		return
	}
	if !s.allowRate(w, r, "preferences_write", ratelimit.PerHour(20)) {
		return
	}

	var prefs types.AlertPreferences
	if err := s.readJSON(r, &prefs); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := s.alerts.UpdatePreferences(r.Context(), p.UserID, prefs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	p := s.requirePrincipal(w, r)
	if p == nil {
		return
	}
	if !s.allowRate(w, r, "acknowledge", ratelimit.PerHour(100)) {
		return
	}

	found, err := s.alerts.Acknowledge(r.Context(), p.UserID, r.PathValue("alert_id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "acknowledged",
		"acknowledged_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	p := s.requirePrincipal(w, r)
	if p == nil {
		return
	}
	if !s.allowRate(w, r, "history", ratelimit.PerHour(100)) {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	history, err := s.alerts.History(r.Context(), p.UserID, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"notifications": history,
		"count":         len(history),
	})
}

// =============================================================================
// MAP SETTINGS
// =============================================================================

func (s *Server) handleGetMapSettings(w http.ResponseWriter, r *http.Request) {
	p := s.requirePrincipal(w, r)
	if p == nil {
		return
	}
	if !s.allowRate(w, r, "map_settings_read", ratelimit.PerHour(100)) {
		return
	}

	settings, err := s.alerts.GetMapSettings(r.Context(), p.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateMapSettings(w http.ResponseWriter, r *http.Request) {
	p := s.requirePrincipal(w, r)
	if p == nil {
		return
	}
	if !s.allowRate(w, r, "map_settings_write", ratelimit.PerHour(20)) {
		return
	}

	var settings types.MapSettings
	if err := s.readJSON(r, &settings); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := s.alerts.UpdateMapSettings(r.Context(), p.UserID, settings)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

// queryFloat parses a float query parameter.
func queryFloat(r *http.Request, name string) (float64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
