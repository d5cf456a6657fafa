package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/safezone"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// =============================================================================
// SAFE ZONES
// =============================================================================

func (s *Server) handleSafeZones(w http.ResponseWriter, r *http.Request) {
	if s.zones == nil {
		s.writeError(w, http.StatusServiceUnavailable, "safe zone service not configured")
		return
	}

	lat, ok1 := queryFloat(r, "lat")
	lon, ok2 := queryFloat(r, "lon")
	if !ok1 || !ok2 {
		s.writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	limit := safezone.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 50 {
			limit = parsed
		}
	}
	maxDistance := safezone.DefaultMaxDistanceMi
	if v, ok := queryFloat(r, "max_distance_mi"); ok && v > 0 {
		maxDistance = v
	}
	var zoneTypes []string
	if v := r.URL.Query().Get("zone_types"); v != "" {
		for _, t := range strings.Split(v, ",") {
			t = strings.TrimSpace(t)
			if !types.KnownZoneTypes[types.SafeZoneType(t)] {
				s.writeError(w, http.StatusBadRequest, "unknown zone type: "+t)
				return
			}
			zoneTypes = append(zoneTypes, t)
		}
	}
	includeExternal := r.URL.Query().Get("include_external") != "false"

	zones, err := s.zones.GetNearest(r.Context(), lat, lon, limit, maxDistance, zoneTypes, includeExternal)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"safe_zones": zones,
		"count":      len(zones),
	})
}

func (s *Server) handleZoneSafety(w http.ResponseWriter, r *http.Request) {
	if s.zones == nil {
		s.writeError(w, http.StatusServiceUnavailable, "safe zone service not configured")
		return
	}

	threatRadius := config.SafeZoneThreatRadiusMi
	if v, ok := queryFloat(r, "threat_radius_mi"); ok && v > 0 {
		threatRadius = v
	}

	// The threat set is the live disaster picture: recent reports plus
	// every cached feed.
	disasters := s.activeDisasters(r)

	safety := s.zones.IsZoneSafe(r.Context(), r.PathValue("id"), disasters, threatRadius)
	if safety.Error == "Zone not found" {
		s.writeError(w, http.StatusNotFound, "zone not found")
		return
	}
	s.writeJSON(w, http.StatusOK, safety)
}

// activeDisasters assembles the current disaster list across all sources.
func (s *Server) activeDisasters(r *http.Request) []types.DisasterEvent {
	var disasters []types.DisasterEvent
	if reports, err := s.db.ListReports(r.Context()); err == nil {
		for i := range reports {
			disasters = append(disasters, reports[i].DisasterEvent)
		}
	}
	for _, feed := range types.AllFeeds {
		if events, err := s.feeds.GetCachedData(r.Context(), feed); err == nil {
			disasters = append(disasters, events...)
		}
	}
	return disasters
}

// =============================================================================
// ROUTING
// =============================================================================

type routeRequest struct {
	Origin         types.LatLon `json:"origin"`
	Destination    types.LatLon `json:"destination"`
	AvoidDisasters *bool        `json:"avoid_disasters"`
	Alternatives   int          `json:"alternatives"`
}

func (s *Server) handleCalculateRoutes(w http.ResponseWriter, r *http.Request) {
	if s.routes == nil {
		s.writeError(w, http.StatusServiceUnavailable, "route service not configured")
		return
	}

	var req routeRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	avoid := true
	if req.AvoidDisasters != nil {
		avoid = *req.AvoidDisasters
	}
	alternatives := req.Alternatives
	if alternatives == 0 {
		alternatives = 3
	}

	routes, err := s.routes.CalculateRoutes(r.Context(), req.Origin, req.Destination, avoid, alternatives)
	if err != nil {
		s.logger.Error("route calculation failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "route calculation failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"routes": routes,
		"count":  len(routes),
	})
}
