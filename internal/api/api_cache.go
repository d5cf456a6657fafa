package api

import (
	"fmt"
	"net/http"

	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// =============================================================================
// CACHE OPERATIONS
// =============================================================================

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"feeds": s.feeds.Status(r.Context()),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if s.requireAdmin(w, r) == nil {
		return
	}

	cleared := 0
	for _, feed := range types.AllFeeds {
		if err := s.feeds.UpdateCache(r.Context(), feed, nil); err != nil {
			s.logger.Warn("cache clear failed", "feed", feed, "error", err)
			continue
		}
		cleared++
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "cleared",
		"cleared": cleared,
	})
}

func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	if s.requireAdmin(w, r) == nil {
		return
	}

	refreshed := s.feeds.RefreshAll(r.Context(), true)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "refreshed",
		"refreshed": refreshed,
	})
}

// =============================================================================
// PUBLIC DATA PASS-THROUGH
// =============================================================================

// setBrowserCache allows clients to reuse feed responses for a few minutes;
// the data itself only changes on cache refresh.
func setBrowserCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(config.PublicDataBrowserCache.Seconds())))
}

func (s *Server) handlePublicWildfires(w http.ResponseWriter, r *http.Request) {
	events, err := s.feeds.GetCachedData(r.Context(), types.FeedWildfires)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	setBrowserCache(w)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"wildfires": events,
		"count":     len(events),
	})
}

func (s *Server) handlePublicWeatherAlerts(w http.ResponseWriter, r *http.Request) {
	events, err := s.feeds.GetCachedData(r.Context(), types.FeedWeatherAlerts)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	setBrowserCache(w)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"weather_alerts": events,
		"count":          len(events),
	})
}

func (s *Server) handlePublicAll(w http.ResponseWriter, r *http.Request) {
	all := map[string]any{}
	total := 0
	for _, feed := range types.AllFeeds {
		events, err := s.feeds.GetCachedData(r.Context(), feed)
		if err != nil {
			s.logger.Warn("feed read failed", "feed", feed, "error", err)
			events = []types.DisasterEvent{}
		}
		all[string(feed)] = events
		total += len(events)
	}
	setBrowserCache(w)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"feeds": all,
		"count": total,
	})
}
