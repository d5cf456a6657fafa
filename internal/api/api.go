// Package api provides the HTTP surface of the disaster intelligence
// service.
//
// # Endpoints
//
// Auth:
//   - POST /api/auth/register - Create account
//   - POST /api/auth/login - Verify token, return profile
//   - POST /api/auth/logout - Server-side token revoke
//   - GET/PUT /api/auth/profile - Own profile
//
// Reports:
//   - GET/POST /api/reports - List / submit reports
//   - GET/PUT/DELETE /api/reports/{id} - Per-report operations
//   - POST /api/reports/{id}/enhance-ai - Trigger AI enhancement
//   - POST /api/reports/bulk/delete-stale - Admin stale sweep
//
// Alerts:
//   - GET /api/alerts/proximity - Radius scan
//   - GET/PUT /api/alerts/preferences - Alert preferences
//   - POST /api/alerts/{alert_id}/acknowledge - Acknowledge notification
//   - GET /api/alerts/history - Notification history
//   - GET/PUT /api/settings/map - Map settings
//
// Safe zones and routing:
//   - GET /api/safe-zones - Nearest shelters
//   - GET /api/safe-zones/{id}/safety - Zone safety check
//   - POST /api/routes/calculate - Disaster-aware routes
//
// Feeds:
//   - GET /api/cache/status, POST /api/cache/{clear,refresh} - Cache ops
//   - GET /api/public-data/{wildfires,weather-alerts,all} - Cached feeds
//
// Health:
//   - GET /api/health - Liveness with process stats
//   - GET /metrics - Prometheus metrics
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/relief-net/disaster-intel/internal/alerts"
	"github.com/relief-net/disaster-intel/internal/auth"
	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/feeds"
	"github.com/relief-net/disaster-intel/internal/ratelimit"
	"github.com/relief-net/disaster-intel/internal/reports"
	"github.com/relief-net/disaster-intel/internal/routing"
	"github.com/relief-net/disaster-intel/internal/safezone"
	"github.com/relief-net/disaster-intel/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	db       *store.Store
	reports  *reports.Service
	alerts   *alerts.Service
	zones    *safezone.Service
	routes   *routing.Service
	feeds    *feeds.Manager
	verifier auth.Verifier
	identity *auth.Client
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	mux      *http.ServeMux

	startTime time.Time
}

// Deps bundles the services the server fronts. Routing and safe zones may be
// nil when their providers are unconfigured; their endpoints then return 503.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Reports  *reports.Service
	Alerts   *alerts.Service
	Zones    *safezone.Service
	Routes   *routing.Service
	Feeds    *feeds.Manager
	Verifier auth.Verifier
	Identity *auth.Client
	Limiter  *ratelimit.Limiter
}

// NewServer creates a new API server.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       deps.Config,
		db:        deps.Store,
		reports:   deps.Reports,
		alerts:    deps.Alerts,
		zones:     deps.Zones,
		routes:    deps.Routes,
		feeds:     deps.Feeds,
		verifier:  deps.Verifier,
		identity:  deps.Identity,
		limiter:   deps.Limiter,
		logger:    logger,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler: CORS, security headers, request size
// cap, default rate limit, then the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w, r)
	s.setSecurityHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBytes)

	if !s.limiter.AllowDefault(clientKey(r)) {
		w.Header().Set("Retry-After", "60")
		s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"duration", time.Since(start))
}

func (s *Server) registerRoutes() {
	// Health and metrics
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Auth
	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("GET /api/auth/profile", s.handleGetProfile)
	s.mux.HandleFunc("PUT /api/auth/profile", s.handleUpdateProfile)

	// Reports
	s.mux.HandleFunc("GET /api/reports", s.handleListReports)
	s.mux.HandleFunc("POST /api/reports", s.handleSubmitReport)
	s.mux.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	s.mux.HandleFunc("PUT /api/reports/{id}", s.handleUpdateReport)
	s.mux.HandleFunc("DELETE /api/reports/{id}", s.handleDeleteReport)
	s.mux.HandleFunc("POST /api/reports/{id}/enhance-ai", s.handleEnhanceReport)
	s.mux.HandleFunc("POST /api/reports/bulk/delete-stale", s.handleBulkDeleteStale)

	// Alerts
	s.mux.HandleFunc("GET /api/alerts/proximity", s.handleProximity)
	s.mux.HandleFunc("GET /api/alerts/preferences", s.handleGetPreferences)
	s.mux.HandleFunc("PUT /api/alerts/preferences", s.handleUpdatePreferences)
	s.mux.HandleFunc("POST /api/alerts/{alert_id}/acknowledge", s.handleAcknowledgeAlert)
	s.mux.HandleFunc("GET /api/alerts/history", s.handleAlertHistory)

	// Map settings
	s.mux.HandleFunc("GET /api/settings/map", s.handleGetMapSettings)
	s.mux.HandleFunc("PUT /api/settings/map", s.handleUpdateMapSettings)

	// Safe zones and routing
	s.mux.HandleFunc("GET /api/safe-zones", s.handleSafeZones)
	s.mux.HandleFunc("GET /api/safe-zones/{id}/safety", s.handleZoneSafety)
	s.mux.HandleFunc("POST /api/routes/calculate", s.handleCalculateRoutes)

	// Cache and public data
	s.mux.HandleFunc("GET /api/cache/status", s.handleCacheStatus)
	s.mux.HandleFunc("POST /api/cache/clear", s.handleCacheClear)
	s.mux.HandleFunc("POST /api/cache/refresh", s.handleCacheRefresh)
	s.mux.HandleFunc("GET /api/public-data/wildfires", s.handlePublicWildfires)
	s.mux.HandleFunc("GET /api/public-data/weather-alerts", s.handlePublicWeatherAlerts)
	s.mux.HandleFunc("GET /api/public-data/all", s.handlePublicAll)
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":         "ok",
		"time":           time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			health["memory_rss_bytes"] = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			health["cpu_percent"] = cpu
		}
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			health["status"] = "degraded"
			health["database"] = "unreachable"
		} else {
			health["database"] = "ok"
		}
	}

	s.writeJSON(w, http.StatusOK, health)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service error kinds onto status codes with a
// structured body.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reports.ErrValidation), errors.Is(err, alerts.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reports.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, reports.ErrForbidden):
		s.writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, reports.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, reports.ErrRateLimited):
		w.Header().Set("Retry-After", "3600")
		s.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		s.writeError(w, http.StatusUnauthorized, "authentication required")
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
