package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/relief-net/disaster-intel/internal/ratelimit"
	"github.com/relief-net/disaster-intel/internal/reports"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	var maxAge *float64
	if v := r.URL.Query().Get("max_age_hours"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "max_age_hours must be a number")
			return
		}
		maxAge = &parsed
	}

	list, err := s.reports.List(r.Context(), maxAge)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"reports": list,
		"count":   len(list),
	})
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, "submit_report", ratelimit.PerHour(20), ratelimit.PerDay(100)) {
		return
	}

	// Auth is optional on submission; a bad token is still an error.
	principal, err := s.principal(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var req reports.SubmitRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.reports.Submit(r.Context(), req, principal)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := map[string]any{
		"id":               result.Report.ID,
		"report":           result.Report,
		"confidence_score": result.Report.ConfidenceScore,
		"confidence_level": result.Report.ConfidenceLevel,
	}
	if result.CredibilityUpdate != nil {
		resp["credibility_update"] = result.CredibilityUpdate
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	principal, err := s.principal(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var req reports.UpdateRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := s.reports.Update(r.Context(), r.PathValue("id"), req, principal)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	principal, err := s.principal(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if err := s.reports.Delete(r.Context(), r.PathValue("id"), principal); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleEnhanceReport(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, "enhance_ai", ratelimit.PerHour(100)) {
		return
	}

	report, err := s.reports.Enhance(r.Context(), r.PathValue("id"))
	if err != nil {
		// A processing report is a 202, not an error: the transition is
		// already underway.
		if errors.Is(err, reports.ErrConflict) && report != nil &&
			report.AIAnalysisStatus == types.AIStatusProcessing {
			s.writeJSON(w, http.StatusAccepted, report)
			return
		}
		if errors.Is(err, reports.ErrRateLimited) && report != nil {
			w.Header().Set("Retry-After", "3600")
			s.writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"report": report,
				"error":  "ai analysis unavailable",
			})
			return
		}
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBulkDeleteStale(w http.ResponseWriter, r *http.Request) {
	principal := s.requireAdmin(w, r)
	if principal == nil {
		return
	}
	if !s.allowRate(w, r, "bulk_delete", ratelimit.PerHour(5)) {
		return
	}

	var req struct {
		MaxAgeHours float64 `json:"max_age_hours"`
	}
	// An empty body means the default cutoff.
	_ = s.readJSON(r, &req)

	result, err := s.reports.BulkDeleteStale(r.Context(), req.MaxAgeHours, principal)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if len(result.FailedIDs) > 0 {
		status = http.StatusMultiStatus
	}
	s.writeJSON(w, status, result)
}
