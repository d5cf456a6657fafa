package api

import (
	"net/http"
	"time"

	"github.com/relief-net/disaster-intel/internal/auth"
	"github.com/relief-net/disaster-intel/internal/ratelimit"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// =============================================================================
// AUTH ENDPOINTS
// =============================================================================

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, "register", ratelimit.PerHour(3), ratelimit.PerDay(10)) {
		return
	}

	var req registerRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := auth.ValidateEmail(req.Email); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	displayName := auth.SanitizeDisplayName(req.DisplayName)

	userID, err := s.identity.CreateUser(r.Context(), req.Email, req.Password, displayName)
	if err != nil {
		s.logger.Error("registration failed", "error", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	profile := &types.UserProfile{
		UserID:           userID,
		Email:            req.Email,
		DisplayName:      displayName,
		CreatedAt:        now,
		LastActive:       now,
		CredibilityScore: 50,
		CredibilityLevel: types.CredibilityLevelFor(50),
	}
	if err := s.db.PutUserProfile(r.Context(), profile); err != nil {
		s.logger.Error("profile creation failed", "user", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create profile")
		return
	}

	s.writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, "login", ratelimit.Per(5, 15*time.Minute), ratelimit.PerDay(20)) {
		return
	}

	var req struct {
		IDToken string `json:"id_token"`
	}
	if err := s.readJSON(r, &req); err != nil || req.IDToken == "" {
		s.writeError(w, http.StatusBadRequest, "id_token is required")
		return
	}

	principal, err := s.verifier.Verify(r.Context(), req.IDToken)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	profile, err := s.db.GetUserProfile(r.Context(), principal.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	now := time.Now().UTC()
	if profile == nil {
		// First verification creates the profile. Verified third-party
		// identities start slightly above neutral.
		score := 50
		if principal.EmailVerified {
			score = 55
		}
		profile = &types.UserProfile{
			UserID:           principal.UserID,
			Email:            principal.Email,
			CreatedAt:        now,
			CredibilityScore: score,
			CredibilityLevel: types.CredibilityLevelFor(score),
		}
	}
	profile.LastActive = now
	if err := s.db.PutUserProfile(r.Context(), profile); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token != "" {
		if err := s.identity.Revoke(r.Context(), token); err != nil {
			s.logger.Warn("token revoke failed", "error", err)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p := s.requirePrincipal(w, r)
	if p == nil {
		return
	}

	profile, err := s.db.GetUserProfile(r.Context(), p.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if profile == nil {
		s.writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p := s.requirePrincipal(w, r)
	if p == nil {
		return
	}

	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := s.db.GetUserProfile(r.Context(), p.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if profile == nil {
		s.writeError(w, http.StatusNotFound, "profile not found")
		return
	}

	// Only the display name is client-mutable.
	profile.DisplayName = auth.SanitizeDisplayName(req.DisplayName)
	profile.LastActive = time.Now().UTC()
	if err := s.db.PutUserProfile(r.Context(), profile); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}
