// Package reports implements the user-report lifecycle: the fast submission
// path, the asynchronous AI-enhancement transition, ownership-gated
// mutations, the admin bulk delete, and retroactive rescoring of neighbor
// reports.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/relief-net/disaster-intel/internal/ai"
	"github.com/relief-net/disaster-intel/internal/auth"
	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/credibility"
	"github.com/relief-net/disaster-intel/internal/decay"
	"github.com/relief-net/disaster-intel/internal/geo"
	"github.com/relief-net/disaster-intel/internal/geocode"
	"github.com/relief-net/disaster-intel/internal/scoring"
	"github.com/relief-net/disaster-intel/internal/store"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// Error kinds the API layer maps onto status codes.
var (
	ErrNotFound    = errors.New("report not found")
	ErrForbidden   = errors.New("not allowed to modify this report")
	ErrConflict    = errors.New("operation conflicts with report state")
	ErrRateLimited = errors.New("ai quota exhausted")
	ErrValidation  = errors.New("invalid report payload")
)

// Store is the storage surface the service needs.
type Store interface {
	GetReport(ctx context.Context, id string) (*types.UserReport, error)
	PutReport(ctx context.Context, report *types.UserReport) error
	DeleteReport(ctx context.Context, report *types.UserReport) error
	ListReports(ctx context.Context) ([]types.UserReport, error)
	ApplyConfidenceUpdates(ctx context.Context, updates []store.ConfidenceUpdate) error
	GetUserProfile(ctx context.Context, uid string) (*types.UserProfile, error)
	PutAuditLog(ctx context.Context, log *types.AuditLog) error
}

// FeedReader supplies the cached official feeds for full-corpus
// corroboration.
type FeedReader interface {
	GetCachedData(ctx context.Context, feed types.FeedType) ([]types.DisasterEvent, error)
}

// Service orchestrates the report lifecycle.
type Service struct {
	db       Store
	feeds    FeedReader
	scorer   *scoring.Scorer
	cred     *credibility.Service
	aiSvc    *ai.Service
	geocoder geocode.Geocoder
	decaySvc *decay.Service
	clock    clockwork.Clock
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService creates the report service. The geocoder may be nil; AI may be
// unconfigured (the service degrades to heuristic-only scoring).
func NewService(db Store, feeds FeedReader, scorer *scoring.Scorer, cred *credibility.Service,
	aiSvc *ai.Service, geocoder geocode.Geocoder, decaySvc *decay.Service, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		feeds:    feeds,
		scorer:   scorer,
		cred:     cred,
		aiSvc:    aiSvc,
		geocoder: geocoder,
		decaySvc: decaySvc,
		clock:    clockwork.NewRealClock(),
		validate: validator.New(),
		logger:   logger.With("component", "reports"),
	}
}

// SetClock swaps the clock. Tests use a fake clock.
func (s *Service) SetClock(clock clockwork.Clock) { s.clock = clock }

// =============================================================================
// READS
// =============================================================================

// List returns all reports, optionally bounded by age, with time decay
// injected.
func (s *Service) List(ctx context.Context, maxAgeHours *float64) ([]types.UserReport, error) {
	if maxAgeHours != nil && (*maxAgeHours < 0 || *maxAgeHours > config.MaxReportAgeFilterHours) {
		return nil, fmt.Errorf("%w: max_age_hours must be within [0, %d]", ErrValidation, config.MaxReportAgeFilterHours)
	}

	reports, err := s.db.ListReports(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]types.UserReport, 0, len(reports))
	for _, r := range reports {
		if maxAgeHours != nil {
			if decay.AgeHoursAt(r.Timestamp, now) > *maxAgeHours {
				continue
			}
		}
		d := decay.ComputeAt(r.Timestamp, now)
		r.TimeDecay = &d
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Get returns one report with time decay injected.
func (s *Service) Get(ctx context.Context, id string) (*types.UserReport, error) {
	report, err := s.db.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrNotFound
	}
	d := s.decaySvc.Compute(report.Timestamp)
	report.TimeDecay = &d
	return report, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// UpdateRequest carries the mutable fields of a report.
type UpdateRequest struct {
	Description  *string `json:"description" validate:"omitempty,max=2000"`
	Severity     *string `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	LocationName *string `json:"location_name" validate:"omitempty,max=200"`
}

// Update mutates an owned report. The ownership check happens after the
// fetch and before the write.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest, principal *auth.Principal) (*types.UserReport, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	report, err := s.db.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrNotFound
	}
	if err := s.checkOwnership(report, principal, false); err != nil {
		return nil, err
	}

	if req.Description != nil {
		report.Description = *req.Description
	}
	if req.Severity != nil {
		report.Severity = types.Severity(*req.Severity)
	}
	if req.LocationName != nil {
		report.LocationName = *req.LocationName
	}

	now := s.clock.Now().UTC()
	report.UpdatedAt = &now
	if principal != nil && principal.IsAdmin && report.UserID != principal.UserID {
		report.UpdatedByAdmin = true
	}

	// Content changed, so the heuristic changes with it. A completed AI
	// analysis is preserved and re-blended rather than re-invoked.
	s.rescoreInPlace(ctx, report)

	if err := s.db.PutReport(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Delete removes a report after the ownership check and inverts the
// submission-era credibility delta, best-effort.
func (s *Service) Delete(ctx context.Context, id string, principal *auth.Principal) error {
	report, err := s.db.GetReport(ctx, id)
	if err != nil {
		return err
	}
	if report == nil {
		return ErrNotFound
	}
	if err := s.checkOwnership(report, principal, true); err != nil {
		return err
	}

	if err := s.db.DeleteReport(ctx, report); err != nil {
		return err
	}

	// A deleted report must not keep paying out reputation. Never fail the
	// deletion over it.
	if report.UserID != "" && principal != nil && report.UserID == principal.UserID {
		var err error
		if report.SubmissionCredibilityDelta != nil {
			_, err = s.cred.ApplyDelta(ctx, report.UserID, -*report.SubmissionCredibilityDelta,
				"Report deleted by owner (submission delta inverted)")
		} else {
			_, err = s.cred.InvertSubmissionDelta(ctx, report.UserID, report.ConfidenceScore)
		}
		if err != nil {
			s.logger.Warn("failed to invert credibility after delete", "report", id, "error", err)
		}
	}
	return nil
}

// checkOwnership enforces the mutation rules: owners and admins may mutate;
// legacy reports with no owner are deletable by anyone (backward compat) but
// only editable by admins.
func (s *Service) checkOwnership(report *types.UserReport, principal *auth.Principal, isDelete bool) error {
	if report.UserID == "" {
		if isDelete {
			return nil
		}
		if principal != nil && principal.IsAdmin {
			return nil
		}
		return ErrForbidden
	}
	if principal == nil {
		return ErrForbidden
	}
	if principal.IsAdmin || principal.UserID == report.UserID {
		return nil
	}
	return ErrForbidden
}

// =============================================================================
// BULK DELETE
// =============================================================================

// BulkDeleteResult reports the outcome of an admin stale-report sweep.
type BulkDeleteResult struct {
	DeletedCount int      `json:"deleted_count"`
	DeletedIDs   []string `json:"deleted_ids"`
	FailedIDs    []string `json:"failed_ids,omitempty"`
}

// BulkDeleteStale removes user reports older than maxAgeHours. The audit log
// entry is written before any deletion so a crashed sweep is detectable, and
// updated on completion.
func (s *Service) BulkDeleteStale(ctx context.Context, maxAgeHours float64, principal *auth.Principal) (*BulkDeleteResult, error) {
	if maxAgeHours <= 0 {
		maxAgeHours = config.BulkDeleteDefaultAgeHours
	}

	now := s.clock.Now().UTC()
	audit := &types.AuditLog{
		OperationID: fmt.Sprintf("bulk_delete_%d", now.UnixNano()),
		Operation:   "bulk_delete_stale",
		RequestedBy: principal.UserID,
		StartedAt:   now,
		Status:      "in_progress",
		Detail:      fmt.Sprintf("max_age_hours=%g", maxAgeHours),
	}
	if err := s.db.PutAuditLog(ctx, audit); err != nil {
		// Best-effort: the sweep proceeds even if the audit write fails.
		s.logger.Warn("failed to write audit log", "operation", audit.OperationID, "error", err)
	}

	reports, err := s.db.ListReports(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-time.Duration(maxAgeHours * float64(time.Hour)))
	result := &BulkDeleteResult{DeletedIDs: []string{}}
	for i := range reports {
		r := &reports[i]
		if !r.Source.IsUserReport() {
			continue
		}
		if !r.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.db.DeleteReport(ctx, r); err != nil {
			s.logger.Warn("bulk delete failed for report", "report", r.ID, "error", err)
			result.FailedIDs = append(result.FailedIDs, r.ID)
			continue
		}
		result.DeletedIDs = append(result.DeletedIDs, r.ID)
		if r.UserID != "" {
			if _, err := s.cred.InvertSubmissionDelta(ctx, r.UserID, r.ConfidenceScore); err != nil {
				s.logger.Warn("failed to invert credibility in bulk delete", "report", r.ID, "error", err)
			}
		}
	}
	result.DeletedCount = len(result.DeletedIDs)

	completed := s.clock.Now().UTC()
	audit.CompletedAt = &completed
	audit.DeletedIDs = result.DeletedIDs
	audit.FailedIDs = result.FailedIDs
	audit.Status = "completed"
	if len(result.FailedIDs) > 0 {
		audit.Status = "partial"
	}
	if err := s.db.PutAuditLog(ctx, audit); err != nil {
		s.logger.Warn("failed to finalize audit log", "operation", audit.OperationID, "error", err)
	}

	return result, nil
}

// =============================================================================
// RESCORING HELPERS
// =============================================================================

// rescoreInPlace recomputes a report's heuristic confidence against its full
// neighborhood, preserving and re-blending any existing AI enhancement.
func (s *Service) rescoreInPlace(ctx context.Context, report *types.UserReport) {
	nearby, err := s.nearbyAll(ctx, report.Latitude, report.Longitude, config.NeighborRadiusMi)
	if err != nil {
		s.logger.Warn("neighborhood fetch failed during rescore", "report", report.ID, "error", err)
		nearby = nil
	}
	result := s.rescoreAgainst(report, nearby)
	report.ConfidenceScore = result.ConfidenceScore
	report.ConfidenceLevel = result.ConfidenceLevel
	report.ConfidenceBreakdown = result.Breakdown
}

// rescoreAgainst computes a fresh heuristic for the report and re-blends a
// preserved AI enhancement so AI is never re-invoked by rescoring.
func (s *Service) rescoreAgainst(report *types.UserReport, nearby []types.DisasterEvent) types.ConfidenceResult {
	heuristic := s.scorer.Calculate(report, nearby)
	if report.ConfidenceBreakdown != nil && report.ConfidenceBreakdown.AIEnhancement != nil {
		return scoring.BlendWithAI(heuristic, *report.ConfidenceBreakdown.AIEnhancement)
	}
	return heuristic
}

// distanceTo is the shared haversine hook handed to prompt summarization.
func distanceTo(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.Haversine(lat1, lon1, lat2, lon2)
}
