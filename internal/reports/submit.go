package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/relief-net/disaster-intel/internal/ai"
	"github.com/relief-net/disaster-intel/internal/auth"
	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/credibility"
	"github.com/relief-net/disaster-intel/internal/geo"
	"github.com/relief-net/disaster-intel/internal/metrics"
	"github.com/relief-net/disaster-intel/internal/scoring"
	"github.com/relief-net/disaster-intel/internal/store"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// SubmitRequest is the report submission payload.
type SubmitRequest struct {
	Type               string   `json:"type" validate:"required"`
	Latitude           float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude          float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Severity           string   `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Description        string   `json:"description" validate:"omitempty,max=2000"`
	ImageURL           string   `json:"image_url" validate:"omitempty,url,max=2000"`
	LocationName       string   `json:"location_name" validate:"omitempty,max=200"`
	Timestamp          string   `json:"timestamp" validate:"omitempty"`
	RecaptchaScore     *float64 `json:"recaptcha_score" validate:"omitempty,gte=0,lte=1"`
	UserDistanceMi     *float64 `json:"user_distance_mi" validate:"omitempty,gte=0"`
	AffectedPopulation *int     `json:"affected_population" validate:"omitempty,gte=0"`
}

// SubmitResult is returned to the client with a 201.
type SubmitResult struct {
	Report            *types.UserReport   `json:"report"`
	CredibilityUpdate *credibility.Change `json:"credibility_update,omitempty"`
}

// Submit runs the fast submission path: validate, snapshot credibility,
// score against nearby user reports only (official feeds are skipped for
// latency), persist, update the submitter's credibility, and start the
// retroactive neighbor rescore in the background. Geocoding, full-corpus
// corroboration and AI run later in Enhance.
func (s *Service) Submit(ctx context.Context, req SubmitRequest, principal *auth.Principal) (*SubmitResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.ImageURL != "" {
		if err := ValidateImageURL(req.ImageURL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	report := s.buildReport(req, principal)

	// Nearby user reports only; the full corpus waits for enhance.
	nearby, err := s.nearbyUserReports(ctx, report.Latitude, report.Longitude, config.NeighborRadiusMi, report.ID)
	if err != nil {
		s.logger.Warn("nearby report fetch failed, scoring without corroboration", "error", err)
		nearby = nil
	}

	var result types.ConfidenceResult
	if principal != nil {
		snapshot := s.credibilitySnapshot(ctx, principal.UserID)
		report.UserCredibilityAtSubmission = &snapshot
		result = s.scorer.CalculateWithUserCredibility(report, snapshot, nearby)
	} else {
		result = s.scorer.Calculate(report, nearby)
	}
	report.ConfidenceScore = result.ConfidenceScore
	report.ConfidenceLevel = result.ConfidenceLevel
	report.ConfidenceBreakdown = result.Breakdown

	report.AIAnalysisStatus = s.initialAIStatus(ctx, report)

	if err := s.db.PutReport(ctx, report); err != nil {
		return nil, err
	}
	metrics.ReportsSubmitted.WithLabelValues(string(report.Source)).Inc()

	out := &SubmitResult{Report: report}
	if principal != nil {
		change, err := s.cred.UpdateAfterSubmission(ctx, principal.UserID, report.ID,
			report.ConfidenceScore, report.Latitude, report.Longitude)
		if err != nil {
			// Credibility problems never fail a submission.
			s.logger.Warn("credibility update failed", "user", principal.UserID, "error", err)
		} else {
			out.CredibilityUpdate = &change
			report.SubmissionCredibilityDelta = &change.Delta
			if err := s.db.PutReport(ctx, report); err != nil {
				s.logger.Warn("failed to persist submission delta", "report", report.ID, "error", err)
			}
		}
	}

	// Neighbors gain corroboration from this report immediately; failures
	// never surface to the submitter.
	s.retroRescoreAsync(report.Latitude, report.Longitude, report.ID)

	return out, nil
}

func (s *Service) buildReport(req SubmitRequest, principal *auth.Principal) *types.UserReport {
	now := s.clock.Now().UTC()
	ts := now
	if req.Timestamp != "" {
		if parsed, ok := parseTimestamp(req.Timestamp); ok && !parsed.After(now) {
			ts = parsed
		}
	}

	source := types.SourceUserReport
	userID := ""
	if principal != nil {
		source = types.SourceUserReportAuth
		userID = principal.UserID
	}

	return &types.UserReport{
		DisasterEvent: types.DisasterEvent{
			ID:           uuid.New().String(),
			Source:       source,
			Type:         types.DisasterType(req.Type),
			Latitude:     req.Latitude,
			Longitude:    req.Longitude,
			Severity:     types.Severity(req.Severity),
			Timestamp:    ts,
			Description:  req.Description,
			LocationName: req.LocationName,
			ImageURL:     req.ImageURL,
		},
		UserID:             userID,
		RecaptchaScore:     req.RecaptchaScore,
		UserDistanceMi:     req.UserDistanceMi,
		AffectedPopulation: req.AffectedPopulation,
	}
}

// initialAIStatus resolves the created-state transition of the AI state
// machine: pending only when the report qualifies and quota remains.
func (s *Service) initialAIStatus(ctx context.Context, report *types.UserReport) types.AIAnalysisStatus {
	if s.aiSvc == nil || !s.aiSvc.Eligible(report) {
		return types.AIStatusNotApplicable
	}
	if !s.aiSvc.QuotaAvailable(ctx) {
		return types.AIStatusNotApplicable
	}
	return types.AIStatusPending
}

func (s *Service) credibilitySnapshot(ctx context.Context, uid string) int {
	profile, err := s.db.GetUserProfile(ctx, uid)
	if err != nil || profile == nil {
		return 50
	}
	return profile.CredibilityScore
}

// =============================================================================
// ENHANCE
// =============================================================================

// Enhance runs the deferred half of the pipeline for one report. The state
// machine is enforced here: pending -> processing -> completed|failed, with
// terminal states idempotent.
func (s *Service) Enhance(ctx context.Context, id string) (*types.UserReport, error) {
	report, err := s.db.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrNotFound
	}

	switch report.AIAnalysisStatus {
	case types.AIStatusCompleted:
		return report, nil // idempotent success
	case types.AIStatusFailed:
		return report, ErrRateLimited
	case types.AIStatusNotApplicable:
		return report, fmt.Errorf("%w: report is not eligible for AI analysis", ErrConflict)
	case types.AIStatusProcessing:
		return report, fmt.Errorf("%w: enhancement already in progress", ErrConflict)
	}

	report.AIAnalysisStatus = types.AIStatusProcessing
	if err := s.db.PutReport(ctx, report); err != nil {
		return nil, err
	}

	submissionConfidence := report.ConfidenceScore

	// Location enrichment is best-effort.
	if report.LocationName == "" && s.geocoder != nil {
		geoCtx, cancel := context.WithTimeout(ctx, config.GeocodeTimeout)
		if name, err := s.geocoder.ReverseGeocode(geoCtx, report.Latitude, report.Longitude); err == nil && name != "" {
			report.LocationName = name
		}
		cancel()
	}

	// Full 50-mile neighborhood across every feed.
	nearby, err := s.nearbyAll(ctx, report.Latitude, report.Longitude, config.NeighborRadiusMi)
	if err != nil {
		s.logger.Warn("full neighborhood fetch failed", "report", id, "error", err)
		nearby = nil
	}

	heuristic := s.heuristicWithCredibility(ctx, report, nearby)

	aiResult, aiErr := s.runAI(ctx, report, nearby)
	if aiErr != nil {
		report.AIAnalysisStatus = types.AIStatusFailed
		report.AIFailureReason = aiErr.Error()
		report.ConfidenceScore = heuristic.ConfidenceScore
		report.ConfidenceLevel = heuristic.ConfidenceLevel
		report.ConfidenceBreakdown = heuristic.Breakdown
		if err := s.db.PutReport(ctx, report); err != nil {
			return nil, err
		}
		if isQuotaErr(aiErr) {
			return report, fmt.Errorf("%w: %v", ErrRateLimited, aiErr)
		}
		return report, nil
	}

	blended := scoring.BlendWithAI(heuristic, types.AIEnhancementDetail{
		Score:     aiResult.Score,
		Reasoning: aiResult.Reasoning,
		Provider:  aiResult.Provider,
	})
	report.ConfidenceScore = blended.ConfidenceScore
	report.ConfidenceLevel = blended.ConfidenceLevel
	report.ConfidenceBreakdown = blended.Breakdown
	report.AIAnalysisStatus = types.AIStatusCompleted
	report.AIFailureReason = ""
	if err := s.db.PutReport(ctx, report); err != nil {
		return nil, err
	}

	// The net credibility movement must track the final confidence.
	if report.UserID != "" {
		if _, err := s.cred.ApplyEnhancementDelta(ctx, report.UserID, submissionConfidence, report.ConfidenceScore); err != nil {
			s.logger.Warn("credibility follow-up failed", "report", id, "error", err)
		}
	}

	s.retroRescoreAsync(report.Latitude, report.Longitude, report.ID)

	return report, nil
}

func (s *Service) heuristicWithCredibility(ctx context.Context, report *types.UserReport, nearby []types.DisasterEvent) types.ConfidenceResult {
	if report.UserID != "" {
		return s.scorer.CalculateWithUserCredibility(report, s.credibilitySnapshot(ctx, report.UserID), nearby)
	}
	return s.scorer.Calculate(report, nearby)
}

// runAI executes the provider chain under quota and cache rules.
func (s *Service) runAI(ctx context.Context, report *types.UserReport, nearby []types.DisasterEvent) (*ai.Result, error) {
	if s.aiSvc == nil || !s.aiSvc.Configured() {
		return nil, fmt.Errorf("no ai provider configured")
	}

	// Identical content within 24 hours reuses the cached analysis without
	// spending quota.
	if cached, ok := s.aiSvc.CachedResult(ctx, report); ok {
		return cached, nil
	}

	if err := s.aiSvc.Admit(ctx); err != nil {
		return nil, err
	}

	promptCtx := ai.SummarizeNeighbors(report, nearby, distanceTo)
	promptCtx.LocationText = report.LocationName
	return s.aiSvc.Analyze(ctx, report, promptCtx)
}

func isQuotaErr(err error) bool {
	return errors.Is(err, ai.ErrQuotaExhausted)
}

// =============================================================================
// NEIGHBORHOOD QUERIES
// =============================================================================

// nearbyUserReports returns user reports within radius, excluding the given
// ID. This is the submit-path query: official feeds are skipped for latency.
func (s *Service) nearbyUserReports(ctx context.Context, lat, lon, radiusMi float64, excludeID string) ([]types.DisasterEvent, error) {
	reports, err := s.db.ListReports(ctx)
	if err != nil {
		return nil, err
	}
	var nearby []types.DisasterEvent
	for i := range reports {
		r := &reports[i]
		if r.ID == excludeID {
			continue
		}
		if !geo.WithinBox(lat, lon, r.Latitude, r.Longitude, radiusMi) {
			continue
		}
		if geo.Haversine(lat, lon, r.Latitude, r.Longitude) <= radiusMi {
			nearby = append(nearby, r.DisasterEvent)
		}
	}
	return nearby, nil
}

// nearbyAll returns user reports plus every cached feed's events within
// radius. Bounding-box prefilters bound per-record cost.
func (s *Service) nearbyAll(ctx context.Context, lat, lon, radiusMi float64) ([]types.DisasterEvent, error) {
	nearby, err := s.nearbyUserReports(ctx, lat, lon, radiusMi, "")
	if err != nil {
		return nil, err
	}
	for _, feed := range types.AllFeeds {
		events, err := s.feeds.GetCachedData(ctx, feed)
		if err != nil {
			s.logger.Warn("feed cache read failed", "feed", feed, "error", err)
			continue
		}
		for i := range events {
			e := &events[i]
			if !geo.WithinBox(lat, lon, e.Latitude, e.Longitude, radiusMi) {
				continue
			}
			if geo.Haversine(lat, lon, e.Latitude, e.Longitude) <= radiusMi {
				nearby = append(nearby, *e)
			}
		}
	}
	return nearby, nil
}

// =============================================================================
// RETROACTIVE RESCORING
// =============================================================================

// retroRescoreAsync runs the neighbor rescore in the background. It must
// never fail the triggering request, so errors are logged only.
func (s *Service) retroRescoreAsync(lat, lon float64, excludeID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.EnhanceTimeout)
		defer cancel()
		if err := s.RetroRescore(ctx, lat, lon, excludeID); err != nil {
			s.logger.Warn("retroactive rescore failed", "trigger", excludeID, "error", err)
		}
	}()
}

// RetroRescore re-invokes the scorer for the 20 nearest user reports within
// 50 miles of a point and writes every update in one multi-path batch.
// Existing AI enhancements are preserved and re-blended.
func (s *Service) RetroRescore(ctx context.Context, lat, lon float64, excludeID string) error {
	reports, err := s.db.ListReports(ctx)
	if err != nil {
		return err
	}

	type candidate struct {
		report   types.UserReport
		distance float64
	}
	var candidates []candidate
	for i := range reports {
		r := reports[i]
		if r.ID == excludeID || !r.Source.IsUserReport() {
			continue
		}
		if !geo.WithinBox(lat, lon, r.Latitude, r.Longitude, config.NeighborRadiusMi) {
			continue
		}
		d := geo.Haversine(lat, lon, r.Latitude, r.Longitude)
		if d <= config.NeighborRadiusMi {
			candidates = append(candidates, candidate{report: r, distance: d})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].distance < candidates[j].distance })
	if len(candidates) > config.RetroRescoreLimit {
		candidates = candidates[:config.RetroRescoreLimit]
	}

	updates := make([]store.ConfidenceUpdate, 0, len(candidates))
	for i := range candidates {
		r := candidates[i].report
		neighborhood, err := s.nearbyAll(ctx, r.Latitude, r.Longitude, config.NeighborRadiusMi)
		if err != nil {
			s.logger.Warn("neighborhood fetch failed during retro rescore", "report", r.ID, "error", err)
			continue
		}
		// Exclude the report itself from its own neighborhood.
		filtered := neighborhood[:0]
		for _, n := range neighborhood {
			if n.ID != r.ID {
				filtered = append(filtered, n)
			}
		}
		result := s.rescoreAgainst(&r, filtered)
		updates = append(updates, store.ConfidenceUpdate{Report: &candidates[i].report, Result: result})
	}

	if err := s.db.ApplyConfidenceUpdates(ctx, updates); err != nil {
		return fmt.Errorf("applying retroactive updates: %w", err)
	}
	s.logger.Info("retroactively rescored neighbor reports", "count", len(updates))
	return nil
}
