// Package credibility implements the user reputation system: per-submission
// score deltas driven by report confidence, recovery bonuses, diminishing
// returns for clustered reporting, and spam penalties.
//
// Scores live in [0,100]; the level is always a pure function of the score.
// Every mutation appends a history entry with its reason. Writes are
// read-modify-write without transactions: concurrent updates to one user may
// lose the smaller delta, which is accepted and reconstructible from the
// history log.
package credibility

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/relief-net/disaster-intel/internal/geo"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// Spam and farming thresholds.
const (
	volumeSpamThreshold  = 10  // reports per 24h before volume spam
	duplicateWindowHours = 1.0 // duplicate-location window
	duplicateRadiusMi    = 1.0
	farmingRadiusMi      = 10.0
	lowQualityStreak     = 5
	lowQualityConfidence = 0.6
	volumeSpamPenalty    = -5
	duplicateSpamPenalty = -5
	lowQualityPenalty    = -3
)

// Store is the storage surface the service needs.
type Store interface {
	GetUserProfile(ctx context.Context, uid string) (*types.UserProfile, error)
	PutUserProfile(ctx context.Context, profile *types.UserProfile) error
	AppendCredibilityChange(ctx context.Context, uid string, change types.CredibilityChange) error
	ListUserReportTracking(ctx context.Context, uid string) ([]types.ReportTrackingRow, error)
}

// Change reports one credibility mutation back to the caller.
type Change struct {
	OldCredibility int    `json:"old_credibility"`
	NewCredibility int    `json:"new_credibility"`
	Delta          int    `json:"delta"`
	Reason         string `json:"reason"`
}

// Service mutates user credibility.
type Service struct {
	db     Store
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewService creates a credibility service.
func NewService(db Store, logger *slog.Logger) *Service {
	return NewServiceWithClock(db, clockwork.NewRealClock(), logger)
}

// NewServiceWithClock creates a credibility service on the given clock.
func NewServiceWithClock(db Store, clock clockwork.Clock, logger *slog.Logger) *Service {
	return &Service{db: db, clock: clock, logger: logger.With("component", "credibility")}
}

// BaseDelta maps a report's final confidence onto its credibility delta.
func BaseDelta(confidence float64) int {
	switch {
	case confidence >= 0.90:
		return +5
	case confidence >= 0.80:
		return +3
	case confidence >= 0.70:
		return +2
	case confidence >= 0.60:
		return +1
	case confidence >= 0.50:
		return 0
	case confidence >= 0.40:
		return -1
	case confidence >= 0.30:
		return -2
	default:
		return -3
	}
}

// UpdateAfterSubmission applies the full per-submission mutation: spam
// checks short-circuit with their penalty, otherwise the base delta gets a
// recovery bonus or diminishing returns before clamping.
//
// The submitted report must already be tracked (PutReport writes the
// tracking row) so the clustering checks see it excluded via reportID.
func (s *Service) UpdateAfterSubmission(ctx context.Context, uid, reportID string, confidence, lat, lon float64) (Change, error) {
	profile, err := s.db.GetUserProfile(ctx, uid)
	if err != nil {
		return Change{}, err
	}
	if profile == nil {
		s.logger.Warn("credibility update for unknown user", "user", uid)
		return Change{OldCredibility: 50, NewCredibility: 50, Reason: "User not found"}, nil
	}

	old := profile.CredibilityScore

	rows, err := s.db.ListUserReportTracking(ctx, uid)
	if err != nil {
		s.logger.Warn("tracking rows unavailable, skipping spam checks", "user", uid, "error", err)
		rows = nil
	}
	// The row for the triggering report is already written; clustering
	// checks compare against the user's other submissions.
	history := rows[:0:0]
	for _, row := range rows {
		if row.ReportID != reportID {
			history = append(history, row)
		}
	}

	delta, reason := s.computeDelta(old, confidence, lat, lon, history)

	return s.apply(ctx, profile, delta, reason, true)
}

// ApplyEnhancementDelta applies the difference between the AI-era delta and
// the submission-era delta so the net movement matches the final confidence.
func (s *Service) ApplyEnhancementDelta(ctx context.Context, uid string, submissionConfidence, finalConfidence float64) (Change, error) {
	profile, err := s.db.GetUserProfile(ctx, uid)
	if err != nil || profile == nil {
		return Change{}, err
	}

	diff := BaseDelta(finalConfidence) - BaseDelta(submissionConfidence)
	if diff == 0 {
		return Change{OldCredibility: profile.CredibilityScore, NewCredibility: profile.CredibilityScore}, nil
	}
	reason := fmt.Sprintf("AI-adjusted confidence %.0f%% (was %.0f%%)", finalConfidence*100, submissionConfidence*100)
	return s.apply(ctx, profile, diff, reason, false)
}

// ApplyDelta applies an explicit delta with a caller-supplied reason. Used
// to invert a recorded submission delta exactly on owner deletion.
func (s *Service) ApplyDelta(ctx context.Context, uid string, delta int, reason string) (Change, error) {
	profile, err := s.db.GetUserProfile(ctx, uid)
	if err != nil || profile == nil {
		return Change{}, err
	}
	return s.apply(ctx, profile, delta, reason, false)
}

// InvertSubmissionDelta reapplies the inverse of the submission-era delta
// when the owner deletes their report.
func (s *Service) InvertSubmissionDelta(ctx context.Context, uid string, confidence float64) (Change, error) {
	profile, err := s.db.GetUserProfile(ctx, uid)
	if err != nil || profile == nil {
		return Change{}, err
	}
	delta := -BaseDelta(confidence)
	reason := fmt.Sprintf("Report deleted by owner (confidence was %.0f%%)", confidence*100)
	return s.apply(ctx, profile, delta, reason, false)
}

// computeDelta resolves the submission delta: spam penalty, recovery bonus,
// or diminished base delta.
func (s *Service) computeDelta(old int, confidence, lat, lon float64, rows []types.ReportTrackingRow) (int, string) {
	if penalty, reason, spam := s.spamCheck(lat, lon, rows); spam {
		return penalty, reason
	}

	base := BaseDelta(confidence)

	// Recovery bonuses let low-credibility users climb back with quality.
	if old < 30 && confidence >= 0.80 {
		return base + 2, fmt.Sprintf("High confidence report (%.0f%%) + recovery bonus", confidence*100)
	}
	if old < 50 && confidence >= 0.85 {
		return base + 1, fmt.Sprintf("High confidence report (%.0f%%) + recovery bonus", confidence*100)
	}

	multiplier := s.diminishingReturns(lat, lon, rows)
	if base > 0 && multiplier < 1.0 {
		diminished := int(float64(base) * multiplier)
		return diminished, fmt.Sprintf("Report confidence %.0f%% (diminishing returns: %.0f%%)", confidence*100, multiplier*100)
	}
	return base, fmt.Sprintf("%s (%.0f%%)", confidenceDescription(confidence), confidence*100)
}

// spamCheck detects volume spam, duplicate-location spam, and low-quality
// streaks against the user's recent submissions.
func (s *Service) spamCheck(lat, lon float64, rows []types.ReportTrackingRow) (int, string, bool) {
	now := s.clock.Now()
	cutoff24h := now.Add(-24 * time.Hour)
	cutoff1h := now.Add(-time.Duration(duplicateWindowHours * float64(time.Hour)))

	var recent []types.ReportTrackingRow
	for _, row := range rows {
		if row.Timestamp.After(cutoff24h) {
			recent = append(recent, row)
		}
	}

	if len(recent) > volumeSpamThreshold {
		return volumeSpamPenalty, "Spam detected: Excessive reporting (>10 reports/day)", true
	}

	for _, row := range recent {
		if !row.Timestamp.After(cutoff1h) {
			continue
		}
		if geo.Haversine(lat, lon, row.Latitude, row.Longitude) < duplicateRadiusMi {
			return duplicateSpamPenalty, "Spam detected: Duplicate location (<1 hour, <1 mile)", true
		}
	}

	if len(recent) >= lowQualityStreak {
		sort.Slice(recent, func(i, j int) bool {
			return recent[i].Timestamp.After(recent[j].Timestamp)
		})
		lastFive := recent[:lowQualityStreak]
		lowCount := 0
		for _, row := range lastFive {
			if row.ConfidenceScore < lowQualityConfidence {
				lowCount++
			}
		}
		if lowCount >= lowQualityStreak {
			return lowQualityPenalty, "Spam detected: Consistent low-quality reporting", true
		}
	}

	return 0, "", false
}

// diminishingReturns reduces gains when a user keeps reporting inside the
// same 10-mile area within 24 hours.
func (s *Service) diminishingReturns(lat, lon float64, rows []types.ReportTrackingRow) float64 {
	cutoff := s.clock.Now().Add(-24 * time.Hour)
	nearby := 0
	for _, row := range rows {
		if row.Timestamp.Before(cutoff) {
			continue
		}
		if geo.Haversine(lat, lon, row.Latitude, row.Longitude) <= farmingRadiusMi {
			nearby++
		}
	}
	switch nearby {
	case 0:
		return 1.0
	case 1:
		return 0.75
	case 2:
		return 0.50
	default:
		return 0.20
	}
}

// apply clamps, recomputes the level, bumps counters, writes the profile,
// and appends the history entry.
func (s *Service) apply(ctx context.Context, profile *types.UserProfile, delta int, reason string, countReport bool) (Change, error) {
	old := profile.CredibilityScore
	now := s.clock.Now().UTC()

	profile.CredibilityScore = types.ClampCredibility(old + delta)
	profile.CredibilityLevel = types.CredibilityLevelFor(profile.CredibilityScore)
	if countReport {
		profile.TotalReports++
		profile.LastReportTimestamp = &now
	}

	if err := s.db.PutUserProfile(ctx, profile); err != nil {
		return Change{}, err
	}

	change := types.CredibilityChange{
		Timestamp: now,
		OldScore:  old,
		NewScore:  profile.CredibilityScore,
		Delta:     delta,
		Reason:    reason,
	}
	if err := s.db.AppendCredibilityChange(ctx, profile.UserID, change); err != nil {
		// History is best-effort; the score update already landed.
		s.logger.Warn("failed to append credibility history", "user", profile.UserID, "error", err)
	}

	s.logger.Info("credibility updated",
		"user", profile.UserID,
		"old", old,
		"new", profile.CredibilityScore,
		"delta", delta,
		"reason", reason)

	return Change{
		OldCredibility: old,
		NewCredibility: profile.CredibilityScore,
		Delta:          delta,
		Reason:         reason,
	}, nil
}

func confidenceDescription(confidence float64) string {
	switch {
	case confidence >= 0.90:
		return "Exceptional report"
	case confidence >= 0.80:
		return "High confidence report"
	case confidence >= 0.70:
		return "Good confidence report"
	case confidence >= 0.60:
		return "Medium confidence report"
	case confidence >= 0.50:
		return "Neutral report"
	case confidence >= 0.40:
		return "Low confidence report"
	case confidence >= 0.30:
		return "Very low confidence report"
	default:
		return "Extremely low confidence report"
	}
}
