// Package scoring implements the confidence engine: the deterministic
// heuristic for user reports, the simplified high-confidence path for
// official sources, spatial corroboration, the user-credibility penalty, and
// the 70/30 blend with AI analysis results.
//
// The scorer is deterministic and fast; AI calls live in the ai package and
// are orchestrated by the report service. Blending an existing AI result
// back into a fresh heuristic (for retroactive rescoring) happens here so
// the banding rules stay in one place.
package scoring

import (
	"math"

	"github.com/jonboulle/clockwork"

	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// Scorer calculates confidence scores for disaster events.
type Scorer struct {
	clock clockwork.Clock
}

// NewScorer returns a scorer on the real clock.
func NewScorer() *Scorer {
	return &Scorer{clock: clockwork.NewRealClock()}
}

// NewScorerWithClock returns a scorer on the given clock. Tests use a fake
// clock to pin recency factors.
func NewScorerWithClock(clock clockwork.Clock) *Scorer {
	return &Scorer{clock: clock}
}

// Calculate scores a report, optionally against nearby events for
// corroboration. Official sources take the simplified path; everything else
// runs the weighted heuristic.
func (s *Scorer) Calculate(report *types.UserReport, nearby []types.DisasterEvent) types.ConfidenceResult {
	if report.Source.IsOfficial() {
		return s.OfficialSourceConfidence(&report.DisasterEvent)
	}

	score, breakdown := s.heuristicScore(report)

	if len(nearby) > 0 {
		boost, detail := s.corroboration(report, nearby)
		score = math.Min(score+boost, 1.0)
		breakdown.Corroboration = detail
	}

	return finish(score, breakdown)
}

// CalculateWithUserCredibility scores an authenticated submission: the
// heuristic is multiplied by the credibility-band penalty before
// corroboration is added.
func (s *Scorer) CalculateWithUserCredibility(report *types.UserReport, userCredibility int, nearby []types.DisasterEvent) types.ConfidenceResult {
	score, breakdown := s.heuristicScore(report)

	multiplier := CredibilityMultiplier(userCredibility)
	penalized := score * multiplier
	breakdown.UserCredibilityPenalty = &types.CredibilityPenaltyDetail{
		UserCredibility:   userCredibility,
		BaseMultiplier:    multiplier,
		OriginalHeuristic: round3(score),
		AfterPenalty:      round3(penalized),
	}

	if len(nearby) > 0 {
		boost, detail := s.corroboration(report, nearby)
		penalized = math.Min(penalized+boost, 1.0)
		breakdown.Corroboration = detail
	}

	return finish(penalized, breakdown)
}

// ScoreEvent attaches an initial confidence to a normalized feed event. This
// is the entry point feed adapters are constructed with.
func (s *Scorer) ScoreEvent(event *types.DisasterEvent) {
	var result types.ConfidenceResult
	if event.Source.IsOfficial() {
		result = s.OfficialSourceConfidence(event)
	} else {
		report := types.UserReport{DisasterEvent: *event}
		score, breakdown := s.heuristicScore(&report)
		result = finish(score, breakdown)
	}
	event.ConfidenceScore = result.ConfidenceScore
	event.ConfidenceLevel = result.ConfidenceLevel
	event.ConfidenceBreakdown = result.Breakdown
}

// BlendWithAI folds an AI analysis into a heuristic score: 70% heuristic,
// 30% AI, re-banded. Used both when the AI result is fresh and when a
// preserved result is re-blended during retroactive rescoring.
func BlendWithAI(heuristic types.ConfidenceResult, ai types.AIEnhancementDetail) types.ConfidenceResult {
	blended := heuristic.Breakdown
	if blended == nil {
		blended = &types.ConfidenceBreakdown{}
	}
	aiCopy := ai
	blended.AIEnhancement = &aiCopy

	score := heuristic.ConfidenceScore*config.AIHeuristicWeight + ai.Score*config.AIWeight
	return finish(score, blended)
}

// CredibilityMultiplier maps a user's credibility score onto the base
// confidence penalty of their submissions.
func CredibilityMultiplier(credibility int) float64 {
	switch {
	case credibility >= 75:
		return 1.0 // Veteran/Expert
	case credibility >= 60:
		return 0.95 // Trusted
	case credibility >= 50:
		return 0.90 // Neutral
	case credibility >= 30:
		return 0.80 // Caution
	default:
		return 0.65 // Unreliable
	}
}

func finish(score float64, breakdown *types.ConfidenceBreakdown) types.ConfidenceResult {
	score = round3(math.Min(score, 1.0))
	return types.ConfidenceResult{
		ConfidenceScore: score,
		ConfidenceLevel: types.LevelForScore(score),
		Breakdown:       breakdown,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func f(v float64) *float64 { return &v }
