package scoring

import (
	"math"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// Heuristic factor weights. They sum to 1.0.
const (
	weightSourceCredibility = 0.4
	weightRecency           = 0.2
	weightSpatial           = 0.2
	weightCompleteness      = 0.1
	weightTypeValidation    = 0.1
)

// defaultRecaptchaScore applies when an anonymous submission carries no
// reCAPTCHA assessment. Users are given the benefit of the doubt during
// emergencies.
const defaultRecaptchaScore = 0.7

// heuristicScore runs the weighted five-factor heuristic and returns the raw
// score with its breakdown.
func (s *Scorer) heuristicScore(report *types.UserReport) (float64, *types.ConfidenceBreakdown) {
	breakdown := &types.ConfidenceBreakdown{}
	score := 0.0

	// 1. Source credibility (40%)
	sourceScore := sourceCredibility(report)
	breakdown.SourceCredibility = sourceScore
	score += sourceScore * weightSourceCredibility

	// 2. Temporal recency (20%)
	recency := 0.5
	if !report.Timestamp.IsZero() {
		recency = s.recencyScore(report)
	}
	breakdown.Recency = f(recency)
	score += recency * weightRecency

	// 3. Spatial validation (20%) - official sources get full credit
	spatial := 1.0
	if report.Source.IsUserReport() {
		spatial = spatialScore(report)
	}
	breakdown.SpatialValidation = f(spatial)
	score += spatial * weightSpatial

	// 4. Data completeness (10%)
	completeness := completenessScore(report)
	breakdown.Completeness = f(completeness)
	score += completeness * weightCompleteness

	// 5. Type validation (10%)
	typeScore := typeValidationScore(report.Type)
	breakdown.TypeValidation = f(typeScore)
	score += typeScore * weightTypeValidation

	return math.Min(score, 1.0), breakdown
}

func sourceCredibility(report *types.UserReport) float64 {
	switch report.Source {
	case types.SourceNASAFirms, types.SourceNOAA:
		return 0.95
	case types.SourceUSGS:
		return 0.98
	case types.SourceUserReport, types.SourceUserReportAuth:
		recaptcha := defaultRecaptchaScore
		if report.RecaptchaScore != nil {
			recaptcha = *report.RecaptchaScore
		}
		// Maps onto [0.5, 0.85].
		return 0.5 + recaptcha*0.35
	default:
		return 0.5
	}
}

// recencyScore decays with report age. The decay is deliberately tolerant:
// reports stay useful for hours during an ongoing disaster.
func (s *Scorer) recencyScore(report *types.UserReport) float64 {
	ageMinutes := s.clock.Now().Sub(report.Timestamp).Minutes()
	switch {
	case ageMinutes < 15:
		return 1.0
	case ageMinutes < 60:
		return 0.9
	case ageMinutes < 360:
		return 0.8
	case ageMinutes < 1440:
		return 0.7
	default:
		return math.Max(0.5, 0.7*math.Pow(0.97, ageMinutes/1440))
	}
}

// spatialScore rewards reporters close to what they report.
func spatialScore(report *types.UserReport) float64 {
	if report.UserDistanceMi == nil {
		return 0.5
	}
	d := *report.UserDistanceMi
	switch {
	case d < 1:
		return 1.0
	case d < 5:
		return 0.9
	case d < 10:
		return 0.7
	case d < 50:
		return 0.5
	default:
		return 0.3
	}
}

// completenessScore weights the essential fields at 80% and nice-to-have
// context at 20%.
func completenessScore(report *types.UserReport) float64 {
	corePresent := 0
	if report.Latitude != 0 || report.Longitude != 0 {
		corePresent += 2
	}
	if report.Type != "" {
		corePresent++
	}

	bonusPresent := 0
	if report.Description != "" {
		bonusPresent++
	}
	if report.Severity != "" {
		bonusPresent++
	}
	if report.AffectedPopulation != nil {
		bonusPresent++
	}

	coreScore := float64(corePresent) / 3.0
	bonusScore := float64(bonusPresent) / 3.0
	return coreScore*0.8 + bonusScore*0.2
}

func typeValidationScore(t types.DisasterType) float64 {
	if t == "" {
		return 0.3
	}
	if types.KnownDisasterTypes[t] {
		return 1.0
	}
	return 0.5
}
