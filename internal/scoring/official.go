package scoring

import (
	"math"
	"strings"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// OfficialSourceConfidence scores an official-feed event. Official sources
// get a high base score with small bounded bonuses for recency, field
// completeness, and measured intensity; the result always lands in the High
// band.
func (s *Scorer) OfficialSourceConfidence(event *types.DisasterEvent) types.ConfidenceResult {
	var base float64
	switch event.Source {
	case types.SourceNASAFirms:
		base = 0.92
	case types.SourceUSGS:
		// Seismometer networks are the most precise feed we ingest.
		base = 0.98
	default:
		base = 0.90
	}

	breakdown := &types.ConfidenceBreakdown{SourceCredibility: base}

	recencyBonus := 0.0
	if !event.Timestamp.IsZero() {
		ageMinutes := s.clock.Now().Sub(event.Timestamp).Minutes()
		switch {
		case ageMinutes < 60:
			recencyBonus = 0.05
		case ageMinutes < 360:
			recencyBonus = 0.03
		case ageMinutes < 1440:
			recencyBonus = 0.01
		}
	}
	breakdown.RecencyBonus = f(recencyBonus)

	completenessBonus := round3(officialCompleteness(event) * 0.03)
	breakdown.CompletenessBonus = f(completenessBonus)

	intensityBonus := round3(officialIntensity(event))
	breakdown.IntensityBonus = f(intensityBonus)

	score := round3(math.Min(base+recencyBonus+completenessBonus+intensityBonus, 1.0))
	return types.ConfidenceResult{
		ConfidenceScore: score,
		ConfidenceLevel: types.ConfidenceHigh,
		Breakdown:       breakdown,
	}
}

// officialCompleteness returns the present fraction of each source's
// required fields.
func officialCompleteness(event *types.DisasterEvent) float64 {
	present, total := 0, 0
	have := func(ok bool) {
		total++
		if ok {
			present++
		}
	}

	coords := event.Latitude != 0 || event.Longitude != 0
	switch event.Source {
	case types.SourceNASAFirms:
		have(coords)
		have(coords)
		have(event.Brightness != nil)
		have(event.FRP != nil)
		have(event.ConfidenceScore > 0 || event.Description != "")
	case types.SourceNOAA:
		have(coords)
		have(coords)
		have(event.AlertLevel != "")
		have(event.Urgency != "")
		have(event.Certainty != "")
	case types.SourceUSGS:
		have(coords)
		have(coords)
		have(event.Magnitude != nil)
		have(event.DepthKm != nil)
		have(event.LocationName != "")
	default:
		return 0
	}
	return float64(present) / float64(total)
}

// officialIntensity grants up to +0.02 for strongly measured events.
func officialIntensity(event *types.DisasterEvent) float64 {
	switch event.Source {
	case types.SourceNASAFirms:
		brightness, frp := 0.0, 0.0
		if event.Brightness != nil {
			brightness = *event.Brightness
		}
		if event.FRP != nil {
			frp = *event.FRP
		}
		switch {
		case brightness > 360 || frp > 100:
			return 0.02
		case brightness > 340 || frp > 50:
			return 0.015
		case brightness > 320 || frp > 20:
			return 0.01
		}
	case types.SourceNOAA:
		severity := strings.ToLower(event.AlertLevel)
		urgency := strings.ToLower(event.Urgency)
		switch {
		case severity == "extreme" || urgency == "immediate":
			return 0.02
		case severity == "severe" || urgency == "expected":
			return 0.015
		case severity == "moderate":
			return 0.01
		}
	case types.SourceUSGS:
		if event.Magnitude == nil {
			return 0
		}
		switch {
		case *event.Magnitude >= 7.0:
			return 0.02
		case *event.Magnitude >= 6.0:
			return 0.015
		case *event.Magnitude >= 5.0:
			return 0.01
		}
	}
	return 0
}
