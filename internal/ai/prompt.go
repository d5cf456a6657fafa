package ai

import (
	"fmt"

	"github.com/relief-net/disaster-intel/pkg/types"
)

const systemPrompt = "You are an expert at analyzing disaster reports for credibility during emergency situations. " +
	"Be lenient with brief descriptions - people in crisis prioritize speed over detail. " +
	"Focus on plausibility and corroboration from nearby sources. " +
	"Respond with a JSON object containing a 'confidence_score' (0.0-1.0) and 'reasoning' (brief explanation)."

// PromptContext carries the corroboration summary the prompt embeds.
type PromptContext struct {
	// LocationText is the reverse-geocoded place name, or empty when
	// geocoding was unavailable.
	LocationText string

	// Same-type neighbor counts within 50 miles.
	UserReportCount     int
	OfficialReportCount int

	// DistanceToOfficial is a rendered summary like "~3 miles (from
	// nasa_firms)".
	DistanceToOfficial string
}

// SummarizeNeighbors fills the count and nearest-official fields of a
// PromptContext from a neighbor list.
func SummarizeNeighbors(report *types.UserReport, nearby []types.DisasterEvent, distanceFn func(lat1, lon1, lat2, lon2 float64) float64) PromptContext {
	pc := PromptContext{DistanceToOfficial: "No official sources found within 50 miles"}

	minDistance := -1.0
	var nearestSource types.Source
	for i := range nearby {
		n := &nearby[i]
		if n.Type != report.Type {
			continue
		}
		if report.ID != "" && n.ID == report.ID {
			continue
		}
		switch {
		case n.Source.IsOfficial():
			pc.OfficialReportCount++
			d := distanceFn(report.Latitude, report.Longitude, n.Latitude, n.Longitude)
			if minDistance < 0 || d < minDistance {
				minDistance = d
				nearestSource = n.Source
			}
		case n.Source.IsUserReport():
			pc.UserReportCount++
		}
	}

	if minDistance >= 0 {
		if minDistance < 1 {
			pc.DistanceToOfficial = fmt.Sprintf("<1 mile (from %s)", nearestSource)
		} else {
			pc.DistanceToOfficial = fmt.Sprintf("~%.0f miles (from %s)", minDistance, nearestSource)
		}
	}
	return pc
}

func buildPrompt(report *types.UserReport, pc PromptContext) string {
	description := report.Description
	if description == "" {
		description = "No description provided"
	}
	severity := string(report.Severity)
	if severity == "" {
		severity = "unknown"
	}
	location := pc.LocationText
	if location == "" {
		location = fmt.Sprintf("(%f, %f)", report.Latitude, report.Longitude)
	}

	return fmt.Sprintf(`Analyze this disaster report for credibility:

**Report Details:**
- Type: %s
- Severity: %s
- Location: %s
- Description: %s

**Corroboration Context:**
- Nearby user reports (same type, within 50 miles): %d
- Nearby official sources (NASA/NOAA/USGS, within 50 miles): %d
- Distance to nearest official disaster: %s

**Assessment Criteria:**
1. Text coherence - Is the description clear and logical?
   - NOTE: During emergencies, people may write brief, terse descriptions. This is ACCEPTABLE.
   - Focus on plausibility, not comprehensiveness.
2. Plausibility - Does the disaster type make sense for this description AND location?
   - Proximity to official disasters increases credibility.
3. Specificity - Are details specific or vague?
   - But brevity does not equal vagueness in emergency situations.

**Corroboration Weight:**
- Nearby official sources at a similar location: HIGH confidence boost
- Multiple user reports nearby: MEDIUM confidence boost
- Isolated report with no nearby sources: evaluate on description alone

**Return JSON:**
{"confidence_score": 0.0-1.0, "reasoning": "Brief explanation (1-2 sentences)"}

**Remember:** In disaster situations, people prioritize speed over detail. Do not penalize brief but coherent reports.`,
		report.Type, severity, location, description,
		pc.UserReportCount, pc.OfficialReportCount, pc.DistanceToOfficial)
}
