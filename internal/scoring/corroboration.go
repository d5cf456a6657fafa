package scoring

import (
	"math"
	"sort"

	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/geo"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// corroborationCap bounds how many neighbors contribute to the boost.
const corroborationCap = 5

// corroboration scores up to 50 miles of same-type neighbors within ±24
// hours and translates the weighted total into a bounded confidence boost.
func (s *Scorer) corroboration(report *types.UserReport, nearby []types.DisasterEvent) (float64, *types.CorroborationDetail) {
	sources := map[string]int{
		"user_report": 0,
		"nasa_firms":  0,
		"noaa":        0,
		"usgs":        0,
		"other":       0,
	}
	empty := &types.CorroborationDetail{Sources: sources}

	if report.Latitude == 0 && report.Longitude == 0 {
		return 0, empty
	}

	reportSeverity := report.Severity
	if reportSeverity == "" {
		reportSeverity = types.SeverityMedium
	}

	var matches []types.CorroborationMatch
	for i := range nearby {
		n := &nearby[i]

		if n.Type != report.Type || (n.Latitude == 0 && n.Longitude == 0) {
			continue
		}
		if report.ID != "" && n.ID == report.ID {
			continue
		}

		distance := geo.Haversine(report.Latitude, report.Longitude, n.Latitude, n.Longitude)
		if distance > config.NeighborRadiusMi {
			continue
		}

		if !report.Timestamp.IsZero() && !n.Timestamp.IsZero() {
			if math.Abs(n.Timestamp.Sub(report.Timestamp).Hours()) > config.CorroborationWindowHours {
				continue
			}
		}

		score := distanceWeight(distance) * sourceWeight(n.Source, sources) * severityMatch(report, reportSeverity, n)
		matches = append(matches, types.CorroborationMatch{
			ID:         n.ID,
			Source:     n.Source,
			DistanceMi: math.Round(distance*100) / 100,
			Score:      score,
		})
	}

	if len(matches) == 0 {
		return 0, empty
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	// Top five with diminishing weights 1, 1/2, 1/3, 1/4, 1/5.
	total := 0.0
	for i, m := range matches {
		if i >= corroborationCap {
			break
		}
		total += m.Score / float64(i+1)
	}

	boost := boostForTotal(total)

	top := matches
	if len(top) > 3 {
		top = top[:3]
	}
	return boost, &types.CorroborationDetail{
		NearbyCount: len(matches),
		Boost:       boost,
		TotalScore:  math.Round(total*100) / 100,
		Sources:     sources,
		TopMatches:  top,
	}
}

func distanceWeight(distanceMi float64) float64 {
	switch {
	case distanceMi <= 5:
		return 1.0
	case distanceMi <= 15:
		return 0.8
	case distanceMi <= 30:
		return 0.5
	default:
		return 0.2
	}
}

func sourceWeight(source types.Source, counts map[string]int) float64 {
	switch {
	case source.IsOfficial():
		counts[string(source)]++
		return 1.5
	case source.IsUserReport():
		counts["user_report"]++
		return 1.0
	default:
		counts["other"]++
		return 0.8
	}
}

func severityMatch(report *types.UserReport, reportSeverity types.Severity, n *types.DisasterEvent) float64 {
	match := 1.0
	if n.Severity != "" {
		switch {
		case reportSeverity == n.Severity:
			match = 1.2
		case reportSeverity.Adjacent(n.Severity):
			match = 1.0
		default:
			match = 0.8
		}
	}

	// Hot satellite detections corroborate a wildfire regardless of how the
	// severity bands happened to line up.
	if report.Type == types.TypeWildfire && n.Brightness != nil {
		if *n.Brightness > 350 {
			match = math.Max(match, 1.2)
		} else if *n.Brightness > 320 {
			match = math.Max(match, 1.0)
		}
	}

	return match
}

func boostForTotal(total float64) float64 {
	switch {
	case total >= 4.0:
		return 0.35
	case total >= 3.0:
		return 0.30
	case total >= 2.0:
		return 0.20
	case total >= 1.0:
		return 0.10
	default:
		return 0.05
	}
}
