package scoring

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/relief-net/disaster-intel/internal/testutil"
	"github.com/relief-net/disaster-intel/pkg/types"
)

func newTestScorer() (*Scorer, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(testutil.BaseTime)
	return NewScorerWithClock(clock), clock
}

func TestOfficialSourceFreshStrongWildfire(t *testing.T) {
	scorer, _ := newTestScorer()

	event := testutil.FixtureEvent(func(e *types.DisasterEvent) {
		e.Source = types.SourceNASAFirms
		e.Timestamp = testutil.BaseTime.Add(-10 * time.Minute)
		e.Brightness = testutil.Fptr(370)
		e.FRP = testutil.Fptr(120)
		e.Description = "Satellite-detected fire"
	})

	result := scorer.OfficialSourceConfidence(&event)

	if result.ConfidenceScore < 0.97 {
		t.Errorf("score = %.3f, want >= 0.97", result.ConfidenceScore)
	}
	if result.ConfidenceLevel != types.ConfidenceHigh {
		t.Errorf("level = %q, want High", result.ConfidenceLevel)
	}
	b := result.Breakdown
	if b.RecencyBonus == nil || *b.RecencyBonus != 0.05 {
		t.Errorf("recency_bonus = %v, want 0.05", b.RecencyBonus)
	}
	if b.IntensityBonus == nil || *b.IntensityBonus != 0.02 {
		t.Errorf("intensity_bonus = %v, want 0.02", b.IntensityBonus)
	}
	if b.CompletenessBonus == nil || *b.CompletenessBonus < 0.029 {
		t.Errorf("completeness_bonus = %v, want ~0.03", b.CompletenessBonus)
	}
}

func TestOfficialSourceFloorAndCeiling(t *testing.T) {
	scorer, _ := newTestScorer()

	// Even a stale, sparse official event stays in the High band.
	for _, source := range []types.Source{types.SourceNASAFirms, types.SourceNOAA, types.SourceUSGS} {
		event := testutil.FixtureEvent(func(e *types.DisasterEvent) {
			e.Source = source
			e.Timestamp = testutil.BaseTime.Add(-72 * time.Hour)
			e.Brightness = nil
			e.FRP = nil
		})
		result := scorer.OfficialSourceConfidence(&event)
		if result.ConfidenceScore < 0.90 || result.ConfidenceScore > 1.0 {
			t.Errorf("%s: score %.3f outside [0.90, 1.0]", source, result.ConfidenceScore)
		}
		if result.ConfidenceLevel != types.ConfidenceHigh {
			t.Errorf("%s: level %q, want High", source, result.ConfidenceLevel)
		}
	}
}

func TestOfficialBaseScores(t *testing.T) {
	scorer, _ := newTestScorer()

	tests := []struct {
		source types.Source
		base   float64
	}{
		{types.SourceNASAFirms, 0.92},
		{types.SourceNOAA, 0.90},
		{types.SourceUSGS, 0.98},
	}
	for _, tt := range tests {
		event := testutil.FixtureEvent(func(e *types.DisasterEvent) {
			e.Source = tt.source
		})
		result := scorer.OfficialSourceConfidence(&event)
		if result.Breakdown.SourceCredibility != tt.base {
			t.Errorf("%s: base = %.2f, want %.2f", tt.source, result.Breakdown.SourceCredibility, tt.base)
		}
	}
}

func TestUnreliableUserCoherentReport(t *testing.T) {
	scorer, _ := newTestScorer()

	report := testutil.FixtureReport(func(r *types.UserReport) {
		r.Source = types.SourceUserReportAuth
		r.UserID = "u1"
		r.Timestamp = testutil.BaseTime.Add(-5 * time.Minute)
	})

	result := scorer.CalculateWithUserCredibility(report, 22, nil)

	if result.ConfidenceScore < 0.45 || result.ConfidenceScore > 0.55 {
		t.Errorf("score = %.3f, want within [0.45, 0.55]", result.ConfidenceScore)
	}
	if result.ConfidenceLevel != types.ConfidenceLow {
		t.Errorf("level = %q, want Low", result.ConfidenceLevel)
	}

	penalty := result.Breakdown.UserCredibilityPenalty
	if penalty == nil {
		t.Fatal("breakdown missing user_credibility_penalty")
	}
	if penalty.BaseMultiplier != 0.65 {
		t.Errorf("multiplier = %.2f, want 0.65", penalty.BaseMultiplier)
	}
	if penalty.OriginalHeuristic < 0.75 || penalty.OriginalHeuristic > 0.82 {
		t.Errorf("original heuristic = %.3f, want ~0.79", penalty.OriginalHeuristic)
	}
}

func TestCredibilityMultiplierBands(t *testing.T) {
	tests := []struct {
		credibility int
		multiplier  float64
	}{
		{95, 1.0}, {80, 1.0}, {75, 1.0},
		{74, 0.95}, {60, 0.95},
		{59, 0.90}, {50, 0.90},
		{49, 0.80}, {30, 0.80},
		{29, 0.65}, {0, 0.65},
	}
	for _, tt := range tests {
		if got := CredibilityMultiplier(tt.credibility); got != tt.multiplier {
			t.Errorf("CredibilityMultiplier(%d) = %.2f, want %.2f", tt.credibility, got, tt.multiplier)
		}
	}
}

func TestCorroborationFromSatelliteDetections(t *testing.T) {
	scorer, _ := newTestScorer()

	report := testutil.FixtureReport(func(r *types.UserReport) {
		r.Timestamp = testutil.BaseTime.Add(-5 * time.Minute)
	})

	var nearby []types.DisasterEvent
	for i := 0; i < 3; i++ {
		offset := float64(i) * 0.02
		nearby = append(nearby, testutil.FixtureEvent(func(e *types.DisasterEvent) {
			e.Latitude = report.Latitude + offset
			e.Timestamp = testutil.BaseTime.Add(-time.Hour)
			e.Brightness = testutil.Fptr(365)
			e.Severity = types.SeverityHigh
		}))
	}

	result := scorer.Calculate(report, nearby)

	corr := result.Breakdown.Corroboration
	if corr == nil {
		t.Fatal("breakdown missing corroboration")
	}
	if corr.Boost < 0.20 {
		t.Errorf("boost = %.2f, want >= 0.20", corr.Boost)
	}
	if corr.Sources["nasa_firms"] != 3 {
		t.Errorf("nasa_firms count = %d, want 3", corr.Sources["nasa_firms"])
	}
	if result.ConfidenceScore < 0.85 {
		t.Errorf("score = %.3f, want >= 0.85", result.ConfidenceScore)
	}
}

func TestCorroborationExcludesFarAndOldNeighbors(t *testing.T) {
	scorer, _ := newTestScorer()
	report := testutil.FixtureReport()

	// ~69 miles north: outside the 50 mile corroboration radius.
	far := testutil.FixtureEvent(func(e *types.DisasterEvent) {
		e.Latitude = report.Latitude + 1.0
	})
	// In range but 30 hours apart.
	old := testutil.FixtureEvent(func(e *types.DisasterEvent) {
		e.Timestamp = testutil.BaseTime.Add(-30 * time.Hour)
	})
	// Different type.
	wrongType := testutil.FixtureEvent(func(e *types.DisasterEvent) {
		e.Type = types.TypeFlood
	})

	result := scorer.Calculate(report, []types.DisasterEvent{far, old, wrongType})

	corr := result.Breakdown.Corroboration
	if corr == nil {
		t.Fatal("breakdown missing corroboration")
	}
	if corr.NearbyCount != 0 {
		t.Errorf("nearby_count = %d, want 0", corr.NearbyCount)
	}
	if corr.Boost != 0 {
		t.Errorf("boost = %.2f, want 0", corr.Boost)
	}
}

func TestCorroborationExcludesSelf(t *testing.T) {
	scorer, _ := newTestScorer()
	report := testutil.FixtureReport()

	self := report.DisasterEvent
	result := scorer.Calculate(report, []types.DisasterEvent{self})

	if result.Breakdown.Corroboration.NearbyCount != 0 {
		t.Error("a report must not corroborate itself")
	}
}

func TestLevelBandingInvariant(t *testing.T) {
	for _, score := range []float64{0, 0.1, 0.59, 0.6, 0.61, 0.79, 0.8, 0.81, 1.0} {
		level := types.LevelForScore(score)
		switch {
		case score >= 0.8 && level != types.ConfidenceHigh:
			t.Errorf("score %.2f: level %q, want High", score, level)
		case score >= 0.6 && score < 0.8 && level != types.ConfidenceMedium:
			t.Errorf("score %.2f: level %q, want Medium", score, level)
		case score < 0.6 && level != types.ConfidenceLow:
			t.Errorf("score %.2f: level %q, want Low", score, level)
		}
	}
}

func TestBlendWithAI(t *testing.T) {
	heuristic := types.ConfidenceResult{
		ConfidenceScore: 0.70,
		ConfidenceLevel: types.ConfidenceMedium,
		Breakdown:       &types.ConfidenceBreakdown{},
	}
	blended := BlendWithAI(heuristic, types.AIEnhancementDetail{
		Score:     1.0,
		Reasoning: "coherent and corroborated",
		Provider:  "openai",
	})

	// 0.7*0.7 + 1.0*0.3 = 0.79
	if blended.ConfidenceScore != 0.79 {
		t.Errorf("blended score = %.3f, want 0.79", blended.ConfidenceScore)
	}
	if blended.ConfidenceLevel != types.ConfidenceMedium {
		t.Errorf("level = %q, want Medium", blended.ConfidenceLevel)
	}
	if blended.Breakdown.AIEnhancement == nil || blended.Breakdown.AIEnhancement.Provider != "openai" {
		t.Error("breakdown must record the ai enhancement")
	}
}

func TestRecencyDecay(t *testing.T) {
	scorer, _ := newTestScorer()

	ages := []struct {
		age  time.Duration
		want float64
	}{
		{10 * time.Minute, 1.0},
		{30 * time.Minute, 0.9},
		{3 * time.Hour, 0.8},
		{12 * time.Hour, 0.7},
	}
	for _, tt := range ages {
		report := testutil.FixtureReport(func(r *types.UserReport) {
			r.Timestamp = testutil.BaseTime.Add(-tt.age)
		})
		if got := scorer.recencyScore(report); got != tt.want {
			t.Errorf("recency at %v = %.2f, want %.2f", tt.age, got, tt.want)
		}
	}

	// Very old reports floor at 0.5.
	report := testutil.FixtureReport(func(r *types.UserReport) {
		r.Timestamp = testutil.BaseTime.Add(-90 * 24 * time.Hour)
	})
	if got := scorer.recencyScore(report); got != 0.5 {
		t.Errorf("ancient report recency = %.3f, want 0.5 floor", got)
	}
}

func TestSpatialScoreSteps(t *testing.T) {
	tests := []struct {
		distance *float64
		want     float64
	}{
		{nil, 0.5},
		{testutil.Fptr(0.5), 1.0},
		{testutil.Fptr(3), 0.9},
		{testutil.Fptr(7), 0.7},
		{testutil.Fptr(30), 0.5},
		{testutil.Fptr(60), 0.3},
	}
	for _, tt := range tests {
		report := testutil.FixtureReport(func(r *types.UserReport) {
			r.UserDistanceMi = tt.distance
		})
		if got := spatialScore(report); got != tt.want {
			t.Errorf("spatialScore(%v) = %.2f, want %.2f", tt.distance, got, tt.want)
		}
	}
}

func TestScoreEventAttachesConfidence(t *testing.T) {
	scorer, _ := newTestScorer()

	event := testutil.FixtureEvent()
	scorer.ScoreEvent(&event)

	if event.ConfidenceScore < 0.90 {
		t.Errorf("official event score = %.3f, want >= 0.90", event.ConfidenceScore)
	}
	if event.ConfidenceLevel != types.ConfidenceHigh {
		t.Errorf("official event level = %q, want High", event.ConfidenceLevel)
	}

	other := testutil.FixtureEvent(func(e *types.DisasterEvent) {
		e.Source = types.SourceGDACS
	})
	scorer.ScoreEvent(&other)
	if other.ConfidenceScore == 0 || other.ConfidenceBreakdown == nil {
		t.Error("non-official event must still get a heuristic confidence")
	}
}
