package credibility

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/relief-net/disaster-intel/internal/testutil"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu       sync.Mutex
	profiles map[string]*types.UserProfile
	history  map[string][]types.CredibilityChange
	tracking map[string][]types.ReportTrackingRow
}

func newMockStore() *mockStore {
	return &mockStore{
		profiles: map[string]*types.UserProfile{},
		history:  map[string][]types.CredibilityChange{},
		tracking: map[string][]types.ReportTrackingRow{},
	}
}

func (m *mockStore) GetUserProfile(ctx context.Context, uid string) (*types.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (m *mockStore) PutUserProfile(ctx context.Context, profile *types.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *profile
	m.profiles[profile.UserID] = &copied
	return nil
}

func (m *mockStore) AppendCredibilityChange(ctx context.Context, uid string, change types.CredibilityChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[uid] = append(m.history[uid], change)
	return nil
}

func (m *mockStore) ListUserReportTracking(ctx context.Context, uid string) ([]types.ReportTrackingRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ReportTrackingRow(nil), m.tracking[uid]...), nil
}

func newTestService(db *mockStore) (*Service, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(testutil.BaseTime)
	return NewServiceWithClock(db, clock, testutil.NewTestLogger()), clock
}

func seedUser(db *mockStore, score int) *types.UserProfile {
	profile := testutil.FixtureProfile(func(p *types.UserProfile) {
		p.CredibilityScore = score
		p.CredibilityLevel = types.CredibilityLevelFor(score)
	})
	db.profiles[profile.UserID] = profile
	return profile
}

func TestBaseDeltaTable(t *testing.T) {
	tests := []struct {
		confidence float64
		delta      int
	}{
		{0.95, +5}, {0.90, +5},
		{0.85, +3}, {0.80, +3},
		{0.75, +2}, {0.70, +2},
		{0.65, +1}, {0.60, +1},
		{0.55, 0}, {0.50, 0},
		{0.45, -1}, {0.40, -1},
		{0.35, -2}, {0.30, -2},
		{0.29, -3}, {0.10, -3}, {0, -3},
	}
	for _, tt := range tests {
		if got := BaseDelta(tt.confidence); got != tt.delta {
			t.Errorf("BaseDelta(%.2f) = %d, want %d", tt.confidence, got, tt.delta)
		}
	}
}

func TestLevelBands(t *testing.T) {
	tests := []struct {
		score int
		level types.CredibilityLevel
	}{
		{100, types.LevelExpert}, {90, types.LevelExpert},
		{89, types.LevelVeteran}, {75, types.LevelVeteran},
		{74, types.LevelTrusted}, {60, types.LevelTrusted},
		{59, types.LevelNeutral}, {50, types.LevelNeutral},
		{49, types.LevelCaution}, {30, types.LevelCaution},
		{29, types.LevelUnreliable}, {0, types.LevelUnreliable},
	}
	for _, tt := range tests {
		if got := types.CredibilityLevelFor(tt.score); got != tt.level {
			t.Errorf("CredibilityLevelFor(%d) = %q, want %q", tt.score, got, tt.level)
		}
	}
}

func TestUpdateAfterSubmissionAppliesBaseDelta(t *testing.T) {
	db := newMockStore()
	svc, _ := newTestService(db)
	profile := seedUser(db, 50)

	change, err := svc.UpdateAfterSubmission(context.Background(), profile.UserID, "r1", 0.92, 34.05, -118.24)
	if err != nil {
		t.Fatal(err)
	}
	if change.Delta != 5 {
		t.Errorf("delta = %d, want 5", change.Delta)
	}
	if change.NewCredibility != 55 {
		t.Errorf("new score = %d, want 55", change.NewCredibility)
	}

	updated := db.profiles[profile.UserID]
	if updated.TotalReports != 1 {
		t.Errorf("total_reports = %d, want 1", updated.TotalReports)
	}
	if updated.CredibilityLevel != types.LevelNeutral {
		t.Errorf("level = %q, want Neutral", updated.CredibilityLevel)
	}
	if len(db.history[profile.UserID]) != 1 {
		t.Error("history entry must be appended")
	}
}

func TestClampingAtBounds(t *testing.T) {
	db := newMockStore()
	svc, _ := newTestService(db)

	high := seedUser(db, 99)
	change, _ := svc.UpdateAfterSubmission(context.Background(), high.UserID, "r1", 0.95, 34.05, -118.24)
	if change.NewCredibility != 100 {
		t.Errorf("clamped high = %d, want 100", change.NewCredibility)
	}

	low := seedUser(db, 1)
	// Low credibility with a terrible report: -3 clamps at 0.
	change, _ = svc.UpdateAfterSubmission(context.Background(), low.UserID, "r2", 0.05, 34.05, -118.24)
	if change.NewCredibility != 0 {
		t.Errorf("clamped low = %d, want 0", change.NewCredibility)
	}
}

func TestRecoveryBonuses(t *testing.T) {
	db := newMockStore()
	svc, _ := newTestService(db)

	// Below 30 with confidence >= 0.80: +3 base +2 recovery.
	unreliable := seedUser(db, 22)
	change, _ := svc.UpdateAfterSubmission(context.Background(), unreliable.UserID, "r1", 0.82, 34.05, -118.24)
	if change.Delta != 5 {
		t.Errorf("unreliable recovery delta = %d, want 5", change.Delta)
	}

	// Below 50 with confidence >= 0.85: +3 base +1 recovery.
	caution := seedUser(db, 45)
	change, _ = svc.UpdateAfterSubmission(context.Background(), caution.UserID, "r2", 0.86, 34.05, -118.24)
	if change.Delta != 4 {
		t.Errorf("caution recovery delta = %d, want 4", change.Delta)
	}
}

func TestDiminishingReturns(t *testing.T) {
	db := newMockStore()
	svc, _ := newTestService(db)
	profile := seedUser(db, 50)

	// Two prior reports within 10 miles in the last 24 hours: 0.50
	// multiplier on the positive delta.
	db.tracking[profile.UserID] = []types.ReportTrackingRow{
		{ReportID: "old1", Latitude: 34.05, Longitude: -118.24, Timestamp: testutil.BaseTime.Add(-20 * time.Hour), ConfidenceScore: 0.9},
		{ReportID: "old2", Latitude: 34.06, Longitude: -118.25, Timestamp: testutil.BaseTime.Add(-10 * time.Hour), ConfidenceScore: 0.9},
	}

	change, _ := svc.UpdateAfterSubmission(context.Background(), profile.UserID, "r3", 0.92, 34.05, -118.24)
	// int(5 * 0.50) = 2
	if change.Delta != 2 {
		t.Errorf("diminished delta = %d, want 2", change.Delta)
	}
}

func TestVolumeSpamPenalty(t *testing.T) {
	db := newMockStore()
	svc, _ := newTestService(db)
	profile := seedUser(db, 60)

	rows := make([]types.ReportTrackingRow, 11)
	for i := range rows {
		rows[i] = types.ReportTrackingRow{
			ReportID:  "r" + string(rune('a'+i)),
			Latitude:  35.0 + float64(i), // spread out to dodge the duplicate check
			Longitude: -100.0,
			Timestamp: testutil.BaseTime.Add(-time.Duration(i+2) * time.Hour),
		}
	}
	db.tracking[profile.UserID] = rows

	change, _ := svc.UpdateAfterSubmission(context.Background(), profile.UserID, "rx", 0.95, 34.05, -118.24)
	if change.Delta != -5 {
		t.Errorf("volume spam delta = %d, want -5", change.Delta)
	}
}

func TestDuplicateLocationSpam(t *testing.T) {
	db := newMockStore()
	svc, _ := newTestService(db)
	profile := seedUser(db, 60)

	db.tracking[profile.UserID] = []types.ReportTrackingRow{
		{ReportID: "prev", Latitude: 34.05, Longitude: -118.24, Timestamp: testutil.BaseTime.Add(-30 * time.Minute)},
	}

	change, _ := svc.UpdateAfterSubmission(context.Background(), profile.UserID, "rx", 0.95, 34.051, -118.241)
	if change.Delta != -5 {
		t.Errorf("duplicate spam delta = %d, want -5", change.Delta)
	}
}

func TestLowQualityStreakPenalty(t *testing.T) {
	db := newMockStore()
	svc, _ := newTestService(db)
	profile := seedUser(db, 60)

	rows := make([]types.ReportTrackingRow, 5)
	for i := range rows {
		rows[i] = types.ReportTrackingRow{
			ReportID:        "r" + string(rune('a'+i)),
			Latitude:        35.0 + float64(i)*2,
			Longitude:       -100.0,
			Timestamp:       testutil.BaseTime.Add(-time.Duration(i+2) * time.Hour),
			ConfidenceScore: 0.4,
		}
	}
	db.tracking[profile.UserID] = rows

	change, _ := svc.UpdateAfterSubmission(context.Background(), profile.UserID, "rx", 0.95, 34.05, -118.24)
	if change.Delta != -3 {
		t.Errorf("low-quality streak delta = %d, want -3", change.Delta)
	}
}

func TestSubmitThenDeleteRoundTrip(t *testing.T) {
	db := newMockStore()
	svc, _ := newTestService(db)
	profile := seedUser(db, 50)

	change, _ := svc.UpdateAfterSubmission(context.Background(), profile.UserID, "r1", 0.92, 34.05, -118.24)
	if change.NewCredibility != 55 {
		t.Fatalf("post-submission score = %d, want 55", change.NewCredibility)
	}

	// Owner deletion inverts the recorded delta exactly.
	inverted, _ := svc.ApplyDelta(context.Background(), profile.UserID, -change.Delta, "Report deleted by owner")
	if inverted.NewCredibility != 50 {
		t.Errorf("post-deletion score = %d, want the pre-submission 50", inverted.NewCredibility)
	}
}

func TestEnhancementDeltaOfDelta(t *testing.T) {
	db := newMockStore()
	svc, _ := newTestService(db)
	profile := seedUser(db, 50)

	// Submission scored 0.65 (+1); enhancement raised it to 0.92 (+5). The
	// follow-up applies the +4 difference.
	change, err := svc.ApplyEnhancementDelta(context.Background(), profile.UserID, 0.65, 0.92)
	if err != nil {
		t.Fatal(err)
	}
	if change.Delta != 4 {
		t.Errorf("delta-of-delta = %d, want 4", change.Delta)
	}

	// No change when the band holds.
	change, _ = svc.ApplyEnhancementDelta(context.Background(), profile.UserID, 0.71, 0.74)
	if change.Delta != 0 {
		t.Errorf("same-band delta = %d, want 0", change.Delta)
	}
}

func TestLevelAlwaysMatchesScore(t *testing.T) {
	db := newMockStore()
	svc, _ := newTestService(db)
	profile := seedUser(db, 50)

	confidences := []float64{0.95, 0.1, 0.85, 0.2, 0.92, 0.92, 0.05}
	for i, c := range confidences {
		_, err := svc.UpdateAfterSubmission(context.Background(), profile.UserID,
			"r"+string(rune('a'+i)), c, 35.0+float64(i)*2, -100.0)
		if err != nil {
			t.Fatal(err)
		}
		p := db.profiles[profile.UserID]
		if p.CredibilityScore < 0 || p.CredibilityScore > 100 {
			t.Fatalf("score %d escaped [0,100]", p.CredibilityScore)
		}
		if p.CredibilityLevel != types.CredibilityLevelFor(p.CredibilityScore) {
			t.Fatalf("level %q inconsistent with score %d", p.CredibilityLevel, p.CredibilityScore)
		}
	}
}
