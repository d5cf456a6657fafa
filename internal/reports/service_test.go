package reports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/relief-net/disaster-intel/internal/ai"
	"github.com/relief-net/disaster-intel/internal/auth"
	"github.com/relief-net/disaster-intel/internal/credibility"
	"github.com/relief-net/disaster-intel/internal/decay"
	"github.com/relief-net/disaster-intel/internal/scoring"
	"github.com/relief-net/disaster-intel/internal/store"
	"github.com/relief-net/disaster-intel/internal/testutil"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// mockStore implements Store and the credibility store for testing.
type mockStore struct {
	mu        sync.Mutex
	reports   map[string]*types.UserReport
	profiles  map[string]*types.UserProfile
	tracking  map[string][]types.ReportTrackingRow
	audits    map[string]*types.AuditLog
	failPut   bool
	batchSize []int
}

func newMockStore() *mockStore {
	return &mockStore{
		reports:  map[string]*types.UserReport{},
		profiles: map[string]*types.UserProfile{},
		tracking: map[string][]types.ReportTrackingRow{},
		audits:   map[string]*types.AuditLog{},
	}
}

func (m *mockStore) GetReport(ctx context.Context, id string) (*types.UserReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (m *mockStore) PutReport(ctx context.Context, report *types.UserReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return errors.New("put failed")
	}
	copied := *report
	m.reports[report.ID] = &copied
	if report.UserID != "" {
		rows := m.tracking[report.UserID]
		replaced := false
		for i := range rows {
			if rows[i].ReportID == report.ID {
				rows[i] = trackingRow(report)
				replaced = true
			}
		}
		if !replaced {
			rows = append(rows, trackingRow(report))
		}
		m.tracking[report.UserID] = rows
	}
	return nil
}

func trackingRow(r *types.UserReport) types.ReportTrackingRow {
	return types.ReportTrackingRow{
		ReportID:        r.ID,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		Timestamp:       r.Timestamp,
		ConfidenceScore: r.ConfidenceScore,
	}
}

func (m *mockStore) DeleteReport(ctx context.Context, report *types.UserReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reports, report.ID)
	return nil
}

func (m *mockStore) ListReports(ctx context.Context) ([]types.UserReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.UserReport
	for _, r := range m.reports {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockStore) ApplyConfidenceUpdates(ctx context.Context, updates []store.ConfidenceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSize = append(m.batchSize, len(updates))
	for _, u := range updates {
		u.Report.ConfidenceScore = u.Result.ConfidenceScore
		u.Report.ConfidenceLevel = u.Result.ConfidenceLevel
		u.Report.ConfidenceBreakdown = u.Result.Breakdown
		copied := *u.Report
		m.reports[u.Report.ID] = &copied
	}
	return nil
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
	return nil
}

func (m *mockStore) ListUserReportTracking(ctx context.Context, uid string) ([]types.ReportTrackingRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ReportTrackingRow(nil), m.tracking[uid]...), nil
}

func (m *mockStore) PutAuditLog(ctx context.Context, log *types.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *log
	m.audits[log.OperationID] = &copied
	return nil
}

// quota/cache surface for the ai service
func (m *mockStore) IncrementBounded(ctx context.Context, path string, limit int) (int, bool, error) {
	return 1, true, nil
}
func (m *mockStore) KeysPrefix(ctx context.Context, prefix string) ([]string, error) { return nil, nil }
func (m *mockStore) Delete(ctx context.Context, path string) error                   { return nil }
func (m *mockStore) GetJSON(ctx context.Context, path string, v any) (bool, error)   { return false, nil }
func (m *mockStore) Set(ctx context.Context, path string, v any) error               { return nil }
func (m *mockStore) GetCounter(ctx context.Context, path string) (int, error)        { return 0, nil }

// mockFeeds implements FeedReader.
type mockFeeds struct {
	data map[types.FeedType][]types.DisasterEvent
}

func (m *mockFeeds) GetCachedData(ctx context.Context, feed types.FeedType) ([]types.DisasterEvent, error) {
	return m.data[feed], nil
}

// fakeProvider is a scripted AI provider.
type fakeProvider struct {
	score float64
	err   error
	calls int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Analyze(ctx context.Context, systemPrompt, userPrompt string) (*ai.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &ai.Result{Score: p.score, Reasoning: "plausible and corroborated"}, nil
}

type fixture struct {
	svc   *Service
	db    *mockStore
	feeds *mockFeeds
	ai    *fakeProvider
	clock *clockwork.FakeClock
}

func newFixture(t *testing.T, providers ...ai.Provider) *fixture {
	t.Helper()
	db := newMockStore()
	feeds := &mockFeeds{data: map[types.FeedType][]types.DisasterEvent{}}
	clock := clockwork.NewFakeClockAt(testutil.BaseTime)
	logger := testutil.NewTestLogger()

	var fake *fakeProvider
	if len(providers) == 0 {
		fake = &fakeProvider{score: 0.9}
		providers = []ai.Provider{fake}
	} else if fp, ok := providers[0].(*fakeProvider); ok {
		fake = fp
	}

	scorer := scoring.NewScorerWithClock(clock)
	cred := credibility.NewServiceWithClock(db, clock, logger)
	aiSvc := ai.NewServiceWithClock(providers, db, clock, logger)
	decaySvc := decay.NewServiceWithClock(clock)

	svc := NewService(db, feeds, scorer, cred, aiSvc, nil, decaySvc, logger)
	svc.SetClock(clock)
	return &fixture{svc: svc, db: db, feeds: feeds, ai: fake, clock: clock}
}

func submitRequest() SubmitRequest {
	return SubmitRequest{
		Type:        "wildfire",
		Latitude:    34.05,
		Longitude:   -118.24,
		Severity:    "high",
		Description: "Fire on hillside, smoke visible",
	}
}

func TestSubmitAnonymousReport(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Submit(context.Background(), submitRequest(), nil)
	if err != nil {
		t.Fatal(err)
	}

	r := result.Report
	if r.Source != types.SourceUserReport {
		t.Errorf("source = %s, want user_report", r.Source)
	}
	if r.ConfidenceScore <= 0 || r.ConfidenceLevel == "" {
		t.Error("submission must carry a confidence score and level")
	}
	if r.AIAnalysisStatus != types.AIStatusPending {
		t.Errorf("status = %s, want pending (description present, quota free)", r.AIAnalysisStatus)
	}
	if result.CredibilityUpdate != nil {
		t.Error("anonymous submissions have no credibility update")
	}
	if f.db.reports[r.ID] == nil {
		t.Error("report must be persisted")
	}
}

func TestSubmitWithoutContentIsNotApplicable(t *testing.T) {
	f := newFixture(t)

	req := submitRequest()
	req.Description = ""
	result, err := f.svc.Submit(context.Background(), req, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Report.AIAnalysisStatus != types.AIStatusNotApplicable {
		t.Errorf("status = %s, want not_applicable", result.Report.AIAnalysisStatus)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)

	bad := submitRequest()
	bad.Latitude = 91
	if _, err := f.svc.Submit(context.Background(), bad, nil); !errors.Is(err, ErrValidation) {
		t.Error("latitude 91 must be rejected")
	}

	bad = submitRequest()
	bad.Type = ""
	if _, err := f.svc.Submit(context.Background(), bad, nil); !errors.Is(err, ErrValidation) {
		t.Error("missing type must be rejected")
	}

	bad = submitRequest()
	bad.ImageURL = "http://169.254.169.254/latest/meta-data"
	if _, err := f.svc.Submit(context.Background(), bad, nil); !errors.Is(err, ErrValidation) {
		t.Error("link-local image URL must be rejected")
	}

	bad = submitRequest()
	bad.ImageURL = "http://localhost/x.png"
	if _, err := f.svc.Submit(context.Background(), bad, nil); !errors.Is(err, ErrValidation) {
		t.Error("localhost image URL must be rejected")
	}
}

func TestSubmitAuthenticatedSnapshotsCredibility(t *testing.T) {
	f := newFixture(t)
	profile := testutil.FixtureProfile(func(p *types.UserProfile) {
		p.UserID = "u1"
		p.CredibilityScore = 80
		p.CredibilityLevel = types.CredibilityLevelFor(80)
	})
	f.db.profiles["u1"] = profile

	result, err := f.svc.Submit(context.Background(), submitRequest(), &auth.Principal{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}

	r := result.Report
	if r.Source != types.SourceUserReportAuth {
		t.Errorf("source = %s, want user_report_authenticated", r.Source)
	}
	if r.UserCredibilityAtSubmission == nil || *r.UserCredibilityAtSubmission != 80 {
		t.Error("submission must snapshot the user's credibility")
	}
	if result.CredibilityUpdate == nil {
		t.Fatal("authenticated submissions update credibility")
	}
	stored := f.db.reports[r.ID]
	if stored.SubmissionCredibilityDelta == nil || *stored.SubmissionCredibilityDelta != result.CredibilityUpdate.Delta {
		t.Error("submission delta must be recorded on the report")
	}
}

func TestEnhanceStateMachine(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Submit(context.Background(), submitRequest(), nil)
	if err != nil {
		t.Fatal(err)
	}
	id := result.Report.ID

	enhanced, err := f.svc.Enhance(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if enhanced.AIAnalysisStatus != types.AIStatusCompleted {
		t.Fatalf("status = %s, want completed", enhanced.AIAnalysisStatus)
	}
	if enhanced.ConfidenceBreakdown.AIEnhancement == nil {
		t.Fatal("breakdown must record the AI enhancement")
	}
	scoreAfterFirst := enhanced.ConfidenceScore
	calls := f.ai.calls

	// Idempotent at completed: no score change, no new provider calls.
	again, err := f.svc.Enhance(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if again.ConfidenceScore != scoreAfterFirst {
		t.Error("re-enhancing a completed report must not move the score")
	}
	if f.ai.calls != calls {
		t.Error("re-enhancing a completed report must not call the provider")
	}
}

func TestEnhanceNotApplicableConflicts(t *testing.T) {
	f := newFixture(t)
	req := submitRequest()
	req.Description = ""
	result, _ := f.svc.Submit(context.Background(), req, nil)

	_, err := f.svc.Enhance(context.Background(), result.Report.ID)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("enhancing a not_applicable report: err = %v, want conflict", err)
	}
}

func TestEnhanceProviderFailure(t *testing.T) {
	failing := &fakeProvider{err: errors.New("provider down")}
	f := newFixture(t, failing)

	result, _ := f.svc.Submit(context.Background(), submitRequest(), nil)
	report, err := f.svc.Enhance(context.Background(), result.Report.ID)
	if err != nil {
		t.Fatalf("provider failure must not error the transition: %v", err)
	}
	if report.AIAnalysisStatus != types.AIStatusFailed {
		t.Errorf("status = %s, want failed", report.AIAnalysisStatus)
	}
	// The heuristic score survives as the fallback.
	if report.ConfidenceScore <= 0 {
		t.Error("heuristic score must survive provider failure")
	}

	// Idempotent at failed: a retry reports 429 semantics.
	_, err = f.svc.Enhance(context.Background(), result.Report.ID)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("re-enhancing a failed report: err = %v, want rate-limited semantics", err)
	}
}

func TestEnhanceMissingReport(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Enhance(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

// =============================================================================
// OWNERSHIP
// =============================================================================

func seedOwnedReport(f *fixture, id, owner string) {
	report := testutil.FixtureReport(func(r *types.UserReport) {
		r.ID = id
		r.UserID = owner
		if owner != "" {
			r.Source = types.SourceUserReportAuth
		}
	})
	f.db.reports[id] = report
}

func TestOwnershipRules(t *testing.T) {
	f := newFixture(t)
	seedOwnedReport(f, "owned", "alice")
	seedOwnedReport(f, "legacy", "")

	desc := "updated"
	update := UpdateRequest{Description: &desc}

	// Owner may update.
	if _, err := f.svc.Update(context.Background(), "owned", update, &auth.Principal{UserID: "alice"}); err != nil {
		t.Errorf("owner update rejected: %v", err)
	}
	// A stranger may not.
	if _, err := f.svc.Update(context.Background(), "owned", update, &auth.Principal{UserID: "bob"}); !errors.Is(err, ErrForbidden) {
		t.Error("stranger update must be forbidden")
	}
	// Anonymous may not.
	if _, err := f.svc.Update(context.Background(), "owned", update, nil); !errors.Is(err, ErrForbidden) {
		t.Error("anonymous update must be forbidden")
	}
	// Admin may.
	if _, err := f.svc.Update(context.Background(), "owned", update, &auth.Principal{UserID: "root", IsAdmin: true}); err != nil {
		t.Errorf("admin update rejected: %v", err)
	}

	// A stranger may not delete an owned report.
	if err := f.svc.Delete(context.Background(), "owned", &auth.Principal{UserID: "bob"}); !errors.Is(err, ErrForbidden) {
		t.Error("stranger delete must be forbidden")
	}
	// Legacy reports are deletable by anyone.
	if err := f.svc.Delete(context.Background(), "legacy", nil); err != nil {
		t.Errorf("legacy delete rejected: %v", err)
	}
	// Owner may delete their own.
	if err := f.svc.Delete(context.Background(), "owned", &auth.Principal{UserID: "alice"}); err != nil {
		t.Errorf("owner delete rejected: %v", err)
	}
}

func TestAdminUpdateMarksReport(t *testing.T) {
	f := newFixture(t)
	seedOwnedReport(f, "owned", "alice")

	desc := "corrected by moderation"
	_, err := f.svc.Update(context.Background(), "owned", UpdateRequest{Description: &desc},
		&auth.Principal{UserID: "root", IsAdmin: true})
	if err != nil {
		t.Fatal(err)
	}
	stored := f.db.reports["owned"]
	if !stored.UpdatedByAdmin {
		t.Error("admin edits must be marked")
	}
	if stored.UpdatedAt == nil {
		t.Error("updates must stamp updated_at")
	}
}

// =============================================================================
// BULK DELETE
// =============================================================================

func TestBulkDeleteStale(t *testing.T) {
	f := newFixture(t)
	admin := &auth.Principal{UserID: "root", IsAdmin: true}

	old1 := testutil.FixtureReport(func(r *types.UserReport) {
		r.ID = "old1"
		r.Timestamp = testutil.BaseTime.Add(-72 * time.Hour)
	})
	old2 := testutil.FixtureReport(func(r *types.UserReport) {
		r.ID = "old2"
		r.Timestamp = testutil.BaseTime.Add(-72 * time.Hour)
	})
	fresh := testutil.FixtureReport(func(r *types.UserReport) {
		r.ID = "fresh"
		r.Timestamp = testutil.BaseTime.Add(-24 * time.Hour)
	})
	for _, r := range []*types.UserReport{old1, old2, fresh} {
		f.db.reports[r.ID] = r
	}

	result, err := f.svc.BulkDeleteStale(context.Background(), 48, admin)
	if err != nil {
		t.Fatal(err)
	}
	if result.DeletedCount != 2 {
		t.Errorf("deleted_count = %d, want 2", result.DeletedCount)
	}
	deleted := map[string]bool{}
	for _, id := range result.DeletedIDs {
		deleted[id] = true
	}
	if !deleted["old1"] || !deleted["old2"] {
		t.Errorf("deleted_ids = %v, want old1 and old2", result.DeletedIDs)
	}
	if f.db.reports["fresh"] == nil {
		t.Error("the 24h report must remain")
	}

	// The audit log captured the sweep.
	if len(f.db.audits) != 1 {
		t.Fatalf("expected 1 audit log, got %d", len(f.db.audits))
	}
	for _, audit := range f.db.audits {
		if audit.Status != "completed" || audit.CompletedAt == nil {
			t.Error("audit log must be finalized")
		}
	}

	// A second identical sweep removes nothing.
	result, err = f.svc.BulkDeleteStale(context.Background(), 48, admin)
	if err != nil {
		t.Fatal(err)
	}
	if result.DeletedCount != 0 {
		t.Errorf("second sweep deleted %d, want 0", result.DeletedCount)
	}
}

// =============================================================================
// RETROACTIVE RESCORING
// =============================================================================

func TestRetroRescoreBatchesAndPreservesAI(t *testing.T) {
	f := newFixture(t)

	// A neighbor with a completed AI enhancement.
	neighbor := testutil.FixtureReport(func(r *types.UserReport) {
		r.ID = "neighbor"
		r.Latitude = 34.06
		r.ConfidenceScore = 0.7
		r.ConfidenceLevel = types.ConfidenceMedium
		r.ConfidenceBreakdown = &types.ConfidenceBreakdown{
			AIEnhancement: &types.AIEnhancementDetail{Score: 0.9, Reasoning: "looks real", Provider: "openai"},
		}
	})
	f.db.reports["neighbor"] = neighbor

	if err := f.svc.RetroRescore(context.Background(), 34.05, -118.24, "trigger"); err != nil {
		t.Fatal(err)
	}

	if len(f.db.batchSize) != 1 || f.db.batchSize[0] != 1 {
		t.Fatalf("expected one batched update of one report, got %v", f.db.batchSize)
	}
	updated := f.db.reports["neighbor"]
	if updated.ConfidenceBreakdown.AIEnhancement == nil {
		t.Fatal("AI enhancement must be preserved through rescoring")
	}
	if updated.ConfidenceBreakdown.AIEnhancement.Provider != "openai" {
		t.Error("preserved AI detail must be unchanged")
	}
	if f.ai.calls != 0 {
		t.Error("rescoring must never re-invoke the AI provider")
	}
}

func TestRetroRescoreBoundsFanout(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 30; i++ {
		id := string(rune('a' + i))
		r := testutil.FixtureReport(func(r *types.UserReport) {
			r.ID = id
			r.Latitude = 34.05 + float64(i)*0.01
		})
		f.db.reports[id] = r
	}

	if err := f.svc.RetroRescore(context.Background(), 34.05, -118.24, "trigger"); err != nil {
		t.Fatal(err)
	}
	if len(f.db.batchSize) != 1 || f.db.batchSize[0] != 20 {
		t.Errorf("fanout = %v, want one batch of 20", f.db.batchSize)
	}
}

// =============================================================================
// LISTING
// =============================================================================

func TestListInjectsTimeDecayAndFiltersAge(t *testing.T) {
	f := newFixture(t)

	recent := testutil.FixtureReport(func(r *types.UserReport) {
		r.ID = "recent"
		r.Timestamp = testutil.BaseTime.Add(-2 * time.Hour)
	})
	ancient := testutil.FixtureReport(func(r *types.UserReport) {
		r.ID = "ancient"
		r.Timestamp = testutil.BaseTime.Add(-100 * time.Hour)
	})
	f.db.reports["recent"] = recent
	f.db.reports["ancient"] = ancient

	all, err := f.svc.List(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(all))
	}
	for _, r := range all {
		if r.TimeDecay == nil {
			t.Fatal("listing must inject time_decay")
		}
	}

	maxAge := 24.0
	filtered, err := f.svc.List(context.Background(), &maxAge)
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].ID != "recent" {
		t.Errorf("age filter kept %v, want only the recent report", filtered)
	}

	// Boundary checks on the filter itself.
	zero := 0.0
	if _, err := f.svc.List(context.Background(), &zero); err != nil {
		t.Error("max_age_hours = 0 must be accepted")
	}
	negative := -1.0
	if _, err := f.svc.List(context.Background(), &negative); !errors.Is(err, ErrValidation) {
		t.Error("negative max_age_hours must be rejected")
	}
	huge := 9000.0
	if _, err := f.svc.List(context.Background(), &huge); !errors.Is(err, ErrValidation) {
		t.Error("max_age_hours above 8760 must be rejected")
	}
}
