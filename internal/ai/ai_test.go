package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/testutil"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// memQuotaStore implements QuotaStore in memory.
type memQuotaStore struct {
	mu       sync.Mutex
	counters map[string]int
	docs     map[string]Result
}

func newMemQuotaStore() *memQuotaStore {
	return &memQuotaStore{counters: map[string]int{}, docs: map[string]Result{}}
}

func (m *memQuotaStore) IncrementBounded(ctx context.Context, path string, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters[path] >= limit {
		return limit, false, nil
	}
	m.counters[path]++
	return m.counters[path], true, nil
}

func (m *memQuotaStore) GetCounter(ctx context.Context, path string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[path], nil
}

func (m *memQuotaStore) KeysPrefix(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for path := range m.counters {
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			keys = append(keys, path[len(prefix)+1:])
		}
	}
	return keys, nil
}

func (m *memQuotaStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, path)
	delete(m.docs, path)
	return nil
}

func (m *memQuotaStore) GetJSON(ctx context.Context, path string, v any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return false, nil
	}
	*(v.(*Result)) = doc
	return true, nil
}

func (m *memQuotaStore) Set(ctx context.Context, path string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = *(v.(*Result))
	return nil
}

// scriptedProvider returns a fixed result or error.
type scriptedProvider struct {
	name  string
	score float64
	err   error
	calls int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Analyze(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Result{Score: p.score, Reasoning: "scripted"}, nil
}

func newTestService(db *memQuotaStore, providers ...Provider) (*Service, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(testutil.BaseTime)
	return NewServiceWithClock(providers, db, clock, testutil.NewTestLogger()), clock
}

func reportWithContent() *types.UserReport {
	return testutil.FixtureReport(func(r *types.UserReport) {
		r.Description = "Flames visible from the ridge"
	})
}

func TestEligibility(t *testing.T) {
	svc, _ := newTestService(newMemQuotaStore(), &scriptedProvider{name: "p"})

	if !svc.Eligible(reportWithContent()) {
		t.Error("user report with description must be eligible")
	}

	noContent := testutil.FixtureReport(func(r *types.UserReport) {
		r.Description = ""
	})
	if svc.Eligible(noContent) {
		t.Error("report without description or image must not be eligible")
	}

	official := testutil.FixtureReport(func(r *types.UserReport) {
		r.Source = types.SourceNASAFirms
		r.Description = "satellite detection"
	})
	if svc.Eligible(official) {
		t.Error("official sources never take the AI path")
	}

	unconfigured, _ := newTestService(newMemQuotaStore())
	if unconfigured.Eligible(reportWithContent()) {
		t.Error("no providers means nothing is eligible")
	}
}

func TestQuotaAdmissionAndExhaustion(t *testing.T) {
	db := newMemQuotaStore()
	svc, clock := newTestService(db, &scriptedProvider{name: "p"})
	ctx := context.Background()

	for i := 0; i < config.AIRequestsPerHour; i++ {
		if err := svc.Admit(ctx); err != nil {
			t.Fatalf("admission %d failed: %v", i+1, err)
		}
	}
	if err := svc.Admit(ctx); !errors.Is(err, ErrQuotaExhausted) {
		t.Errorf("err = %v, want quota exhausted", err)
	}
	if svc.QuotaAvailable(ctx) {
		t.Error("quota must read as unavailable when exhausted")
	}

	// The next hour bucket starts fresh.
	clock.Advance(time.Hour)
	if err := svc.Admit(ctx); err != nil {
		t.Errorf("new hour must admit: %v", err)
	}
}

func TestQuotaReapsOldBuckets(t *testing.T) {
	db := newMemQuotaStore()
	svc, clock := newTestService(db, &scriptedProvider{name: "p"})
	ctx := context.Background()

	if err := svc.Admit(ctx); err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Hour)
	if err := svc.Admit(ctx); err != nil {
		t.Fatal(err)
	}

	if len(db.counters) != 1 {
		t.Errorf("stale hour buckets not reaped: %d remain", len(db.counters))
	}
}

func TestProviderFallback(t *testing.T) {
	primary := &scriptedProvider{name: "openai", err: errors.New("api down")}
	fallback := &scriptedProvider{name: "gemini", score: 0.8}
	svc, _ := newTestService(newMemQuotaStore(), primary, fallback)

	result, err := svc.Analyze(context.Background(), reportWithContent(), PromptContext{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Provider != "gemini" {
		t.Errorf("provider = %s, want gemini fallback", result.Provider)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.calls, fallback.calls)
	}
}

func TestAllProvidersFail(t *testing.T) {
	primary := &scriptedProvider{name: "openai", err: errors.New("down")}
	fallback := &scriptedProvider{name: "gemini", err: errors.New("also down")}
	svc, _ := newTestService(newMemQuotaStore(), primary, fallback)

	if _, err := svc.Analyze(context.Background(), reportWithContent(), PromptContext{}); err == nil {
		t.Error("both providers failing must surface an error")
	}
}

func TestResultCaching(t *testing.T) {
	db := newMemQuotaStore()
	provider := &scriptedProvider{name: "p", score: 0.85}
	svc, clock := newTestService(db, provider)
	report := reportWithContent()

	if _, ok := svc.CachedResult(context.Background(), report); ok {
		t.Fatal("cache must start empty")
	}

	if _, err := svc.Analyze(context.Background(), report, PromptContext{}); err != nil {
		t.Fatal(err)
	}

	cached, ok := svc.CachedResult(context.Background(), report)
	if !ok {
		t.Fatal("analysis result must be cached")
	}
	if cached.Score != 0.85 {
		t.Errorf("cached score = %.2f, want 0.85", cached.Score)
	}

	// Cache entries expire after 24 hours.
	clock.Advance(25 * time.Hour)
	if _, ok := svc.CachedResult(context.Background(), report); ok {
		t.Error("cache entries older than 24h must not be served")
	}
}

func TestScoreClamping(t *testing.T) {
	provider := &scriptedProvider{name: "p", score: 1.7}
	svc, _ := newTestService(newMemQuotaStore(), provider)

	result, err := svc.Analyze(context.Background(), reportWithContent(), PromptContext{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Score != 1.0 {
		t.Errorf("score = %.2f, want clamped to 1.0", result.Score)
	}
}

func TestSummarizeNeighbors(t *testing.T) {
	report := testutil.FixtureReport()

	distance := func(lat1, lon1, lat2, lon2 float64) float64 { return 3.0 }
	nearby := []types.DisasterEvent{
		testutil.FixtureEvent(),
		testutil.FixtureEvent(),
		testutil.FixtureEvent(func(e *types.DisasterEvent) { e.Source = types.SourceUserReport }),
		testutil.FixtureEvent(func(e *types.DisasterEvent) { e.Type = types.TypeFlood }),
	}

	pc := SummarizeNeighbors(report, nearby, distance)
	if pc.OfficialReportCount != 2 {
		t.Errorf("official count = %d, want 2", pc.OfficialReportCount)
	}
	if pc.UserReportCount != 1 {
		t.Errorf("user count = %d, want 1", pc.UserReportCount)
	}
	if pc.DistanceToOfficial != "~3 miles (from nasa_firms)" {
		t.Errorf("distance summary = %q", pc.DistanceToOfficial)
	}
}
