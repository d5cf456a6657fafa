package feeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relief-net/disaster-intel/internal/store"
	"github.com/relief-net/disaster-intel/internal/testutil"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// memStore implements DocumentStore in memory.
type memStore struct {
	mu   sync.Mutex
	docs map[string]any
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]any{}}
}

func (m *memStore) GetJSON(ctx context.Context, path string, v any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return false, nil
	}
	switch target := v.(type) {
	case *types.FeedMetadata:
		*target = doc.(types.FeedMetadata)
	case *[]types.DisasterEvent:
		*target = doc.([]types.DisasterEvent)
	default:
		return false, errors.New("unexpected type")
	}
	return true, nil
}

func (m *memStore) SetBatch(ctx context.Context, docs map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for path, doc := range docs {
		m.docs[path] = doc
	}
	return nil
}

// scriptedAdapter implements Adapter with canned events.
type scriptedAdapter struct {
	feed   types.FeedType
	events []types.DisasterEvent
	err    error
	calls  int
}

func (a *scriptedAdapter) FeedType() types.FeedType { return a.feed }

func (a *scriptedAdapter) Fetch(ctx context.Context, windowDays int) ([]types.DisasterEvent, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.events, nil
}

// nopScorer satisfies ConfidenceScorer for adapter tests.
type nopScorer struct{}

func (nopScorer) ScoreEvent(event *types.DisasterEvent) {
	event.ConfidenceScore = 0.95
	event.ConfidenceLevel = types.ConfidenceHigh
}

func TestManagerRefreshAndStaleness(t *testing.T) {
	db := newMemStore()
	adapter := &scriptedAdapter{
		feed:   types.FeedWildfires,
		events: []types.DisasterEvent{testutil.FixtureEvent()},
	}
	m := NewManager(db, []Adapter{adapter}, nil, testutil.NewTestLogger())

	// Empty cache is stale.
	stale, err := m.ShouldUpdate(context.Background(), types.FeedWildfires)
	if err != nil || !stale {
		t.Fatalf("empty cache must be stale: stale=%v err=%v", stale, err)
	}

	if err := m.Refresh(context.Background(), types.FeedWildfires, false); err != nil {
		t.Fatal(err)
	}
	if adapter.calls != 1 {
		t.Fatalf("adapter calls = %d, want 1", adapter.calls)
	}

	events, err := m.GetCachedData(context.Background(), types.FeedWildfires)
	if err != nil || len(events) != 1 {
		t.Fatalf("cached events = %d (err %v), want 1", len(events), err)
	}

	// Fresh cache: a second non-forced refresh is a no-op.
	if err := m.Refresh(context.Background(), types.FeedWildfires, false); err != nil {
		t.Fatal(err)
	}
	if adapter.calls != 1 {
		t.Errorf("fresh cache refetched: calls = %d", adapter.calls)
	}

	// Forced refresh always fetches.
	if err := m.Refresh(context.Background(), types.FeedWildfires, true); err != nil {
		t.Fatal(err)
	}
	if adapter.calls != 2 {
		t.Errorf("forced refresh skipped: calls = %d", adapter.calls)
	}
}

func TestManagerStaleOnErrorFallback(t *testing.T) {
	db := newMemStore()
	adapter := &scriptedAdapter{
		feed:   types.FeedWildfires,
		events: []types.DisasterEvent{testutil.FixtureEvent()},
	}
	m := NewManager(db, []Adapter{adapter}, nil, testutil.NewTestLogger())

	if err := m.Refresh(context.Background(), types.FeedWildfires, true); err != nil {
		t.Fatal(err)
	}

	// The upstream starts failing; readers keep the last good data.
	adapter.err = errors.New("upstream down")
	if err := m.Refresh(context.Background(), types.FeedWildfires, true); err == nil {
		t.Error("refresh must report the fetch error to its caller")
	}
	events, err := m.GetCachedData(context.Background(), types.FeedWildfires)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("stale cache lost: %d events, want 1", len(events))
	}
}

func TestManagerTTLOverrides(t *testing.T) {
	db := newMemStore()
	m := NewManager(db, nil, map[string]time.Duration{"wildfires": 42 * time.Minute}, testutil.NewTestLogger())
	if m.TTL(types.FeedWildfires) != 42*time.Minute {
		t.Errorf("override ignored: ttl = %v", m.TTL(types.FeedWildfires))
	}
	if m.TTL(types.FeedFEMA) != 24*time.Hour {
		t.Errorf("fema ttl = %v, want 24h", m.TTL(types.FeedFEMA))
	}
}

func TestMetadataWrittenWithData(t *testing.T) {
	db := newMemStore()
	adapter := &scriptedAdapter{
		feed:   types.FeedWildfires,
		events: []types.DisasterEvent{testutil.FixtureEvent(), testutil.FixtureEvent()},
	}
	m := NewManager(db, []Adapter{adapter}, nil, testutil.NewTestLogger())

	if err := m.Refresh(context.Background(), types.FeedWildfires, true); err != nil {
		t.Fatal(err)
	}

	var meta types.FeedMetadata
	found, err := db.GetJSON(context.Background(), store.FeedMetadataPath("wildfires"), &meta)
	if err != nil || !found {
		t.Fatal("metadata must be written alongside data")
	}
	if meta.Count != 2 || meta.Status != "ok" {
		t.Errorf("metadata = %+v, want count 2 status ok", meta)
	}
}

// =============================================================================
// ADAPTER PARSING
// =============================================================================

func TestFIRMSAdapterParsesCSV(t *testing.T) {
	csv := strings.Join([]string{
		"latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,confidence,version,bright_ti5,frp,daynight",
		"34.0500,-118.2400,370.5,0.5,0.5,2025-06-15,1130,N,h,2.0NRT,290.1,120.3,D",
		"91.0,-118.2400,340.0,0.5,0.5,2025-06-15,1130,N,n,2.0NRT,290.1,10.0,D", // invalid latitude
		"33.9000,-118.1000,310.0,0.5,0.5,,1130,N,l,2.0NRT,290.1,1.0,D",         // missing date
		"33.8000,-118.0000,405.0,0.5,0.5,2025-06-15,1135,N,h,2.0NRT,295.0,150.0,D",
	}, "\n")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(csv))
	}))
	defer server.Close()

	adapter := NewFIRMSAdapter("test-key", nopScorer{}, testutil.NewTestLogger())
	adapter.SetBaseURL(server.URL)

	events, err := adapter.Fetch(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (invalid rows dropped)", len(events))
	}

	first := events[0]
	if first.Source != types.SourceNASAFirms || first.Type != types.TypeWildfire {
		t.Error("events must be tagged nasa_firms wildfires")
	}
	if !strings.HasPrefix(first.ID, "firms_") {
		t.Errorf("id %q must carry the source prefix", first.ID)
	}
	if first.Severity != types.SeverityHigh { // brightness 370.5
		t.Errorf("severity = %s, want high for brightness 370", first.Severity)
	}
	if events[1].Severity != types.SeverityCritical { // brightness 405
		t.Errorf("severity = %s, want critical for brightness 405", events[1].Severity)
	}
	if first.ConfidenceScore == 0 {
		t.Error("adapter must attach an initial confidence")
	}
}

func TestUSGSAdapterParsesGeoJSON(t *testing.T) {
	body := `{"features":[
		{"id":"ci12345","properties":{"mag":6.2,"place":"10km N of Somewhere","time":1750000000000},
		 "geometry":{"coordinates":[-118.24,34.05,8.1]}},
		{"id":"ci99999","properties":{"mag":2.0,"place":"elsewhere","time":0},
		 "geometry":{"coordinates":[-118.0,34.0,5.0]}}
	]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	adapter := NewUSGSAdapter(nopScorer{}, testutil.NewTestLogger())
	adapter.SetBaseURL(server.URL)

	events, err := adapter.Fetch(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 (zero-time feature dropped)", len(events))
	}
	e := events[0]
	if e.ID != "usgs_ci12345" {
		t.Errorf("id = %q, want usgs_ci12345", e.ID)
	}
	if e.Severity != types.SeverityHigh {
		t.Errorf("severity = %s, want high for magnitude 6.2", e.Severity)
	}
	if e.Magnitude == nil || *e.Magnitude != 6.2 {
		t.Error("magnitude must be carried")
	}
	if e.DepthKm == nil || *e.DepthKm != 8.1 {
		t.Error("depth must be carried")
	}
}

func TestGDACSAdapterParsesRSS(t *testing.T) {
	rss := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:gdacs="http://www.gdacs.org" xmlns:georss="http://www.georss.org/georss">
  <channel>
    <item>
      <title>Red earthquake alert</title>
      <guid>GDACS_EQ_1234</guid>
      <pubDate>` + time.Now().UTC().Format(time.RFC1123Z) + `</pubDate>
      <georss:point>35.2 -120.1</georss:point>
      <gdacs:eventtype>EQ</gdacs:eventtype>
      <gdacs:eventid>1234</gdacs:eventid>
      <gdacs:alertlevel>Red</gdacs:alertlevel>
      <gdacs:country>United States</gdacs:country>
      <gdacs:eventname>Somewhere earthquake</gdacs:eventname>
    </item>
    <item>
      <title>No coordinates</title>
      <guid>GDACS_FL_5678</guid>
      <pubDate>` + time.Now().UTC().Format(time.RFC1123Z) + `</pubDate>
      <gdacs:eventtype>FL</gdacs:eventtype>
      <gdacs:alertlevel>Green</gdacs:alertlevel>
    </item>
  </channel>
</rss>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rss))
	}))
	defer server.Close()

	adapter := NewGDACSAdapter(nopScorer{}, testutil.NewTestLogger())
	adapter.SetBaseURL(server.URL)

	events, err := adapter.Fetch(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 (item without coordinates dropped)", len(events))
	}
	e := events[0]
	if e.ID != "gdacs_1234" {
		t.Errorf("id = %q, want gdacs_1234", e.ID)
	}
	if e.Type != types.TypeEarthquake {
		t.Errorf("type = %s, want earthquake", e.Type)
	}
	if e.Severity != types.SeverityCritical {
		t.Errorf("severity = %s, want critical for Red alert", e.Severity)
	}
	if e.Latitude != 35.2 || e.Longitude != -120.1 {
		t.Errorf("coordinates = (%f, %f), want (35.2, -120.1)", e.Latitude, e.Longitude)
	}
}

func TestSeverityMappings(t *testing.T) {
	if WildfireSeverity(405) != types.SeverityCritical ||
		WildfireSeverity(370) != types.SeverityHigh ||
		WildfireSeverity(340) != types.SeverityMedium ||
		WildfireSeverity(300) != types.SeverityLow {
		t.Error("wildfire brightness bands wrong")
	}
	if EarthquakeSeverity(7.5) != types.SeverityCritical ||
		EarthquakeSeverity(6.5) != types.SeverityHigh ||
		EarthquakeSeverity(5.5) != types.SeverityMedium ||
		EarthquakeSeverity(3.0) != types.SeverityLow {
		t.Error("earthquake magnitude bands wrong")
	}
	if NOAASeverity("Extreme") != types.SeverityCritical ||
		NOAASeverity("Severe") != types.SeverityHigh ||
		NOAASeverity("Moderate") != types.SeverityMedium ||
		NOAASeverity("Minor") != types.SeverityLow {
		t.Error("noaa severity map wrong")
	}
	if GDACSSeverity("Red") != types.SeverityCritical ||
		GDACSSeverity("Orange") != types.SeverityHigh ||
		GDACSSeverity("Green") != types.SeverityMedium {
		t.Error("gdacs alert color map wrong")
	}
	if CalFireSeverity(6000) != types.SeverityCritical ||
		CalFireSeverity(2000) != types.SeverityHigh ||
		CalFireSeverity(500) != types.SeverityMedium ||
		CalFireSeverity(10) != types.SeverityLow {
		t.Error("cal fire acreage bands wrong")
	}
}
