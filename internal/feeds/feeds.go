// Package feeds ingests the seven upstream disaster feeds and maintains the
// per-feed cache documents the rest of the service reads.
//
// Each upstream source is an Adapter: it owns its transport and schema
// mapping and produces normalized DisasterEvent records. The Manager owns
// freshness: every feed has its own TTL, refreshes overwrite the cached
// document, and a failed refresh falls back to the last successful cache
// rather than surfacing an error to readers.
package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/metrics"
	"github.com/relief-net/disaster-intel/internal/store"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// Adapter is the capability set every feed source implements.
type Adapter interface {
	// FeedType names the cache document this adapter populates.
	FeedType() types.FeedType

	// Fetch retrieves and normalizes events covering the last windowDays.
	// Adapters clamp the window to whatever their upstream allows and drop
	// records with invalid coordinates or missing timestamps.
	Fetch(ctx context.Context, windowDays int) ([]types.DisasterEvent, error)
}

// ConfidenceScorer attaches an initial confidence to a normalized event.
// Adapters receive it at construction time; the dependency runs one way.
type ConfidenceScorer interface {
	ScoreEvent(event *types.DisasterEvent)
}

// DocumentStore is the slice of the store the manager needs.
type DocumentStore interface {
	GetJSON(ctx context.Context, path string, v any) (bool, error)
	SetBatch(ctx context.Context, docs map[string]any) error
}

// Manager tracks per-feed freshness over the cache documents.
type Manager struct {
	db       DocumentStore
	adapters map[types.FeedType]Adapter
	ttls     map[types.FeedType]time.Duration
	logger   *slog.Logger
}

// NewManager creates a cache manager over the given adapters. TTL overrides
// (from the config file) take precedence over the built-in defaults.
func NewManager(db DocumentStore, adapters []Adapter, overrides map[string]time.Duration, logger *slog.Logger) *Manager {
	m := &Manager{
		db:       db,
		adapters: make(map[types.FeedType]Adapter, len(adapters)),
		ttls: map[types.FeedType]time.Duration{
			types.FeedWildfires:     config.TTLWildfires,
			types.FeedWeatherAlerts: config.TTLWeatherAlerts,
			types.FeedEarthquakes:   config.TTLEarthquakes,
			types.FeedGDACS:         config.TTLGDACS,
			types.FeedFEMA:          config.TTLFEMA,
			types.FeedCalFire:       config.TTLStateFeeds,
			types.FeedCalOES:        config.TTLStateFeeds,
			types.FeedSafeZones:     config.TTLSafeZones,
		},
		logger: logger.With("component", "feed_cache"),
	}
	for _, a := range adapters {
		m.adapters[a.FeedType()] = a
	}
	for feed, ttl := range overrides {
		m.ttls[types.FeedType(feed)] = ttl
	}
	return m
}

// TTL returns the freshness window of a feed.
func (m *Manager) TTL(feed types.FeedType) time.Duration {
	if ttl, ok := m.ttls[feed]; ok {
		return ttl
	}
	return config.TTLStateFeeds
}

// ShouldUpdate reports whether the cached document for a feed is stale per
// that feed's TTL. Missing metadata counts as stale.
func (m *Manager) ShouldUpdate(ctx context.Context, feed types.FeedType) (bool, error) {
	var meta types.FeedMetadata
	found, err := m.db.GetJSON(ctx, store.FeedMetadataPath(string(feed)), &meta)
	if err != nil {
		return true, err
	}
	if !found {
		return true, nil
	}
	return time.Since(meta.LastUpdated) > m.TTL(feed), nil
}

// GetCachedData returns the last successfully cached events for a feed. A
// missing document yields an empty slice, never an error.
func (m *Manager) GetCachedData(ctx context.Context, feed types.FeedType) ([]types.DisasterEvent, error) {
	var events []types.DisasterEvent
	if _, err := m.db.GetJSON(ctx, store.FeedDataPath(string(feed)), &events); err != nil {
		return nil, err
	}
	return events, nil
}

// UpdateCache overwrites the cached document for a feed. Data and metadata
// are written in one batch.
func (m *Manager) UpdateCache(ctx context.Context, feed types.FeedType, events []types.DisasterEvent) error {
	if events == nil {
		events = []types.DisasterEvent{}
	}
	return m.db.SetBatch(ctx, map[string]any{
		store.FeedDataPath(string(feed)): events,
		store.FeedMetadataPath(string(feed)): types.FeedMetadata{
			LastUpdated: time.Now().UTC(),
			Count:       len(events),
			Status:      "ok",
		},
	})
}

// Refresh fetches a feed if stale (or unconditionally when force is set) and
// rewrites its cache document. On adapter failure the previous cache is left
// in place and the error is returned for logging only; readers keep getting
// the stale data.
func (m *Manager) Refresh(ctx context.Context, feed types.FeedType, force bool) error {
	adapter, ok := m.adapters[feed]
	if !ok {
		return fmt.Errorf("no adapter registered for feed %s", feed)
	}

	if !force {
		stale, err := m.ShouldUpdate(ctx, feed)
		if err != nil {
			m.logger.Warn("staleness check failed, refreshing anyway", "feed", feed, "error", err)
		} else if !stale {
			return nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, config.FeedFetchTimeout)
	defer cancel()

	events, err := adapter.Fetch(fetchCtx, m.windowDays(feed))
	if err != nil {
		metrics.FeedFetches.WithLabelValues(string(feed), "error").Inc()
		m.logger.Warn("feed fetch failed, serving last successful cache",
			"feed", feed, "error", err)
		return err
	}
	metrics.FeedFetches.WithLabelValues(string(feed), "ok").Inc()
	metrics.FeedEvents.WithLabelValues(string(feed)).Set(float64(len(events)))

	if err := m.UpdateCache(ctx, feed, events); err != nil {
		return fmt.Errorf("updating cache for %s: %w", feed, err)
	}
	m.logger.Info("feed cache refreshed", "feed", feed, "events", len(events))
	return nil
}

// RefreshAll refreshes every registered feed, continuing past individual
// failures. It returns the number of feeds refreshed successfully.
func (m *Manager) RefreshAll(ctx context.Context, force bool) int {
	ok := 0
	for feed := range m.adapters {
		if err := m.Refresh(ctx, feed, force); err == nil {
			ok++
		}
	}
	return ok
}

// Status summarizes every feed's cache freshness.
func (m *Manager) Status(ctx context.Context) map[string]types.FeedMetadata {
	status := make(map[string]types.FeedMetadata, len(m.adapters))
	for feed := range m.adapters {
		var meta types.FeedMetadata
		found, err := m.db.GetJSON(ctx, store.FeedMetadataPath(string(feed)), &meta)
		if err != nil || !found {
			meta = types.FeedMetadata{Status: "missing"}
		}
		status[string(feed)] = meta
	}
	return status
}

// windowDays maps a feed to the fetch window passed to its adapter.
func (m *Manager) windowDays(feed types.FeedType) int {
	switch feed {
	case types.FeedFEMA:
		return 30
	case types.FeedGDACS:
		return 3
	default:
		return 1
	}
}
