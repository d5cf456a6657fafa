// Package ai provides the AI-enhancement pipeline for user reports: a
// primary/fallback provider abstraction, the process-wide hourly quota, and
// the 24-hour content-hash result cache.
//
// The selection discipline is fixed: try the primary provider; on any error
// try the fallback; if both fail the caller falls back to the heuristic
// score. The quota counter is an atomic increment on the store's hour
// bucket, so it stays monotonic across workers.
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/relief-net/disaster-intel/internal/config"
	"github.com/relief-net/disaster-intel/internal/metrics"
	"github.com/relief-net/disaster-intel/internal/store"
	"github.com/relief-net/disaster-intel/pkg/types"
)

// ErrQuotaExhausted is returned when the hourly AI budget is spent.
var ErrQuotaExhausted = errors.New("ai hourly quota exhausted")

// ErrNoProviders is returned when no AI provider is configured.
var ErrNoProviders = errors.New("no ai providers configured")

// Result is the structured output of one provider call.
type Result struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
	Provider  string  `json:"provider,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// Provider is one AI backend capable of credibility analysis.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, systemPrompt, userPrompt string) (*Result, error)
}

// QuotaStore is the document-store slice the service needs for quota and
// caching.
type QuotaStore interface {
	IncrementBounded(ctx context.Context, path string, limit int) (int, bool, error)
	KeysPrefix(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, path string) error
	GetJSON(ctx context.Context, path string, v any) (bool, error)
	Set(ctx context.Context, path string, v any) error
	GetCounter(ctx context.Context, path string) (int, error)
}

// Service runs AI analysis with quota, caching, and provider fallback.
type Service struct {
	providers []Provider
	db        QuotaStore
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewService creates the AI service. The provider order is the fallback
// order; an empty list disables enhancement.
func NewService(providers []Provider, db QuotaStore, logger *slog.Logger) *Service {
	return NewServiceWithClock(providers, db, clockwork.NewRealClock(), logger)
}

// NewServiceWithClock creates the AI service on the given clock.
func NewServiceWithClock(providers []Provider, db QuotaStore, clock clockwork.Clock, logger *slog.Logger) *Service {
	return &Service{
		providers: providers,
		db:        db,
		clock:     clock,
		logger:    logger.With("component", "ai"),
	}
}

// Configured reports whether any provider is available.
func (s *Service) Configured() bool {
	return len(s.providers) > 0
}

// Eligible reports whether a report qualifies for AI analysis at all: only
// user reports with a description or image are analyzed.
func (s *Service) Eligible(report *types.UserReport) bool {
	if !s.Configured() {
		return false
	}
	if !report.Source.IsUserReport() {
		return false
	}
	return report.Description != "" || report.ImageURL != ""
}

// ContentHash keys the result cache by report content.
func ContentHash(report *types.UserReport) string {
	sum := sha256.Sum256([]byte(report.Description + report.ImageURL))
	return hex.EncodeToString(sum[:])
}

// CachedResult returns a cached analysis for the report's content if one
// exists and is younger than 24 hours.
func (s *Service) CachedResult(ctx context.Context, report *types.UserReport) (*Result, bool) {
	var cached Result
	found, err := s.db.GetJSON(ctx, store.AICachePath(ContentHash(report)), &cached)
	if err != nil || !found {
		return nil, false
	}
	ts, err := time.Parse(time.RFC3339, cached.Timestamp)
	if err != nil {
		return nil, false
	}
	if s.clock.Now().Sub(ts) >= config.AICacheDuration {
		return nil, false
	}
	return &cached, true
}

// QuotaAvailable reports whether the current hour bucket still has budget,
// without consuming any. The submit path uses this to decide the initial
// ai_analysis_status.
func (s *Service) QuotaAvailable(ctx context.Context) bool {
	hourKey := s.clock.Now().UTC().Format("2006-01-02-15")
	used, err := s.db.GetCounter(ctx, store.AIUsagePath(hourKey))
	if err != nil {
		return false
	}
	return used < config.AIRequestsPerHour
}

// Admit consumes one unit of the hourly quota. It also reaps hour buckets
// older than 24 hours, best-effort.
func (s *Service) Admit(ctx context.Context) error {
	hourKey := s.clock.Now().UTC().Format("2006-01-02-15")
	_, admitted, err := s.db.IncrementBounded(ctx, store.AIUsagePath(hourKey), config.AIRequestsPerHour)
	if err != nil {
		return fmt.Errorf("checking ai quota: %w", err)
	}
	if !admitted {
		metrics.AIQuotaDenials.Inc()
		return ErrQuotaExhausted
	}
	s.reapOldBuckets(ctx)
	return nil
}

// Analyze runs the provider chain for a report and caches the result. The
// caller is responsible for Admit and cache checks; Analyze always spends a
// provider call.
func (s *Service) Analyze(ctx context.Context, report *types.UserReport, promptCtx PromptContext) (*Result, error) {
	if len(s.providers) == 0 {
		return nil, ErrNoProviders
	}

	userPrompt := buildPrompt(report, promptCtx)

	var lastErr error
	for _, provider := range s.providers {
		callCtx, cancel := context.WithTimeout(ctx, config.AIRequestTimeout)
		result, err := provider.Analyze(callCtx, systemPrompt, userPrompt)
		cancel()
		if err != nil {
			metrics.AIRequests.WithLabelValues(provider.Name(), "error").Inc()
			s.logger.Warn("ai provider failed, trying next", "provider", provider.Name(), "error", err)
			lastErr = err
			continue
		}
		metrics.AIRequests.WithLabelValues(provider.Name(), "ok").Inc()

		result.Provider = provider.Name()
		result.Score = clamp01(result.Score)
		result.Timestamp = s.clock.Now().UTC().Format(time.RFC3339)
		if err := s.db.Set(ctx, store.AICachePath(ContentHash(report)), result); err != nil {
			s.logger.Warn("failed to cache ai result", "error", err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("all ai providers failed: %w", lastErr)
}

func (s *Service) reapOldBuckets(ctx context.Context) {
	keys, err := s.db.KeysPrefix(ctx, store.AIUsagePrefix)
	if err != nil {
		return
	}
	cutoff := s.clock.Now().UTC().Add(-24 * time.Hour)
	for _, key := range keys {
		t, err := time.Parse("2006-01-02-15", key)
		if err != nil {
			continue
		}
		if t.Before(cutoff) {
			_ = s.db.Delete(ctx, store.AIUsagePath(key))
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
