// Package metrics registers the Prometheus collectors the service exports on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedFetches counts upstream feed fetch attempts by feed and outcome.
	FeedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "disasterintel_feed_fetches_total",
		Help: "Upstream feed fetch attempts by feed type and outcome.",
	}, []string{"feed", "outcome"})

	// FeedEvents tracks the record count of the last successful refresh.
	FeedEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "disasterintel_feed_events",
		Help: "Events held in the cache for each feed type.",
	}, []string{"feed"})

	// AIRequests counts AI provider calls by provider and outcome.
	AIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "disasterintel_ai_requests_total",
		Help: "AI provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	// AIQuotaDenials counts enhancement requests refused by the hourly quota.
	AIQuotaDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "disasterintel_ai_quota_denials_total",
		Help: "AI enhancement requests refused by the hourly quota.",
	})

	// RouteRequests counts routing provider calls by provider and outcome.
	RouteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "disasterintel_route_requests_total",
		Help: "Routing provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	// ReportsSubmitted counts accepted report submissions by source.
	ReportsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "disasterintel_reports_submitted_total",
		Help: "Accepted report submissions by source.",
	}, []string{"source"})
)
