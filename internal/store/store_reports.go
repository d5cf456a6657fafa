package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// =============================================================================
// REPORTS
// =============================================================================

// GetReport loads a user report by ID. Returns nil when absent.
func (s *Store) GetReport(ctx context.Context, id string) (*types.UserReport, error) {
	var report types.UserReport
	found, err := s.GetJSON(ctx, ReportPath(id), &report)
	if err != nil || !found {
		return nil, err
	}
	report.ID = id
	return &report, nil
}

// PutReport writes a report and, when owned, its compact tracking row in one
// batch.
func (s *Store) PutReport(ctx context.Context, report *types.UserReport) error {
	if report.ID == "" {
		return fmt.Errorf("report ID is required")
	}
	docs := map[string]any{
		ReportPath(report.ID): report,
	}
	if report.UserID != "" {
		docs[UserReportTrackingPath(report.UserID, report.ID)] = types.ReportTrackingRow{
			ReportID:        report.ID,
			Latitude:        report.Latitude,
			Longitude:       report.Longitude,
			Timestamp:       report.Timestamp,
			ConfidenceScore: report.ConfidenceScore,
		}
	}
	return s.SetBatch(ctx, docs)
}

// DeleteReport removes a report and its tracking row.
func (s *Store) DeleteReport(ctx context.Context, report *types.UserReport) error {
	paths := []string{ReportPath(report.ID)}
	if report.UserID != "" {
		paths = append(paths, UserReportTrackingPath(report.UserID, report.ID))
	}
	return s.DeleteBatch(ctx, paths)
}

// ListReports returns every stored user report.
func (s *Store) ListReports(ctx context.Context) ([]types.UserReport, error) {
	docs, err := s.ListPrefix(ctx, ReportPrefix)
	if err != nil {
		return nil, err
	}
	reports := make([]types.UserReport, 0, len(docs))
	for id, doc := range docs {
		var report types.UserReport
		if err := json.Unmarshal(doc, &report); err != nil {
			// A single corrupt document must not take down the listing.
			continue
		}
		report.ID = id
		reports = append(reports, report)
	}
	return reports, nil
}

// ConfidenceUpdate is one report's rescored confidence, applied as part of a
// batched retroactive update.
type ConfidenceUpdate struct {
	Report *types.UserReport
	Result types.ConfidenceResult
}

// ApplyConfidenceUpdates writes the rescored confidence of every report in a
// single multi-path batch so score, level, and breakdown stay consistent.
func (s *Store) ApplyConfidenceUpdates(ctx context.Context, updates []ConfidenceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	docs := make(map[string]any, len(updates)*2)
	for _, u := range updates {
		u.Report.ConfidenceScore = u.Result.ConfidenceScore
		u.Report.ConfidenceLevel = u.Result.ConfidenceLevel
		u.Report.ConfidenceBreakdown = u.Result.Breakdown
		docs[ReportPath(u.Report.ID)] = u.Report
		if u.Report.UserID != "" {
			docs[UserReportTrackingPath(u.Report.UserID, u.Report.ID)] = types.ReportTrackingRow{
				ReportID:        u.Report.ID,
				Latitude:        u.Report.Latitude,
				Longitude:       u.Report.Longitude,
				Timestamp:       u.Report.Timestamp,
				ConfidenceScore: u.Report.ConfidenceScore,
			}
		}
	}
	return s.SetBatch(ctx, docs)
}

// =============================================================================
// AUDIT LOGS
// =============================================================================

// PutAuditLog upserts an admin operation record.
func (s *Store) PutAuditLog(ctx context.Context, log *types.AuditLog) error {
	return s.Set(ctx, AuditLogPath(log.OperationID), log)
}
