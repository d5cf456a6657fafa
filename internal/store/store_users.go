package store

import (
	"context"
	"encoding/json"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// =============================================================================
// USER PROFILES
// =============================================================================

// GetUserProfile loads a profile by user ID. Returns nil when absent.
func (s *Store) GetUserProfile(ctx context.Context, uid string) (*types.UserProfile, error) {
	var profile types.UserProfile
	found, err := s.GetJSON(ctx, UserPath(uid), &profile)
	if err != nil || !found {
		return nil, err
	}
	profile.UserID = uid
	return &profile, nil
}

// PutUserProfile writes a profile.
func (s *Store) PutUserProfile(ctx context.Context, profile *types.UserProfile) error {
	return s.Set(ctx, UserPath(profile.UserID), profile)
}

// AppendCredibilityChange adds one entry to a user's append-only credibility
// history.
func (s *Store) AppendCredibilityChange(ctx context.Context, uid string, change types.CredibilityChange) error {
	_, err := s.Append(ctx, CredibilityHistoryPath(uid), change)
	return err
}

// ListCredibilityHistory returns the full credibility history of a user.
func (s *Store) ListCredibilityHistory(ctx context.Context, uid string) ([]types.CredibilityChange, error) {
	docs, err := s.ListPrefix(ctx, CredibilityHistoryPath(uid))
	if err != nil {
		return nil, err
	}
	changes := make([]types.CredibilityChange, 0, len(docs))
	for _, doc := range docs {
		var change types.CredibilityChange
		if err := json.Unmarshal(doc, &change); err != nil {
			continue
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// ListUserReportTracking returns the compact tracking rows of a user's
// submissions. These feed the spam and diminishing-returns checks without
// scanning the full reports tree.
func (s *Store) ListUserReportTracking(ctx context.Context, uid string) ([]types.ReportTrackingRow, error) {
	docs, err := s.ListPrefix(ctx, UserReportTrackingPrefix(uid))
	if err != nil {
		return nil, err
	}
	rows := make([]types.ReportTrackingRow, 0, len(docs))
	for id, doc := range docs {
		var row types.ReportTrackingRow
		if err := json.Unmarshal(doc, &row); err != nil {
			continue
		}
		if row.ReportID == "" {
			row.ReportID = id
		}
		rows = append(rows, row)
	}
	return rows, nil
}
