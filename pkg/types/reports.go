package types

import (
	"fmt"
	"time"
)

// =============================================================================
// USER REPORTS
// =============================================================================

// AIAnalysisStatus tracks the two-phase enhancement pipeline on a report.
type AIAnalysisStatus string

const (
	AIStatusPending       AIAnalysisStatus = "pending"
	AIStatusProcessing    AIAnalysisStatus = "processing"
	AIStatusCompleted     AIAnalysisStatus = "completed"
	AIStatusFailed        AIAnalysisStatus = "failed"
	AIStatusNotApplicable AIAnalysisStatus = "not_applicable"
)

// Terminal reports whether the status admits no further transitions.
func (s AIAnalysisStatus) Terminal() bool {
	switch s {
	case AIStatusCompleted, AIStatusFailed, AIStatusNotApplicable:
		return true
	}
	return false
}

// UserReport is a DisasterEvent submitted through the reports API, plus the
// submission metadata the fusion pipeline needs.
//
// A report with an empty UserID is a legacy anonymous report: it has no owner
// and remains deletable by anyone for backward compatibility.
type UserReport struct {
	DisasterEvent

	UserID                      string           `json:"user_id,omitempty"`
	UserCredibilityAtSubmission *int             `json:"user_credibility_at_submission,omitempty"`
	AIAnalysisStatus            AIAnalysisStatus `json:"ai_analysis_status"`
	AIFailureReason             string           `json:"ai_failure_reason,omitempty"`
	UpdatedAt                   *time.Time       `json:"updated_at,omitempty"`
	UpdatedByAdmin              bool             `json:"updated_by_admin,omitempty"`

	// Submission-only signals consumed by the confidence scorer.
	RecaptchaScore     *float64 `json:"recaptcha_score,omitempty"`
	UserDistanceMi     *float64 `json:"user_distance_mi,omitempty"`
	AffectedPopulation *int     `json:"affected_population,omitempty"`

	// SubmissionCredibilityDelta records the credibility delta applied when
	// the report was accepted, so owner deletion can invert it exactly.
	SubmissionCredibilityDelta *int `json:"submission_credibility_delta,omitempty"`
}

// OwnedBy reports whether the report is owned by uid or has no owner at all
// (a legacy report). It does not apply the admin rules of the report service.
func (r *UserReport) OwnedBy(uid string) bool {
	return r.UserID == "" || r.UserID == uid
}

// =============================================================================
// USER PROFILES AND CREDIBILITY
// =============================================================================

// CredibilityLevel is the reputation band of a user.
type CredibilityLevel string

const (
	LevelExpert     CredibilityLevel = "Expert"
	LevelVeteran    CredibilityLevel = "Veteran"
	LevelTrusted    CredibilityLevel = "Trusted"
	LevelNeutral    CredibilityLevel = "Neutral"
	LevelCaution    CredibilityLevel = "Caution"
	LevelUnreliable CredibilityLevel = "Unreliable"
)

// CredibilityLevelFor maps a 0-100 score onto its band.
func CredibilityLevelFor(score int) CredibilityLevel {
	switch {
	case score >= 90:
		return LevelExpert
	case score >= 75:
		return LevelVeteran
	case score >= 60:
		return LevelTrusted
	case score >= 50:
		return LevelNeutral
	case score >= 30:
		return LevelCaution
	default:
		return LevelUnreliable
	}
}

// ClampCredibility bounds a score to the valid [0,100] range.
func ClampCredibility(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// UserProfile is the stored record for an authenticated user.
type UserProfile struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`

	CredibilityScore int              `json:"credibility_score"`
	CredibilityLevel CredibilityLevel `json:"credibility_level"`

	TotalReports        int        `json:"total_reports"`
	SuccessfulReports   int        `json:"successful_reports"`
	FlaggedReports      int        `json:"flagged_reports"`
	LastReportTimestamp *time.Time `json:"last_report_timestamp,omitempty"`
}

// Validate enforces profile invariants on every mutation.
func (p *UserProfile) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if p.CredibilityScore < 0 || p.CredibilityScore > 100 {
		return fmt.Errorf("credibility_score %d out of range [0,100]", p.CredibilityScore)
	}
	if p.CredibilityLevel != CredibilityLevelFor(p.CredibilityScore) {
		return fmt.Errorf("credibility_level %q inconsistent with score %d", p.CredibilityLevel, p.CredibilityScore)
	}
	return nil
}

// CredibilityChange is one append-only history entry.
type CredibilityChange struct {
	Timestamp time.Time `json:"timestamp"`
	OldScore  int       `json:"old_score"`
	NewScore  int       `json:"new_score"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
}

// ReportTrackingRow is the compact per-user row written alongside each report
// so spam and diminishing-returns checks never scan the full reports tree.
type ReportTrackingRow struct {
	ReportID        string    `json:"report_id"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	Timestamp       time.Time `json:"timestamp"`
	ConfidenceScore float64   `json:"confidence_score"`
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditLog records one admin operation so crashed bulk operations remain
// detectable.
type AuditLog struct {
	OperationID string     `json:"operation_id"`
	Operation   string     `json:"operation"`
	RequestedBy string     `json:"requested_by"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	Detail      string     `json:"detail,omitempty"`
	DeletedIDs  []string   `json:"deleted_ids,omitempty"`
	FailedIDs   []string   `json:"failed_ids,omitempty"`
}
