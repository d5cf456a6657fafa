package store

import "fmt"

// Document path layout. These helpers are the single place path strings are
// assembled so the layout in one location matches the store contents.
//
//	reports/{id}                             -> UserReport
//	users/{user_id}                          -> UserProfile
//	users/{user_id}/credibility_history/{k}  -> CredibilityChange (append-only)
//	user_reports/{user_id}/reports/{id}      -> ReportTrackingRow
//	user_alert_preferences/{user_id}         -> AlertPreferences
//	user_map_settings/{user_id}              -> MapSettings
//	user_notifications/{user_id}/alerts/{id} -> Notification
//	public_data_cache/{feed}/metadata        -> FeedMetadata
//	public_data_cache/{feed}/data            -> []DisasterEvent
//	ai_usage_tracking/hourly/{YYYY-MM-DD-HH} -> int counter
//	ai_analysis_cache/{sha256}               -> cached AI result
//	audit_logs/{operation_id}                -> AuditLog
//	safe_zones/{id}                          -> SafeZone

func ReportPath(id string) string { return "reports/" + id }

func UserPath(uid string) string { return "users/" + uid }

func CredibilityHistoryPath(uid string) string {
	return fmt.Sprintf("users/%s/credibility_history", uid)
}

func UserReportTrackingPath(uid, reportID string) string {
	return fmt.Sprintf("user_reports/%s/reports/%s", uid, reportID)
}

func UserReportTrackingPrefix(uid string) string {
	return fmt.Sprintf("user_reports/%s/reports", uid)
}

func AlertPreferencesPath(uid string) string { return "user_alert_preferences/" + uid }

func MapSettingsPath(uid string) string { return "user_map_settings/" + uid }

func NotificationPath(uid, alertID string) string {
	return fmt.Sprintf("user_notifications/%s/alerts/%s", uid, alertID)
}

func NotificationPrefix(uid string) string {
	return fmt.Sprintf("user_notifications/%s/alerts", uid)
}

func FeedMetadataPath(feed string) string {
	return fmt.Sprintf("public_data_cache/%s/metadata", feed)
}

func FeedDataPath(feed string) string {
	return fmt.Sprintf("public_data_cache/%s/data", feed)
}

func AIUsagePath(hourKey string) string { return "ai_usage_tracking/hourly/" + hourKey }

const AIUsagePrefix = "ai_usage_tracking/hourly"

func AICachePath(contentHash string) string { return "ai_analysis_cache/" + contentHash }

func AuditLogPath(operationID string) string { return "audit_logs/" + operationID }

func SafeZonePath(id string) string { return "safe_zones/" + id }

const SafeZonePrefix = "safe_zones"

const ReportPrefix = "reports"
