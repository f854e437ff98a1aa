package models

import "time"

// AlertType classifies what a Proactive Monitor scanner detected.
type AlertType string

const (
	AlertStaleSession       AlertType = "stale_session"
	AlertUnansweredQuestion AlertType = "unanswered_question"
	AlertFailedTask         AlertType = "failed_task"
	AlertSystemHealth       AlertType = "system_health"
	AlertFollowUp           AlertType = "follow_up"
)

// AlertSeverity ranks an Alert for display/triage purposes.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is produced by a Proactive Monitor scanner.
type Alert struct {
	Type       AlertType      `json:"type"`
	Severity   AlertSeverity  `json:"severity"`
	Message    string         `json:"message"`
	DetectedAt time.Time      `json:"detected_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
