package domain

import "time"

// AlertType enumerates alert categories raised by the pipeline.
type AlertType string

const (
	AlertNewTicket  AlertType = "NEW_TICKET"
	AlertSLAWarning AlertType = "SLA_WARNING"
	AlertEscalated  AlertType = "ESCALATED"
	AlertSLABreach  AlertType = "SLA_BREACH"
	AlertNewMessage AlertType = "NEW_MESSAGE"
)

// DedupWindow is the lookback window within which a second alert of the same
// (ticket, type) is suppressed. Types without a window never deduplicate.
func (t AlertType) DedupWindow() time.Duration {
	switch t {
	case AlertSLAWarning:
		return 2 * time.Hour
	case AlertEscalated:
		return 4 * time.Hour
	case AlertSLABreach:
		return 6 * time.Hour
	default:
		return 0
	}
}

// Alert is a persisted notification addressed to one technician.
type Alert struct {
	ID           string
	TicketID     string
	TechnicianID string
	Type         AlertType
	Message      string
	SentPush     bool
	SentChannel  bool
	ReadAt       *time.Time
	CreatedAt    time.Time
}
