package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew           TicketStatus = "NEW"
	TicketStatusAssigned      TicketStatus = "ASSIGNED"
	TicketStatusInProgress    TicketStatus = "IN_PROGRESS"
	TicketStatusWaitingClient TicketStatus = "WAITING_CLIENT"
	TicketStatusResolved      TicketStatus = "RESOLVED"
	TicketStatusClosed        TicketStatus = "CLOSED"
	TicketStatusCancelled     TicketStatus = "CANCELLED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Ticket is the aggregate for support requests flowing through the pipeline.
type Ticket struct {
	ID              string
	ChannelIdentity string
	ExternalID      *int
	Status          TicketStatus
	Sector          string
	Priority        TicketPriority
	EscalationTier  EscalationTier
	AssignedTechID  *string
	Title           string
	Description     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	EscalatedAt     *time.Time
	ClosedAt        *time.Time
}

// EscalateTo raises the ticket to the target tier. The tier is monotonically
// non-decreasing: a target at or below the current tier is ignored and the
// method reports false.
func (t *Ticket) EscalateTo(tier EscalationTier, at time.Time) bool {
	if tier.Rank() <= t.EscalationTier.Rank() {
		return false
	}
	t.EscalationTier = tier
	t.EscalatedAt = &at
	if t.Status == TicketStatusNew {
		t.Status = TicketStatusAssigned
	}
	return true
}
