package glpi

import (
	"strings"
	"time"

	"github.com/spec-kit/intake-pipeline/internal/domain"
)

// GLPI status/urgency/type enumerations are small integers defined by the
// remote system.
const (
	StatusNew      = 1
	StatusAssigned = 2
	StatusPlanned  = 3
	StatusWaiting  = 4
	StatusSolved   = 5
	StatusClosed   = 6

	UrgencyLow    = 2
	UrgencyMedium = 3
	UrgencyHigh   = 4
	UrgencyMajor  = 5

	TypeIncident = 1
	TypeRequest  = 2
)

// StatusFromLocal maps a local lifecycle status to the remote enumeration.
func StatusFromLocal(status domain.TicketStatus) int {
	switch status {
	case domain.TicketStatusNew:
		return StatusNew
	case domain.TicketStatusAssigned, domain.TicketStatusInProgress:
		return StatusAssigned
	case domain.TicketStatusWaitingClient:
		return StatusWaiting
	case domain.TicketStatusResolved:
		return StatusSolved
	case domain.TicketStatusClosed, domain.TicketStatusCancelled:
		return StatusClosed
	default:
		return StatusNew
	}
}

// UrgencyFromPriority maps a local priority to the remote urgency scale.
func UrgencyFromPriority(priority domain.TicketPriority) int {
	switch priority {
	case domain.TicketPriorityLow:
		return UrgencyLow
	case domain.TicketPriorityHigh:
		return UrgencyHigh
	case domain.TicketPriorityUrgent:
		return UrgencyMajor
	default:
		return UrgencyMedium
	}
}

const remoteTimeLayout = "2006-01-02 15:04:05"

// RemoteTime parses the remote system's datetime format.
type RemoteTime struct {
	time.Time
}

func (t *RemoteTime) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(remoteTimeLayout, raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// RemoteTicket is the remote representation consumed by the monitor.
type RemoteTicket struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	Status        int        `json:"status"`
	Urgency       int        `json:"urgency"`
	Date          RemoteTime `json:"date"`
	TimeToResolve RemoteTime `json:"time_to_resolve"`
	AssignedUser  int        `json:"users_id_recipient"`
}

// CreateTicketInput carries the fields sent on ticket creation. Zero values
// fall back to the client defaults (status=new, urgency=medium,
// type=incident).
type CreateTicketInput struct {
	Name     string
	Content  string
	Status   int
	Urgency  int
	Type     int
	Category string
}

// Followup is a ticket followup note.
type Followup struct {
	Content   string
	IsPrivate bool
}

// SearchCriterion is one criteria entry for the remote search endpoint.
type SearchCriterion struct {
	Field      int
	SearchType string
	Value      string
}

// Group is a remote assignment group.
type Group struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// User is a remote user account.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	IsActive int    `json:"is_active"`
}
