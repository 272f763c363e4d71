package domain

import "time"

// IncomingMessage is the payload of the `incoming` queue: one inbound chat
// message with its extracted text.
type IncomingMessage struct {
	From      string    `json:"from"`
	Name      string    `json:"name,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// OutgoingMessage is the payload of the `outgoing` queue.
type OutgoingMessage struct {
	To       string `json:"to"`
	Text     string `json:"text"`
	TicketID string `json:"ticketId,omitempty"`
}

// CreateTicketRequest is the payload of the `create-ticket` queue.
type CreateTicketRequest struct {
	PhoneNumber   string `json:"phoneNumber"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Category      string `json:"category,omitempty"`
	Sector        string `json:"sector,omitempty"`
	LocalTicketID string `json:"localTicketId,omitempty"`
}

// NotificationType enumerates notification message kinds.
type NotificationType string

const (
	NotifyTicketCreated   NotificationType = "ticket_created"
	NotifyTicketAssigned  NotificationType = "ticket_assigned"
	NotifyTicketUpdated   NotificationType = "ticket_updated"
	NotifyNewMessage      NotificationType = "new_message"
	NotifyTechnicianAlert NotificationType = "technician_alert"
	NotifyHumanRequested  NotificationType = "human_requested"
)

// Notification is the payload of the `notifications` queue.
type Notification struct {
	Type     NotificationType `json:"type"`
	TicketID string           `json:"ticketId"`
	UserID   string           `json:"userId,omitempty"`
	Payload  map[string]any   `json:"payload,omitempty"`
}
