package domain

import "time"

// DialogStep enumerates the states of the intake dialog script.
type DialogStep string

const (
	StepInit                DialogStep = "INIT"
	StepSectorSelect        DialogStep = "SECTOR_SELECT"
	StepTypeSelect          DialogStep = "TYPE_SELECT"
	StepLocation            DialogStep = "LOCATION"
	StepEquipment           DialogStep = "EQUIPMENT"
	StepAssetTag            DialogStep = "ASSET_TAG"
	StepProblemDesc         DialogStep = "PROBLEM_DESC"
	StepConfirm             DialogStep = "CONFIRM"
	StepAwaitingAssignment  DialogStep = "AWAITING_ASSIGNMENT"
	StepCancelled           DialogStep = "CANCELLED"
)

// ConversationSession is the per-conversation dialog state, keyed by channel
// identity. One active session per identity.
type ConversationSession struct {
	Identity    string     `json:"identity"`
	DisplayName string     `json:"display_name,omitempty"`
	Step        DialogStep `json:"step"`

	// Collected slots.
	Sector      string `json:"sector,omitempty"`
	RequestType string `json:"request_type,omitempty"`
	Location    string `json:"location,omitempty"`
	Equipment   string `json:"equipment,omitempty"`
	AssetTag    string `json:"asset_tag,omitempty"`
	ProblemDesc string `json:"problem_desc,omitempty"`

	TicketID  string    `json:"ticket_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResetSlots clears collected fields for a dialog restart, preserving the
// requester's display name.
func (s *ConversationSession) ResetSlots() {
	s.Sector = ""
	s.RequestType = ""
	s.Location = ""
	s.Equipment = ""
	s.AssetTag = ""
	s.ProblemDesc = ""
	s.TicketID = ""
}
