package domain

import "time"

// EscalationTier is the technician skill level used to route escalations.
type EscalationTier string

const (
	TierN1 EscalationTier = "N1"
	TierN2 EscalationTier = "N2"
	TierN3 EscalationTier = "N3"
)

// Rank orders tiers so escalation can only move upward. Unknown tiers rank
// below N1 and therefore never win a comparison.
func (t EscalationTier) Rank() int {
	switch t {
	case TierN1:
		return 1
	case TierN2:
		return 2
	case TierN3:
		return 3
	default:
		return 0
	}
}

// Technician models a support technician eligible for assignment and alerts.
type Technician struct {
	ID             string
	Name           string
	ExternalUserID *int
	ChannelAddress string
	Tier           EscalationTier
	Active         bool
	AlertsOptIn    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AlertEligible reports whether the technician should receive alerts at all.
func (t Technician) AlertEligible() bool {
	return t.Active && t.AlertsOptIn
}
