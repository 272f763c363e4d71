package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-pipeline/internal/broker"
	"github.com/spec-kit/intake-pipeline/internal/domain"
	"github.com/spec-kit/intake-pipeline/internal/glpi"
	"github.com/spec-kit/intake-pipeline/internal/observability"
	"github.com/spec-kit/intake-pipeline/internal/repository"
)

// EscalationMonitor periodically measures every open exported ticket against
// its SLA deadline and escalates or alerts as thresholds are crossed.
type EscalationMonitor struct {
	tickets     repository.TicketRepository
	technicians repository.TechnicianRepository
	alerts      repository.AlertRepository
	ticketing   glpi.TicketingClient
	publisher   broker.Publisher
	interval    time.Duration
	metrics     *observability.Metrics
	logger      *zap.Logger

	running atomic.Bool
	now     func() time.Time
}

// NewEscalationMonitor builds the monitor.
func NewEscalationMonitor(tickets repository.TicketRepository, technicians repository.TechnicianRepository, alerts repository.AlertRepository, ticketing glpi.TicketingClient, publisher broker.Publisher, interval time.Duration, metrics *observability.Metrics, logger *zap.Logger) *EscalationMonitor {
	return &EscalationMonitor{
		tickets:     tickets,
		technicians: technicians,
		alerts:      alerts,
		ticketing:   ticketing,
		publisher:   publisher,
		interval:    interval,
		metrics:     metrics,
		logger:      logger.With(zap.String("component", "escalation-monitor")),
		now:         time.Now,
	}
}

// Run ticks until ctx is cancelled. A tick that is still running when the
// next one fires causes the new tick to be skipped, so passes never overlap.
func (m *EscalationMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.running.CompareAndSwap(false, true) {
				m.logger.Warn("previous pass still running; skipping tick")
				continue
			}
			m.RunPass(ctx)
			m.running.Store(false)
		}
	}
}

// RunPass evaluates every open exported ticket once.
func (m *EscalationMonitor) RunPass(ctx context.Context) {
	tickets, err := m.tickets.ListOpenWithExternalID(ctx)
	if err != nil {
		m.logger.Error("list open tickets", zap.Error(err))
		return
	}

	for i := range tickets {
		if ctx.Err() != nil {
			return
		}
		if err := m.evaluate(ctx, &tickets[i]); err != nil {
			m.logger.Error("evaluate ticket", zap.Error(err), zap.String("ticket_id", tickets[i].ID))
		}
	}
}

func (m *EscalationMonitor) evaluate(ctx context.Context, ticket *domain.Ticket) error {
	remote, err := m.ticketing.GetTicket(ctx, *ticket.ExternalID)
	if err != nil {
		return fmt.Errorf("fetch remote ticket %d: %w", *ticket.ExternalID, err)
	}

	created := remote.Date.Time
	if created.IsZero() {
		created = ticket.CreatedAt
	}
	deadline := remote.TimeToResolve.Time
	if deadline.IsZero() {
		// No SLA target set on the remote side.
		return nil
	}

	progress := Progress(created, deadline, m.now())

	// First match wins.
	switch {
	case progress >= 100:
		m.raiseAlert(ctx, ticket, domain.AlertSLABreach,
			fmt.Sprintf("SLA estourado para o chamado %s (%.0f%%).", ticket.ID, progress),
			"", domain.TierN3)
	case progress >= 95 && ticket.EscalationTier != domain.TierN3:
		return m.escalate(ctx, ticket, domain.TierN3, progress)
	case progress >= 85 && ticket.EscalationTier == domain.TierN1:
		return m.escalate(ctx, ticket, domain.TierN2, progress)
	case progress >= 75:
		target := ""
		if ticket.AssignedTechID != nil {
			target = *ticket.AssignedTechID
		}
		m.raiseAlert(ctx, ticket, domain.AlertSLAWarning,
			fmt.Sprintf("Chamado %s atingiu %.0f%% do prazo de SLA.", ticket.ID, progress),
			target, ticket.EscalationTier)
	}
	return nil
}

// Progress is the percentage of the allotted resolution time elapsed,
// clamped to [0, 100] and defined as 100 when deadline <= created.
func Progress(created, deadline, now time.Time) float64 {
	if !deadline.After(created) {
		return 100
	}
	elapsed := now.Sub(created).Seconds()
	total := deadline.Sub(created).Seconds()
	progress := elapsed / total * 100
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// escalate reassigns the ticket to the least-loaded eligible technician of
// the target tier. The remote mirror of the assignment is best-effort.
func (m *EscalationMonitor) escalate(ctx context.Context, ticket *domain.Ticket, target domain.EscalationTier, progress float64) error {
	candidates, err := m.technicians.ListAlertEligibleByTier(ctx, target)
	if err != nil {
		return fmt.Errorf("list %s technicians: %w", target, err)
	}
	if len(candidates) == 0 {
		m.logger.Warn("no eligible technicians for escalation",
			zap.String("ticket_id", ticket.ID), zap.String("tier", string(target)))
		return nil
	}

	chosen, err := m.leastLoaded(ctx, candidates)
	if err != nil {
		return err
	}

	if !ticket.EscalateTo(target, m.now()) {
		return nil
	}
	ticket.AssignedTechID = &chosen.ID
	if err := m.tickets.Update(ctx, ticket); err != nil {
		return fmt.Errorf("persist escalation: %w", err)
	}
	m.metrics.Inc(observability.MetricEscalations)

	if chosen.ExternalUserID != nil {
		if err := m.ticketing.AssignTicket(ctx, *ticket.ExternalID, *chosen.ExternalUserID); err != nil {
			m.logger.Warn("remote assignment mirror failed",
				zap.Error(err), zap.String("ticket_id", ticket.ID))
		}
	}

	m.raiseAlert(ctx, ticket, domain.AlertEscalated,
		fmt.Sprintf("Chamado %s escalado para %s (%.0f%% do SLA).", ticket.ID, target, progress),
		chosen.ID, target)
	return nil
}

func (m *EscalationMonitor) leastLoaded(ctx context.Context, candidates []domain.Technician) (*domain.Technician, error) {
	var chosen *domain.Technician
	best := -1
	for i := range candidates {
		count, err := m.tickets.CountOpenAssigned(ctx, candidates[i].ID)
		if err != nil {
			return nil, fmt.Errorf("count assigned tickets: %w", err)
		}
		if best < 0 || count < best {
			best = count
			chosen = &candidates[i]
		}
	}
	return chosen, nil
}

// raiseAlert publishes a technician alert unless one of the same
// (ticket, type) was already recorded within the type's dedup window.
func (m *EscalationMonitor) raiseAlert(ctx context.Context, ticket *domain.Ticket, alertType domain.AlertType, message, technicianID string, tier domain.EscalationTier) {
	if window := alertType.DedupWindow(); window > 0 {
		exists, err := m.alerts.ExistsSince(ctx, ticket.ID, alertType, m.now().Add(-window))
		if err != nil {
			m.logger.Error("alert dedup check", zap.Error(err), zap.String("ticket_id", ticket.ID))
			return
		}
		if exists {
			return
		}
	}

	notification := domain.Notification{
		Type:     domain.NotifyTechnicianAlert,
		TicketID: ticket.ID,
		UserID:   technicianID,
		Payload: map[string]any{
			"alertType": string(alertType),
			"message":   message,
			"tier":      string(tier),
		},
	}
	if err := m.publisher.Publish(ctx, broker.QueueNotifications, notification); err != nil {
		m.logger.Error("publish technician alert", zap.Error(err), zap.String("ticket_id", ticket.ID))
	}
}
