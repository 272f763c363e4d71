package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-pipeline/internal/channel"
	"github.com/spec-kit/intake-pipeline/internal/domain"
	"github.com/spec-kit/intake-pipeline/internal/observability"
	"github.com/spec-kit/intake-pipeline/internal/repository"
)

// Broadcaster pushes a payload to live dashboard clients.
type Broadcaster interface {
	Broadcast(v any)
}

// NotificationFanout consumes the notifications queue, resolves alert
// targets and delivers to each: a persisted Alert row, a dashboard push and,
// for opted-in technicians with a channel address, a templated chat message.
// One target's failure never blocks the others.
type NotificationFanout struct {
	technicians repository.TechnicianRepository
	alerts      repository.AlertRepository
	hub         Broadcaster
	sender      channel.Sender
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewNotificationFanout builds the fanout.
func NewNotificationFanout(technicians repository.TechnicianRepository, alerts repository.AlertRepository, hub Broadcaster, sender channel.Sender, metrics *observability.Metrics, logger *zap.Logger) *NotificationFanout {
	return &NotificationFanout{
		technicians: technicians,
		alerts:      alerts,
		hub:         hub,
		sender:      sender,
		metrics:     metrics,
		logger:      logger.With(zap.String("component", "fanout")),
	}
}

// Handle processes one notification message.
func (f *NotificationFanout) Handle(ctx context.Context, payload []byte) error {
	var notification domain.Notification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return fmt.Errorf("unmarshal notification: %w", err)
	}

	alertType, message := f.describe(notification)
	if alertType == "" {
		// Dashboard-only notifications carry no technician alert.
		f.hub.Broadcast(notification)
		return nil
	}

	targets, err := f.resolveTargets(ctx, notification)
	if err != nil {
		return err
	}

	for _, tech := range targets {
		f.deliver(ctx, notification.TicketID, tech, alertType, message)
	}
	return nil
}

// describe maps a notification onto an alert type and message text.
func (f *NotificationFanout) describe(n domain.Notification) (domain.AlertType, string) {
	switch n.Type {
	case domain.NotifyTicketCreated:
		return domain.AlertNewTicket,
			fmt.Sprintf("Novo chamado aberto: %s (%v)", n.TicketID, n.Payload["title"])
	case domain.NotifyTicketAssigned:
		return domain.AlertNewTicket,
			fmt.Sprintf("Chamado %s atribuído a você.", n.TicketID)
	case domain.NotifyNewMessage, domain.NotifyHumanRequested:
		return domain.AlertNewMessage,
			fmt.Sprintf("Nova mensagem no chamado %s: %v", n.TicketID, n.Payload["text"])
	case domain.NotifyTechnicianAlert:
		alertType := domain.AlertType(stringPayload(n.Payload, "alertType"))
		message := stringPayload(n.Payload, "message")
		if message == "" {
			message = fmt.Sprintf("Alerta para o chamado %s.", n.TicketID)
		}
		return alertType, message
	default:
		// ticket_updated and unknown types go to the dashboard only.
		return "", ""
	}
}

// resolveTargets picks the technicians for the notification: the explicit
// one when set, otherwise every active alert-eligible technician of the
// relevant tier.
func (f *NotificationFanout) resolveTargets(ctx context.Context, n domain.Notification) ([]domain.Technician, error) {
	if n.UserID != "" {
		tech, err := f.technicians.GetByID(ctx, n.UserID)
		if err != nil {
			return nil, fmt.Errorf("resolve technician %s: %w", n.UserID, err)
		}
		return []domain.Technician{*tech}, nil
	}

	switch n.Type {
	case domain.NotifyTicketCreated:
		return f.technicians.ListAlertEligibleByTier(ctx, domain.TierN1)
	case domain.NotifyTechnicianAlert:
		if tier := domain.EscalationTier(stringPayload(n.Payload, "tier")); tier != "" {
			return f.technicians.ListAlertEligibleByTier(ctx, tier)
		}
		return f.technicians.ListAlertEligible(ctx)
	default:
		return f.technicians.ListAlertEligible(ctx)
	}
}

// deliver handles one target. Errors are logged and swallowed so the
// remaining targets still get their delivery attempts.
func (f *NotificationFanout) deliver(ctx context.Context, ticketID string, tech domain.Technician, alertType domain.AlertType, message string) {
	alert := &domain.Alert{
		TicketID:     ticketID,
		TechnicianID: tech.ID,
		Type:         alertType,
		Message:      message,
		SentPush:     true,
	}
	if err := f.alerts.Create(ctx, alert); err != nil {
		f.logger.Error("persist alert", zap.Error(err),
			zap.String("ticket_id", ticketID), zap.String("technician_id", tech.ID))
		return
	}
	f.metrics.Inc(observability.MetricAlertsSent)

	f.hub.Broadcast(alert)

	if tech.ChannelAddress == "" || !tech.AlertsOptIn {
		return
	}
	if err := f.sender.SendMessage(ctx, tech.ChannelAddress, channelText(alertType, message)); err != nil {
		f.logger.Warn("channel alert delivery failed", zap.Error(err),
			zap.String("technician_id", tech.ID))
		return
	}
	if err := f.alerts.MarkChannelSent(ctx, alert.ID); err != nil {
		f.logger.Warn("mark channel sent", zap.Error(err), zap.String("alert_id", alert.ID))
	}
}

// channelText renders the type-specific chat template.
func channelText(alertType domain.AlertType, message string) string {
	switch alertType {
	case domain.AlertNewTicket:
		return "🆕 " + message
	case domain.AlertSLAWarning:
		return "⚠️ " + message
	case domain.AlertEscalated:
		return "📈 " + message
	case domain.AlertSLABreach:
		return "🚨 " + message
	case domain.AlertNewMessage:
		return "💬 " + message
	default:
		return message
	}
}

func stringPayload(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
