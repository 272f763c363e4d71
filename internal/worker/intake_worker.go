package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/intake-pipeline/internal/broker"
	"github.com/spec-kit/intake-pipeline/internal/domain"
	"github.com/spec-kit/intake-pipeline/internal/glpi"
	"github.com/spec-kit/intake-pipeline/internal/observability"
	"github.com/spec-kit/intake-pipeline/internal/repository"
)

// IntakeWorker consumes create-ticket requests and exports them to the
// external ticketing system. The handler is idempotent: a redelivered
// request whose ticket already carries an external id is a no-op.
type IntakeWorker struct {
	tickets   repository.TicketRepository
	ticketing glpi.TicketingClient
	publisher broker.Publisher
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewIntakeWorker builds the worker.
func NewIntakeWorker(tickets repository.TicketRepository, ticketing glpi.TicketingClient, publisher broker.Publisher, metrics *observability.Metrics, logger *zap.Logger) *IntakeWorker {
	return &IntakeWorker{
		tickets:   tickets,
		ticketing: ticketing,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "intake-worker")),
	}
}

// Handle processes one create-ticket message.
func (w *IntakeWorker) Handle(ctx context.Context, payload []byte) error {
	var req domain.CreateTicketRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("unmarshal create-ticket request: %w", err)
	}

	ticket, err := w.localTicket(ctx, req)
	if err != nil {
		return err
	}

	if ticket.ExternalID != nil {
		// Duplicate delivery; the remote ticket already exists.
		w.logger.Info("ticket already exported",
			zap.String("ticket_id", ticket.ID), zap.Int("external_id", *ticket.ExternalID))
		return nil
	}

	input := glpi.InputFromTicket(ticket)
	input.Category = req.Category
	externalID, err := w.ticketing.CreateTicket(ctx, input)
	if err != nil {
		// The local ticket stays without an external id; a later redelivery
		// or a reconciliation pass picks it up.
		w.logger.Error("remote ticket creation failed",
			zap.Error(err), zap.String("ticket_id", ticket.ID))
		return nil
	}

	updated, err := w.tickets.SetExternalID(ctx, ticket.ID, externalID)
	if err != nil {
		return fmt.Errorf("persist external id: %w", err)
	}
	if !updated {
		// A concurrent delivery won the race; keep its external id.
		w.logger.Warn("external id already set; keeping existing",
			zap.String("ticket_id", ticket.ID), zap.Int("discarded_external_id", externalID))
		return nil
	}
	w.metrics.Inc(observability.MetricTicketsExported)

	w.publishNotification(ctx, domain.Notification{
		Type:     domain.NotifyTicketUpdated,
		TicketID: ticket.ID,
		Payload:  map[string]any{"externalId": externalID},
	})
	w.confirmToRequester(ctx, ticket, externalID)
	return nil
}

// localTicket resolves or creates the local record for the request.
// Delivery is at-least-once, so a request without a local id must not create
// a second ticket when the identity already has a non-terminal one.
func (w *IntakeWorker) localTicket(ctx context.Context, req domain.CreateTicketRequest) (*domain.Ticket, error) {
	if req.LocalTicketID != "" {
		ticket, err := w.tickets.GetByID(ctx, req.LocalTicketID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("local ticket %s not found", req.LocalTicketID)
			}
			return nil, err
		}
		return ticket, nil
	}

	if req.PhoneNumber != "" {
		ticket, err := w.tickets.FindActiveByIdentity(ctx, req.PhoneNumber)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if ticket != nil {
			w.logger.Info("reusing active ticket for redelivered request",
				zap.String("ticket_id", ticket.ID), zap.String("identity", req.PhoneNumber))
			return ticket, nil
		}
	}

	ticket := &domain.Ticket{
		ChannelIdentity: req.PhoneNumber,
		Status:          domain.TicketStatusNew,
		Sector:          req.Sector,
		Priority:        domain.TicketPriorityMedium,
		EscalationTier:  domain.TierN1,
		Title:           req.Title,
		Description:     req.Description,
	}
	if err := w.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create local ticket: %w", err)
	}
	w.metrics.Inc(observability.MetricTicketsCreated)

	w.publishNotification(ctx, domain.Notification{
		Type:     domain.NotifyTicketCreated,
		TicketID: ticket.ID,
		Payload:  map[string]any{"title": ticket.Title, "sector": ticket.Sector},
	})
	return ticket, nil
}

func (w *IntakeWorker) publishNotification(ctx context.Context, notification domain.Notification) {
	if err := w.publisher.Publish(ctx, broker.QueueNotifications, notification); err != nil {
		w.logger.Warn("publish notification", zap.Error(err), zap.String("ticket_id", notification.TicketID))
	}
}

func (w *IntakeWorker) confirmToRequester(ctx context.Context, ticket *domain.Ticket, externalID int) {
	if ticket.ChannelIdentity == "" {
		return
	}
	out := domain.OutgoingMessage{
		To:       ticket.ChannelIdentity,
		Text:     fmt.Sprintf("Seu chamado foi registrado no sistema de suporte com o número %d.", externalID),
		TicketID: ticket.ID,
	}
	if err := w.publisher.Publish(ctx, broker.QueueOutgoing, out); err != nil {
		w.logger.Warn("publish requester confirmation", zap.Error(err), zap.String("ticket_id", ticket.ID))
	}
}
