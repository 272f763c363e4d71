package dialog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/intake-pipeline/internal/broker"
	"github.com/spec-kit/intake-pipeline/internal/config"
	"github.com/spec-kit/intake-pipeline/internal/domain"
	"github.com/spec-kit/intake-pipeline/internal/observability"
	"github.com/spec-kit/intake-pipeline/internal/repository"
	"github.com/spec-kit/intake-pipeline/internal/session"
)

// Machine runs the scripted intake dialog. It owns the conversation session
// exclusively: every inbound message loads the session, applies one step and
// writes it back with a refreshed TTL.
type Machine struct {
	sessions  session.Store
	tickets   repository.TicketRepository
	publisher broker.Publisher
	cfg       config.DialogConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewMachine builds the state machine.
func NewMachine(sessions session.Store, tickets repository.TicketRepository, publisher broker.Publisher, cfg config.DialogConfig, metrics *observability.Metrics, logger *zap.Logger) *Machine {
	return &Machine{
		sessions:  sessions,
		tickets:   tickets,
		publisher: publisher,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "dialog")),
	}
}

// HandleIncoming processes one inbound chat message.
func (m *Machine) HandleIncoming(ctx context.Context, msg domain.IncomingMessage) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	sess, err := m.sessions.Get(ctx, msg.From)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			return err
		}
		return m.startConversation(ctx, msg)
	}

	if isCancel(text) {
		if err := m.sessions.Delete(ctx, msg.From); err != nil {
			return err
		}
		return m.reply(ctx, msg.From, replyCancelled, "")
	}

	return m.advance(ctx, sess, text)
}

// startConversation opens a new session, unless the identity already has a
// non-terminal ticket, in which case the requester gets a status reply and
// the assigned technician a new-message notification.
func (m *Machine) startConversation(ctx context.Context, msg domain.IncomingMessage) error {
	ticket, err := m.tickets.FindActiveByIdentity(ctx, msg.From)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if ticket != nil {
		m.notifyNewMessage(ctx, ticket, msg.Text)
		return m.reply(ctx, msg.From, activeTicketStatus(ticket), ticket.ID)
	}

	now := time.Now()
	sess := &domain.ConversationSession{
		Identity:    msg.From,
		DisplayName: msg.Name,
		Step:        domain.StepSectorSelect,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.sessions.Put(ctx, sess, m.cfg.ActiveTTL()); err != nil {
		return err
	}
	return m.reply(ctx, msg.From, greeting(sess.DisplayName), "")
}

func (m *Machine) advance(ctx context.Context, sess *domain.ConversationSession, text string) error {
	var replyText string

	switch sess.Step {
	case domain.StepSectorSelect:
		if idx, ok := menuChoice(text, len(Sectors)); ok {
			sess.Sector = Sectors[idx]
			sess.Step = domain.StepTypeSelect
			replyText = typeMenu()
		} else {
			replyText = replyInvalidOption + "\n\n" + sectorMenu()
		}

	case domain.StepTypeSelect:
		if idx, ok := menuChoice(text, len(RequestTypes)); ok {
			sess.RequestType = RequestTypes[idx]
			sess.Step = domain.StepLocation
			replyText = promptLocation
		} else {
			replyText = replyInvalidOption + "\n\n" + typeMenu()
		}

	case domain.StepLocation:
		sess.Location = text
		sess.Step = domain.StepEquipment
		replyText = promptEquipment

	case domain.StepEquipment:
		sess.Equipment = text
		sess.Step = domain.StepAssetTag
		replyText = promptAssetTag

	case domain.StepAssetTag:
		sess.AssetTag = text
		sess.Step = domain.StepProblemDesc
		replyText = promptProblem

	case domain.StepProblemDesc:
		if len([]rune(text)) < m.cfg.MinProblemLength {
			replyText = replyTooShort + "\n\n" + promptProblem
		} else {
			sess.ProblemDesc = text
			sess.Step = domain.StepConfirm
			replyText = confirmSummary(sess)
		}

	case domain.StepConfirm:
		return m.handleConfirm(ctx, sess, text)

	case domain.StepAwaitingAssignment:
		return m.handleAwaiting(ctx, sess, text)

	default:
		// Unknown step in a stored session; restart cleanly.
		sess.ResetSlots()
		sess.Step = domain.StepSectorSelect
		replyText = sectorMenu()
	}

	sess.UpdatedAt = time.Now()
	if err := m.sessions.Put(ctx, sess, m.cfg.ActiveTTL()); err != nil {
		return err
	}
	return m.reply(ctx, sess.Identity, replyText, "")
}

func (m *Machine) handleConfirm(ctx context.Context, sess *domain.ConversationSession, text string) error {
	switch strings.TrimSpace(text) {
	case "1":
		return m.confirm(ctx, sess)
	case "2":
		sess.ResetSlots()
		sess.Step = domain.StepSectorSelect
		sess.UpdatedAt = time.Now()
		if err := m.sessions.Put(ctx, sess, m.cfg.ActiveTTL()); err != nil {
			return err
		}
		return m.reply(ctx, sess.Identity, sectorMenu(), "")
	default:
		sess.UpdatedAt = time.Now()
		if err := m.sessions.Put(ctx, sess, m.cfg.ActiveTTL()); err != nil {
			return err
		}
		return m.reply(ctx, sess.Identity, replyInvalidOption+"\n\n"+confirmSummary(sess), "")
	}
}

// confirm persists the collected slots as a local NEW ticket, records its id
// on the session and only then publishes the creation request. A failed
// publish leaves the session at CONFIRM with the ticket id already recorded,
// so a retried "1" republishes for the same ticket instead of minting a
// second one.
func (m *Machine) confirm(ctx context.Context, sess *domain.ConversationSession) error {
	ticket, err := m.ticketForConfirm(ctx, sess)
	if err != nil {
		return err
	}

	request := domain.CreateTicketRequest{
		PhoneNumber:   sess.Identity,
		Title:         ticket.Title,
		Description:   ticket.Description,
		Category:      sess.RequestType,
		Sector:        sess.Sector,
		LocalTicketID: ticket.ID,
	}
	if err := m.publisher.Publish(ctx, broker.QueueCreateTicket, request); err != nil {
		m.logger.Error("publish create-ticket failed", zap.Error(err), zap.String("ticket_id", ticket.ID))
		return m.reply(ctx, sess.Identity, replyPublishFailed, ticket.ID)
	}

	sess.Step = domain.StepAwaitingAssignment
	sess.UpdatedAt = time.Now()
	if err := m.sessions.Put(ctx, sess, m.cfg.AwaitingTTL()); err != nil {
		return err
	}
	return m.reply(ctx, sess.Identity, ticketOpened(ticket.ID), ticket.ID)
}

// ticketForConfirm reuses the ticket a previous confirmation attempt already
// created, creating one only on the first attempt. The identity must never
// end up with two non-terminal tickets. The session is persisted with the new
// ticket id before the publish can fail.
func (m *Machine) ticketForConfirm(ctx context.Context, sess *domain.ConversationSession) (*domain.Ticket, error) {
	if sess.TicketID != "" {
		ticket, err := m.tickets.GetByID(ctx, sess.TicketID)
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	ticket, err := m.tickets.FindActiveByIdentity(ctx, sess.Identity)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	switch {
	case ticket == nil:
		ticket = &domain.Ticket{
			ChannelIdentity: sess.Identity,
			Status:          domain.TicketStatusNew,
			Sector:          sess.Sector,
			Priority:        domain.TicketPriorityMedium,
			EscalationTier:  domain.TierN1,
			Title:           sess.Sector + " - " + sess.RequestType,
			Description:     buildDescription(sess),
		}
		if err := m.tickets.Create(ctx, ticket); err != nil {
			return nil, err
		}
		m.metrics.Inc(observability.MetricTicketsCreated)
	case ticket.Status == domain.TicketStatusNew && ticket.ExternalID == nil:
		// Leftover of an earlier attempt whose publish never went through,
		// for example after a restart; refresh it with the current slots.
		ticket.Sector = sess.Sector
		ticket.Title = sess.Sector + " - " + sess.RequestType
		ticket.Description = buildDescription(sess)
		if err := m.tickets.Update(ctx, ticket); err != nil {
			return nil, err
		}
	}

	sess.TicketID = ticket.ID
	sess.UpdatedAt = time.Now()
	if err := m.sessions.Put(ctx, sess, m.cfg.ActiveTTL()); err != nil {
		return nil, err
	}
	return ticket, nil
}

// handleAwaiting answers status questions while the ticket waits for a
// technician and relays the message to whoever is assigned.
func (m *Machine) handleAwaiting(ctx context.Context, sess *domain.ConversationSession, text string) error {
	ticket, err := m.tickets.GetByID(ctx, sess.TicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Ticket vanished; drop the stale session and restart.
			_ = m.sessions.Delete(ctx, sess.Identity)
			return m.reply(ctx, sess.Identity, greeting(sess.DisplayName), "")
		}
		return err
	}
	if ticket.Status.IsTerminal() {
		if err := m.sessions.Delete(ctx, sess.Identity); err != nil {
			return err
		}
		return m.reply(ctx, sess.Identity, greeting(sess.DisplayName), "")
	}

	m.notifyNewMessage(ctx, ticket, text)
	sess.UpdatedAt = time.Now()
	if err := m.sessions.Put(ctx, sess, m.cfg.AwaitingTTL()); err != nil {
		return err
	}
	return m.reply(ctx, sess.Identity, activeTicketStatus(ticket), ticket.ID)
}

func (m *Machine) notifyNewMessage(ctx context.Context, ticket *domain.Ticket, text string) {
	notification := domain.Notification{
		Type:     domain.NotifyNewMessage,
		TicketID: ticket.ID,
		Payload:  map[string]any{"text": text, "from": ticket.ChannelIdentity},
	}
	if ticket.AssignedTechID != nil {
		notification.UserID = *ticket.AssignedTechID
	}
	if err := m.publisher.Publish(ctx, broker.QueueNotifications, notification); err != nil {
		m.logger.Warn("publish new-message notification", zap.Error(err), zap.String("ticket_id", ticket.ID))
	}
}

func (m *Machine) reply(ctx context.Context, identity, text, ticketID string) error {
	out := domain.OutgoingMessage{To: identity, Text: text, TicketID: ticketID}
	return m.publisher.Publish(ctx, broker.QueueOutgoing, out)
}

func menuChoice(text string, max int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n - 1, true
}

func buildDescription(sess *domain.ConversationSession) string {
	return "Problema: " + sess.ProblemDesc +
		"\nLocal: " + sess.Location +
		"\nEquipamento: " + sess.Equipment +
		"\nPatrimônio: " + sess.AssetTag +
		"\nSolicitante: " + displayOrIdentity(sess)
}

func displayOrIdentity(sess *domain.ConversationSession) string {
	if sess.DisplayName != "" {
		return sess.DisplayName
	}
	return sess.Identity
}
