package worker

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-pipeline/internal/broker"
	"github.com/spec-kit/intake-pipeline/internal/domain"
	"github.com/spec-kit/intake-pipeline/internal/observability"
)

func TestIntakeCreatesLocalAndExportsRemote(t *testing.T) {
	tickets := newFakeTicketRepo()
	ticketing := newFakeTicketing()
	publisher := &fakePublisher{}
	w := NewIntakeWorker(tickets, ticketing, publisher, observability.NewMetrics(), zap.NewNop())

	req := domain.CreateTicketRequest{
		PhoneNumber: "5511999990000",
		Title:       "TI - Computador",
		Description: "Monitor não liga",
		Sector:      "TI",
	}
	if err := w.Handle(context.Background(), mustJSON(req)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(ticketing.created) != 1 {
		t.Fatalf("expected 1 remote create, got %d", len(ticketing.created))
	}
	if ticketing.created[0].Name != req.Title {
		t.Errorf("remote title = %q, want %q", ticketing.created[0].Name, req.Title)
	}

	all, _ := tickets.ListOpenWithExternalID(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected 1 exported local ticket, got %d", len(all))
	}
	if all[0].Status != domain.TicketStatusNew {
		t.Errorf("local status = %s, want NEW", all[0].Status)
	}
	if all[0].EscalationTier != domain.TierN1 {
		t.Errorf("local tier = %s, want N1", all[0].EscalationTier)
	}

	outgoing := publisher.byQueue(broker.QueueOutgoing)
	if len(outgoing) != 1 {
		t.Fatalf("expected 1 requester confirmation, got %d", len(outgoing))
	}
	out := outgoing[0].payload.(domain.OutgoingMessage)
	if out.To != req.PhoneNumber {
		t.Errorf("confirmation addressed to %q, want %q", out.To, req.PhoneNumber)
	}
	if !strings.Contains(out.Text, "101") {
		t.Errorf("confirmation %q does not carry the external ticket number", out.Text)
	}

	notifications := publisher.byQueue(broker.QueueNotifications)
	if len(notifications) != 2 {
		t.Fatalf("expected ticket_created and ticket_updated notifications, got %d", len(notifications))
	}
}

func TestIntakeRedeliveryIsIdempotent(t *testing.T) {
	tickets := newFakeTicketRepo()
	ticketing := newFakeTicketing()
	publisher := &fakePublisher{}
	w := NewIntakeWorker(tickets, ticketing, publisher, observability.NewMetrics(), zap.NewNop())

	ticket := &domain.Ticket{
		ChannelIdentity: "5511999990000",
		Status:          domain.TicketStatusNew,
		Title:           "TI - Impressora",
		Description:     "Impressora atolando papel constantemente",
		EscalationTier:  domain.TierN1,
	}
	if err := tickets.Create(context.Background(), ticket); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	req := domain.CreateTicketRequest{LocalTicketID: ticket.ID, Title: ticket.Title, Description: ticket.Description}

	if err := w.Handle(context.Background(), mustJSON(req)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := w.Handle(context.Background(), mustJSON(req)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	if len(ticketing.created) != 1 {
		t.Fatalf("redelivery caused %d remote creates, want 1", len(ticketing.created))
	}
	stored, err := tickets.GetByID(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.ExternalID == nil || *stored.ExternalID != 101 {
		t.Errorf("external id = %v, want 101", stored.ExternalID)
	}
	if got := len(publisher.byQueue(broker.QueueOutgoing)); got != 1 {
		t.Errorf("redelivery sent %d requester confirmations, want 1", got)
	}
}

func TestIntakeNoLocalIDRedeliveryReusesTicket(t *testing.T) {
	tickets := newFakeTicketRepo()
	ticketing := newFakeTicketing()
	publisher := &fakePublisher{}
	w := NewIntakeWorker(tickets, ticketing, publisher, observability.NewMetrics(), zap.NewNop())

	// Requests from the direct intake endpoint carry no local ticket id.
	req := domain.CreateTicketRequest{
		PhoneNumber: "5511999990000",
		Title:       "TI - Sistema",
		Description: "ERP fora do ar",
	}
	if err := w.Handle(context.Background(), mustJSON(req)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := w.Handle(context.Background(), mustJSON(req)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	if got := len(tickets.tickets); got != 1 {
		t.Fatalf("redelivery created %d local tickets, want 1", got)
	}
	if got := len(ticketing.created); got != 1 {
		t.Fatalf("redelivery created %d remote tickets, want 1", got)
	}
	// One ticket_created plus one ticket_updated; no duplicates on redelivery.
	if got := len(publisher.byQueue(broker.QueueNotifications)); got != 2 {
		t.Errorf("notifications = %d, want 2", got)
	}
}

func TestIntakeUnknownLocalTicketFails(t *testing.T) {
	w := NewIntakeWorker(newFakeTicketRepo(), newFakeTicketing(), &fakePublisher{}, observability.NewMetrics(), zap.NewNop())

	req := domain.CreateTicketRequest{LocalTicketID: "t-missing", Title: "x", Description: "y"}
	if err := w.Handle(context.Background(), mustJSON(req)); err == nil {
		t.Fatal("expected error for unknown local ticket id")
	}
}

func TestIntakeRemoteFailureLeavesTicketUnexported(t *testing.T) {
	tickets := newFakeTicketRepo()
	ticketing := newFakeTicketing()
	ticketing.failCreate = true
	publisher := &fakePublisher{}
	w := NewIntakeWorker(tickets, ticketing, publisher, observability.NewMetrics(), zap.NewNop())

	req := domain.CreateTicketRequest{
		PhoneNumber: "5511999990000",
		Title:       "TI - Rede",
		Description: "Sem acesso à rede no setor inteiro",
	}
	if err := w.Handle(context.Background(), mustJSON(req)); err != nil {
		t.Fatalf("remote failure must not surface to the broker: %v", err)
	}

	exported, _ := tickets.ListOpenWithExternalID(context.Background())
	if len(exported) != 0 {
		t.Errorf("ticket gained an external id despite remote failure")
	}
	if got := len(publisher.byQueue(broker.QueueOutgoing)); got != 0 {
		t.Errorf("requester confirmed despite remote failure (%d messages)", got)
	}
}

func TestIntakeMalformedPayloadFails(t *testing.T) {
	w := NewIntakeWorker(newFakeTicketRepo(), newFakeTicketing(), &fakePublisher{}, observability.NewMetrics(), zap.NewNop())
	if err := w.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("expected unmarshal error")
	}
}
