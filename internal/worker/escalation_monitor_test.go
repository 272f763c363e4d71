package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-pipeline/internal/broker"
	"github.com/spec-kit/intake-pipeline/internal/domain"
	"github.com/spec-kit/intake-pipeline/internal/glpi"
	"github.com/spec-kit/intake-pipeline/internal/observability"
)

func TestProgress(t *testing.T) {
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	deadline := created.Add(10 * time.Hour)

	cases := []struct {
		name string
		now  time.Time
		want float64
	}{
		{"before created clamps to zero", created.Add(-time.Hour), 0},
		{"at created", created, 0},
		{"halfway", created.Add(5 * time.Hour), 50},
		{"at deadline", deadline, 100},
		{"past deadline clamps to hundred", deadline.Add(3 * time.Hour), 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Progress(created, deadline, tc.now); got != tc.want {
				t.Errorf("Progress = %.2f, want %.2f", got, tc.want)
			}
		})
	}
}

func TestProgressDeadlineBeforeCreated(t *testing.T) {
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if got := Progress(created, created, created); got != 100 {
		t.Errorf("deadline == created: Progress = %.2f, want 100", got)
	}
	if got := Progress(created, created.Add(-time.Minute), created); got != 100 {
		t.Errorf("deadline < created: Progress = %.2f, want 100", got)
	}
}

// monitorFixture wires a monitor over fakes with one exported ticket whose
// SLA progress is controlled by the pinned clock.
type monitorFixture struct {
	monitor   *EscalationMonitor
	tickets   *fakeTicketRepo
	techs     *fakeTechRepo
	alerts    *fakeAlertRepo
	ticketing *fakeTicketing
	publisher *fakePublisher
	ticket    *domain.Ticket
	created   time.Time
}

func newMonitorFixture(t *testing.T, tier domain.EscalationTier, technicians []domain.Technician) *monitorFixture {
	t.Helper()
	f := &monitorFixture{
		tickets:   newFakeTicketRepo(),
		techs:     &fakeTechRepo{technicians: technicians},
		alerts:    newFakeAlertRepo(),
		ticketing: newFakeTicketing(),
		publisher: &fakePublisher{},
		created:   time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}

	f.ticket = &domain.Ticket{
		ChannelIdentity: "5511999990000",
		Status:          domain.TicketStatusAssigned,
		EscalationTier:  tier,
		Title:           "TI - Rede",
		Description:     "Switch do andar caiu",
	}
	if err := f.tickets.Create(context.Background(), f.ticket); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	externalID := 900
	if ok, err := f.tickets.SetExternalID(context.Background(), f.ticket.ID, externalID); err != nil || !ok {
		t.Fatalf("seed external id: ok=%v err=%v", ok, err)
	}
	f.ticketing.remote[externalID] = &glpi.RemoteTicket{
		ID:            externalID,
		Date:          glpi.RemoteTime{Time: f.created},
		TimeToResolve: glpi.RemoteTime{Time: f.created.Add(10 * time.Hour)},
	}

	f.monitor = NewEscalationMonitor(f.tickets, f.techs, f.alerts, f.ticketing, f.publisher,
		time.Minute, observability.NewMetrics(), zap.NewNop())
	return f
}

// atProgress pins the clock so the fixture ticket sits at the given percent
// of its 10 hour SLA window.
func (f *monitorFixture) atProgress(percent float64) {
	offset := time.Duration(float64(10*time.Hour) * percent / 100)
	now := f.created.Add(offset)
	f.monitor.now = func() time.Time { return now }
}

func (f *monitorFixture) storedTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	stored, err := f.tickets.GetByID(context.Background(), f.ticket.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return stored
}

func techN(id string, tier domain.EscalationTier) domain.Technician {
	return domain.Technician{ID: id, Name: id, Tier: tier, Active: true, AlertsOptIn: true}
}

func TestMonitorWarningAt75(t *testing.T) {
	f := newMonitorFixture(t, domain.TierN1, []domain.Technician{techN("n1-a", domain.TierN1)})
	f.atProgress(78)

	f.monitor.RunPass(context.Background())

	alerts := f.publisher.byQueue(broker.QueueNotifications)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert notification, got %d", len(alerts))
	}
	n := alerts[0].payload.(domain.Notification)
	if n.Payload["alertType"] != string(domain.AlertSLAWarning) {
		t.Errorf("alert type = %v, want SLA_WARNING", n.Payload["alertType"])
	}
	if f.storedTicket(t).EscalationTier != domain.TierN1 {
		t.Error("warning must not change the escalation tier")
	}
}

func TestMonitorEscalatesN1ToN2At85(t *testing.T) {
	f := newMonitorFixture(t, domain.TierN1, []domain.Technician{techN("n2-a", domain.TierN2)})
	f.atProgress(88)

	f.monitor.RunPass(context.Background())

	stored := f.storedTicket(t)
	if stored.EscalationTier != domain.TierN2 {
		t.Fatalf("tier = %s, want N2", stored.EscalationTier)
	}
	if stored.AssignedTechID == nil || *stored.AssignedTechID != "n2-a" {
		t.Errorf("assigned = %v, want n2-a", stored.AssignedTechID)
	}

	alerts := f.publisher.byQueue(broker.QueueNotifications)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 escalation alert, got %d", len(alerts))
	}
	n := alerts[0].payload.(domain.Notification)
	if n.Payload["alertType"] != string(domain.AlertEscalated) {
		t.Errorf("alert type = %v, want ESCALATED", n.Payload["alertType"])
	}
}

func TestMonitorEscalatesToN3At95(t *testing.T) {
	f := newMonitorFixture(t, domain.TierN2, []domain.Technician{techN("n3-a", domain.TierN3)})
	f.atProgress(96)

	f.monitor.RunPass(context.Background())

	if got := f.storedTicket(t).EscalationTier; got != domain.TierN3 {
		t.Fatalf("tier = %s, want N3", got)
	}
}

func TestMonitorTierNeverDecreases(t *testing.T) {
	// A ticket already at N3 sitting in the 85-95 band must stay at N3.
	f := newMonitorFixture(t, domain.TierN3, []domain.Technician{techN("n2-a", domain.TierN2)})
	f.atProgress(90)

	f.monitor.RunPass(context.Background())

	if got := f.storedTicket(t).EscalationTier; got != domain.TierN3 {
		t.Fatalf("tier moved from N3 to %s", got)
	}
	alerts := f.publisher.byQueue(broker.QueueNotifications)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 warning alert, got %d", len(alerts))
	}
	n := alerts[0].payload.(domain.Notification)
	if n.Payload["alertType"] != string(domain.AlertSLAWarning) {
		t.Errorf("alert type = %v, want SLA_WARNING", n.Payload["alertType"])
	}
}

func TestMonitorBreachAt100(t *testing.T) {
	f := newMonitorFixture(t, domain.TierN3, []domain.Technician{techN("n3-a", domain.TierN3)})
	f.atProgress(120)

	f.monitor.RunPass(context.Background())

	alerts := f.publisher.byQueue(broker.QueueNotifications)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 breach alert, got %d", len(alerts))
	}
	n := alerts[0].payload.(domain.Notification)
	if n.Payload["alertType"] != string(domain.AlertSLABreach) {
		t.Errorf("alert type = %v, want SLA_BREACH", n.Payload["alertType"])
	}
}

func TestMonitorBreachDeduplicates(t *testing.T) {
	f := newMonitorFixture(t, domain.TierN3, nil)
	f.atProgress(110)

	now := f.monitor.now()
	f.alerts.alerts = append(f.alerts.alerts, domain.Alert{
		TicketID:  f.ticket.ID,
		Type:      domain.AlertSLABreach,
		CreatedAt: now.Add(-time.Hour),
	})

	f.monitor.RunPass(context.Background())

	if got := len(f.publisher.byQueue(broker.QueueNotifications)); got != 0 {
		t.Fatalf("breach within the 6h window re-alerted (%d notifications)", got)
	}

	// A breach recorded outside the window no longer suppresses.
	f.alerts.alerts[len(f.alerts.alerts)-1].CreatedAt = now.Add(-7 * time.Hour)
	f.monitor.RunPass(context.Background())
	if got := len(f.publisher.byQueue(broker.QueueNotifications)); got != 1 {
		t.Fatalf("expected 1 alert after the window expired, got %d", got)
	}
}

func TestMonitorPicksLeastLoadedTechnician(t *testing.T) {
	busyUser, freeUser := 71, 72
	busy := techN("n2-busy", domain.TierN2)
	busy.ExternalUserID = &busyUser
	free := techN("n2-free", domain.TierN2)
	free.ExternalUserID = &freeUser
	f := newMonitorFixture(t, domain.TierN1, []domain.Technician{busy, free})
	f.tickets.counts["n2-busy"] = 5
	f.tickets.counts["n2-free"] = 1
	f.atProgress(88)

	f.monitor.RunPass(context.Background())

	stored := f.storedTicket(t)
	if stored.AssignedTechID == nil || *stored.AssignedTechID != "n2-free" {
		t.Fatalf("assigned = %v, want n2-free", stored.AssignedTechID)
	}
	if fields, ok := f.ticketing.updates[900]; !ok {
		t.Error("remote assignment was not mirrored")
	} else if fields["status"] != glpi.StatusAssigned {
		t.Errorf("remote status = %v, want %d", fields["status"], glpi.StatusAssigned)
	}
}

func TestMonitorNoEligibleTechniciansLeavesTicket(t *testing.T) {
	f := newMonitorFixture(t, domain.TierN1, nil)
	f.atProgress(88)

	f.monitor.RunPass(context.Background())

	if got := f.storedTicket(t).EscalationTier; got != domain.TierN1 {
		t.Fatalf("tier = %s, want N1 untouched", got)
	}
}

func TestMonitorRemoteMirrorFailureKeepsLocalEscalation(t *testing.T) {
	external := 42
	techs := []domain.Technician{techN("n2-a", domain.TierN2)}
	techs[0].ExternalUserID = &external
	f := newMonitorFixture(t, domain.TierN1, techs)
	f.ticketing.failUpdates = true
	f.atProgress(88)

	f.monitor.RunPass(context.Background())

	if got := f.storedTicket(t).EscalationTier; got != domain.TierN2 {
		t.Fatalf("tier = %s, want N2 despite remote failure", got)
	}
	if got := len(f.publisher.byQueue(broker.QueueNotifications)); got != 1 {
		t.Errorf("expected escalation alert despite remote failure, got %d", got)
	}
}

func TestMonitorSkipsTicketsWithoutDeadline(t *testing.T) {
	f := newMonitorFixture(t, domain.TierN1, []domain.Technician{techN("n1-a", domain.TierN1)})
	f.ticketing.remote[900].TimeToResolve = glpi.RemoteTime{}
	f.atProgress(120)

	f.monitor.RunPass(context.Background())

	if got := len(f.publisher.byQueue(broker.QueueNotifications)); got != 0 {
		t.Fatalf("ticket without deadline produced %d alerts", got)
	}
}
