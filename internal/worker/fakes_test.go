package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/intake-pipeline/internal/domain"
	"github.com/spec-kit/intake-pipeline/internal/glpi"
)

type published struct {
	queue   string
	payload any
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	fail     bool
}

func (p *fakePublisher) Publish(ctx context.Context, queue string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return contextError("publish failed")
	}
	p.messages = append(p.messages, published{queue: queue, payload: payload})
	return nil
}

func (p *fakePublisher) byQueue(queue string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.messages {
		if m.queue == queue {
			out = append(out, m)
		}
	}
	return out
}

type contextError string

func (e contextError) Error() string { return string(e) }

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	nextID  int
	counts  map[string]int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket), counts: make(map[string]int)}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ticket.ID = "t-" + strconv.Itoa(r.nextID)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) FindActiveByIdentity(ctx context.Context, identity string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.ChannelIdentity == identity && !ticket.Status.IsTerminal() {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) SetExternalID(ctx context.Context, id string, externalID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if ticket.ExternalID != nil {
		return false, nil
	}
	ticket.ExternalID = &externalID
	return true, nil
}

func (r *fakeTicketRepo) ListOpenWithExternalID(ctx context.Context) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.ExternalID != nil && !ticket.Status.IsTerminal() {
			out = append(out, *ticket)
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) CountOpenAssigned(ctx context.Context, technicianID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[technicianID], nil
}

type fakeTechRepo struct {
	technicians []domain.Technician
}

func (r *fakeTechRepo) GetByID(ctx context.Context, id string) (*domain.Technician, error) {
	for i := range r.technicians {
		if r.technicians[i].ID == id {
			copied := r.technicians[i]
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTechRepo) ListAlertEligibleByTier(ctx context.Context, tier domain.EscalationTier) ([]domain.Technician, error) {
	var out []domain.Technician
	for _, tech := range r.technicians {
		if tech.Tier == tier && tech.AlertEligible() {
			out = append(out, tech)
		}
	}
	return out, nil
}

func (r *fakeTechRepo) ListAlertEligible(ctx context.Context) ([]domain.Technician, error) {
	var out []domain.Technician
	for _, tech := range r.technicians {
		if tech.AlertEligible() {
			out = append(out, tech)
		}
	}
	return out, nil
}

type fakeAlertRepo struct {
	mu          sync.Mutex
	alerts      []domain.Alert
	channelSent []string
	failFor     map[string]bool
	nextID      int
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{failFor: make(map[string]bool)}
}

func (r *fakeAlertRepo) Create(ctx context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[alert.TechnicianID] {
		return contextError("insert failed")
	}
	r.nextID++
	alert.ID = "a-" + strconv.Itoa(r.nextID)
	alert.CreatedAt = time.Now()
	r.alerts = append(r.alerts, *alert)
	return nil
}

func (r *fakeAlertRepo) ExistsSince(ctx context.Context, ticketID string, alertType domain.AlertType, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, alert := range r.alerts {
		if alert.TicketID == ticketID && alert.Type == alertType && !alert.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAlertRepo) MarkChannelSent(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channelSent = append(r.channelSent, id)
	return nil
}

func (r *fakeAlertRepo) ListRecent(ctx context.Context, limit int) ([]domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Alert{}, r.alerts...), nil
}

type fakeTicketing struct {
	mu          sync.Mutex
	created     []glpi.CreateTicketInput
	updates     map[int]map[string]any
	remote      map[int]*glpi.RemoteTicket
	nextID      int
	failCreate  bool
	failUpdates bool
}

func newFakeTicketing() *fakeTicketing {
	return &fakeTicketing{
		updates: make(map[int]map[string]any),
		remote:  make(map[int]*glpi.RemoteTicket),
		nextID:  100,
	}
}

func (c *fakeTicketing) CreateTicket(ctx context.Context, in glpi.CreateTicketInput) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failCreate {
		return 0, contextError("remote unavailable")
	}
	c.nextID++
	c.created = append(c.created, in)
	return c.nextID, nil
}

func (c *fakeTicketing) GetTicket(ctx context.Context, id int) (*glpi.RemoteTicket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	remote, ok := c.remote[id]
	if !ok {
		return nil, contextError("remote ticket missing")
	}
	return remote, nil
}

func (c *fakeTicketing) UpdateTicket(ctx context.Context, id int, fields map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failUpdates {
		return contextError("remote update failed")
	}
	c.updates[id] = fields
	return nil
}

func (c *fakeTicketing) AssignTicket(ctx context.Context, ticketID, remoteUserID int) error {
	return c.UpdateTicket(ctx, ticketID, map[string]any{
		"status":             glpi.StatusAssigned,
		"users_id_recipient": remoteUserID,
	})
}

func (c *fakeTicketing) AddFollowup(ctx context.Context, ticketID int, followup glpi.Followup) error {
	return nil
}

func (c *fakeTicketing) SearchTickets(ctx context.Context, criteria []glpi.SearchCriterion) ([]glpi.RemoteTicket, error) {
	return nil, nil
}

func (c *fakeTicketing) ListGroups(ctx context.Context) ([]glpi.Group, error) {
	return nil, nil
}

func (c *fakeTicketing) ListUsers(ctx context.Context) ([]glpi.User, error) {
	return nil, nil
}

type fakeHub struct {
	mu       sync.Mutex
	payloads []any
}

func (h *fakeHub) Broadcast(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, v)
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFor: make(map[string]bool)}
}

func (s *fakeSender) SendMessage(ctx context.Context, identity, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[identity] {
		return contextError("send failed")
	}
	s.sent = append(s.sent, identity+"|"+text)
	return nil
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
