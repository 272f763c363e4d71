package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/intake-pipeline/internal/domain"
)

const ticketColumns = `id, channel_identity, external_id, status, sector, priority,
        escalation_tier, assigned_tech_id, title, description,
        created_at, updated_at, escalated_at, closed_at`

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// FindActiveByIdentity returns the channel identity's non-terminal
	// ticket, or pgx.ErrNoRows when there is none.
	FindActiveByIdentity(ctx context.Context, identity string) (*domain.Ticket, error)
	// SetExternalID assigns the remote id only when none is recorded yet.
	// It reports false when the ticket already carried an external id.
	SetExternalID(ctx context.Context, id string, externalID int) (bool, error)
	ListOpenWithExternalID(ctx context.Context) ([]domain.Ticket, error)
	CountOpenAssigned(ctx context.Context, technicianID string) (int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (channel_identity, external_id, status, sector, priority,
            escalation_tier, assigned_tech_id, title, description)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ChannelIdentity,
		ticket.ExternalID,
		ticket.Status,
		ticket.Sector,
		ticket.Priority,
		ticket.EscalationTier,
		ticket.AssignedTechID,
		ticket.Title,
		ticket.Description,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, sector=$2, priority=$3, escalation_tier=$4,
            assigned_tech_id=$5, title=$6, description=$7, escalated_at=$8,
            closed_at=$9, updated_at=NOW()
        WHERE id=$10`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.Sector,
		ticket.Priority,
		ticket.EscalationTier,
		ticket.AssignedTechID,
		ticket.Title,
		ticket.Description,
		ticket.EscalatedAt,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) FindActiveByIdentity(ctx context.Context, identity string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE channel_identity=$1 AND status NOT IN ('CLOSED','CANCELLED')
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, identity)
}

func (r *ticketRepository) SetExternalID(ctx context.Context, id string, externalID int) (bool, error) {
	const query = `
        UPDATE tickets SET external_id=$1, updated_at=NOW()
        WHERE id=$2 AND external_id IS NULL`
	cmd, err := r.pool.Exec(ctx, query, externalID, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) ListOpenWithExternalID(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE external_id IS NOT NULL AND status NOT IN ('CLOSED','CANCELLED')
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountOpenAssigned(ctx context.Context, technicianID string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM tickets
        WHERE assigned_tech_id=$1 AND status NOT IN ('CLOSED','CANCELLED')`
	var count int
	if err := r.pool.QueryRow(ctx, query, technicianID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.ChannelIdentity,
		&ticket.ExternalID,
		&ticket.Status,
		&ticket.Sector,
		&ticket.Priority,
		&ticket.EscalationTier,
		&ticket.AssignedTechID,
		&ticket.Title,
		&ticket.Description,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.EscalatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.ChannelIdentity,
			&ticket.ExternalID,
			&ticket.Status,
			&ticket.Sector,
			&ticket.Priority,
			&ticket.EscalationTier,
			&ticket.AssignedTechID,
			&ticket.Title,
			&ticket.Description,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.EscalatedAt,
			&ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
