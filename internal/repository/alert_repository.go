package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/intake-pipeline/internal/domain"
)

// AlertRepository encapsulates alert persistence.
type AlertRepository interface {
	Create(ctx context.Context, alert *domain.Alert) error
	// ExistsSince reports whether an alert of the same (ticket, type) was
	// recorded at or after the given instant. Drives dedup windows.
	ExistsSince(ctx context.Context, ticketID string, alertType domain.AlertType, since time.Time) (bool, error)
	MarkChannelSent(ctx context.Context, id string) error
	ListRecent(ctx context.Context, limit int) ([]domain.Alert, error)
}

type alertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository instantiates repository.
func NewAlertRepository(pool *pgxpool.Pool) AlertRepository {
	return &alertRepository{pool: pool}
}

func (r *alertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	const query = `
        INSERT INTO alerts (ticket_id, technician_id, type, message, sent_push, sent_channel)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	var techID *string
	if alert.TechnicianID != "" {
		techID = &alert.TechnicianID
	}
	return r.pool.QueryRow(ctx, query,
		alert.TicketID,
		techID,
		alert.Type,
		alert.Message,
		alert.SentPush,
		alert.SentChannel,
	).Scan(&alert.ID, &alert.CreatedAt)
}

func (r *alertRepository) ExistsSince(ctx context.Context, ticketID string, alertType domain.AlertType, since time.Time) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM alerts WHERE ticket_id=$1 AND type=$2 AND created_at >= $3
        )`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, ticketID, alertType, since).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *alertRepository) MarkChannelSent(ctx context.Context, id string) error {
	const query = `UPDATE alerts SET sent_channel=TRUE WHERE id=$1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *alertRepository) ListRecent(ctx context.Context, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, ticket_id, COALESCE(technician_id::text, ''), type, message,
               sent_push, sent_channel, read_at, created_at
        FROM alerts ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Alert
	for rows.Next() {
		var alert domain.Alert
		if err := rows.Scan(
			&alert.ID,
			&alert.TicketID,
			&alert.TechnicianID,
			&alert.Type,
			&alert.Message,
			&alert.SentPush,
			&alert.SentChannel,
			&alert.ReadAt,
			&alert.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, alert)
	}
	return result, rows.Err()
}
