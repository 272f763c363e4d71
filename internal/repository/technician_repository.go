package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/intake-pipeline/internal/domain"
)

const technicianColumns = `id, name, external_user_id, channel_address, tier,
        active, alerts_opt_in, created_at, updated_at`

// TechnicianRepository encapsulates technician persistence.
type TechnicianRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Technician, error)
	// ListAlertEligibleByTier returns active, opted-in technicians of the
	// given tier.
	ListAlertEligibleByTier(ctx context.Context, tier domain.EscalationTier) ([]domain.Technician, error)
	ListAlertEligible(ctx context.Context) ([]domain.Technician, error)
}

type technicianRepository struct {
	pool *pgxpool.Pool
}

// NewTechnicianRepository instantiates repository.
func NewTechnicianRepository(pool *pgxpool.Pool) TechnicianRepository {
	return &technicianRepository{pool: pool}
}

func (r *technicianRepository) GetByID(ctx context.Context, id string) (*domain.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians WHERE id=$1`
	var tech domain.Technician
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&tech.ID,
		&tech.Name,
		&tech.ExternalUserID,
		&tech.ChannelAddress,
		&tech.Tier,
		&tech.Active,
		&tech.AlertsOptIn,
		&tech.CreatedAt,
		&tech.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &tech, nil
}

func (r *technicianRepository) ListAlertEligibleByTier(ctx context.Context, tier domain.EscalationTier) ([]domain.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians
        WHERE tier=$1 AND active AND alerts_opt_in ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, tier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTechnicians(rows)
}

func (r *technicianRepository) ListAlertEligible(ctx context.Context) ([]domain.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians
        WHERE active AND alerts_opt_in ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTechnicians(rows)
}

func scanTechnicians(rows pgx.Rows) ([]domain.Technician, error) {
	var result []domain.Technician
	for rows.Next() {
		var tech domain.Technician
		if err := rows.Scan(
			&tech.ID,
			&tech.Name,
			&tech.ExternalUserID,
			&tech.ChannelAddress,
			&tech.Tier,
			&tech.Active,
			&tech.AlertsOptIn,
			&tech.CreatedAt,
			&tech.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, tech)
	}
	return result, rows.Err()
}
