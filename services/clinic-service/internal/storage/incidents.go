package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/services/clinic-service/internal/model"
)

const incidentColumns = `id, kind, resource_type, resource_id::text, slot_id::text, code_id::text, detail, status, created_at, resolved_at`

type IncidentRepository struct {
	pool *db.Pool
}

func NewIncidentRepository(pool *db.Pool) *IncidentRepository {
	return &IncidentRepository{pool: pool}
}

// List returns incidents newest first. status is "", "open" or "resolved".
func (r *IncidentRepository) List(ctx context.Context, status string) ([]model.Incident, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+incidentColumns+`
		FROM booking_incidents
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// Resolve closes an open incident. Resolving twice reports ErrNotFound.
func (r *IncidentRepository) Resolve(ctx context.Context, id string) (model.Incident, error) {
	inc, err := scanIncident(r.pool.QueryRow(ctx, `
		UPDATE booking_incidents
		SET status = 'resolved', resolved_at = now()
		WHERE id = $1 AND status = 'open'
		RETURNING `+incidentColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Incident{}, ErrNotFound
	}
	return inc, err
}

func scanIncident(row pgx.Row) (model.Incident, error) {
	var inc model.Incident
	err := row.Scan(&inc.ID, &inc.Kind, &inc.ResourceType, &inc.ResourceID, &inc.SlotID, &inc.CodeID,
		&inc.Detail, &inc.Status, &inc.CreatedAt, &inc.ResolvedAt)
	return inc, err
}
