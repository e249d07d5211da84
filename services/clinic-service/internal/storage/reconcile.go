package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/libs/outbox"
	"github.com/physiobook/physiobook/services/clinic-service/internal/model"
	"github.com/physiobook/physiobook/services/clinic-service/internal/reconcile"
)

// ReconcileRepository backs the reconciliation worker. It reads slots and
// codes but only ever writes incidents.
type ReconcileRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewReconcileRepository(pool *db.Pool, outboxRepo *outbox.Repository) *ReconcileRepository {
	return &ReconcileRepository{pool: pool, outbox: outboxRepo}
}

func (r *ReconcileRepository) OrphanSlots(ctx context.Context, cutoff time.Time) ([]reconcile.Orphan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.date::text, s.hour, COALESCE(s.booked_at, s.created_at)
		FROM slots s
		WHERE s.is_booked = true
		  AND COALESCE(s.booked_at, s.created_at) < $1
		  AND NOT EXISTS (SELECT 1 FROM registrations r WHERE r.slot_id = s.id)
		ORDER BY s.date, s.hour
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []reconcile.Orphan{}
	for rows.Next() {
		var (
			o    reconcile.Orphan
			date string
			hour int
		)
		if err := rows.Scan(&o.ID, &date, &hour, &o.Since); err != nil {
			return nil, err
		}
		o.Label = fmt.Sprintf("%s %02d:00", date, hour)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *ReconcileRepository) OrphanCodes(ctx context.Context, cutoff time.Time) ([]reconcile.Orphan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.code, COALESCE(c.used_at, c.created_at)
		FROM access_codes c
		WHERE c.is_used = true
		  AND COALESCE(c.used_at, c.created_at) < $1
		  AND NOT EXISTS (SELECT 1 FROM registrations r WHERE r.access_code_id = c.id)
		ORDER BY c.code
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []reconcile.Orphan{}
	for rows.Next() {
		var o reconcile.Orphan
		if err := rows.Scan(&o.ID, &o.Label, &o.Since); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OpenIncidentRefs collects slot and code ids referenced by open incidents.
func (r *ReconcileRepository) OpenIncidentRefs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT resource_id::text, COALESCE(slot_id::text, ''), COALESCE(code_id::text, '')
		FROM booking_incidents
		WHERE status = 'open'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := map[string]struct{}{}
	for rows.Next() {
		var resource, slot, code string
		if err := rows.Scan(&resource, &slot, &code); err != nil {
			return nil, err
		}
		for _, id := range []string{resource, slot, code} {
			if id != "" {
				refs[id] = struct{}{}
			}
		}
	}
	return refs, rows.Err()
}

// Flag inserts reconciliation incidents, skipping resources that already
// have an open one, and emits an event per new row.
func (r *ReconcileRepository) Flag(ctx context.Context, incidents []model.Incident) (int, error) {
	created := 0
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		created = 0
		for _, in := range incidents {
			inc, err := scanIncident(tx.QueryRow(ctx, `
				INSERT INTO booking_incidents (kind, resource_type, resource_id, slot_id, code_id, detail)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (resource_type, resource_id) WHERE status = 'open' DO NOTHING
				RETURNING `+incidentColumns,
				in.Kind, in.ResourceType, in.ResourceID, in.SlotID, in.CodeID, in.Detail))
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			evt, err := outbox.NewEvent("booking_incident", inc.ID, EventReconciliationFlagged, inc)
			if err != nil {
				return err
			}
			if err := r.outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	return created, err
}
