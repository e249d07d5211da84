package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/physiobook/physiobook/libs/clinicdata"
	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/libs/outbox"
	"github.com/physiobook/physiobook/services/clinic-service/internal/model"
)

type RegistrationRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRegistrationRepository(pool *db.Pool, outboxRepo *outbox.Repository) *RegistrationRepository {
	return &RegistrationRepository{pool: pool, outbox: outboxRepo}
}

// List returns registrations newest first, optionally filtered by status.
func (r *RegistrationRepository) List(ctx context.Context, status string) ([]model.ExpandedRegistration, error) {
	return r.query(ctx, clinicdata.ExpandedSelect+`
		WHERE ($1 = '' OR r.status = $1)
		ORDER BY r.created_at DESC
	`, status)
}

// Queue returns pending visits in appointment order.
func (r *RegistrationRepository) Queue(ctx context.Context) ([]model.ExpandedRegistration, error) {
	return r.query(ctx, clinicdata.ExpandedSelect+`
		WHERE r.status = 'pending'
		ORDER BY s.date, s.hour
	`)
}

// History returns completed visits, most recent visit first.
func (r *RegistrationRepository) History(ctx context.Context) ([]model.ExpandedRegistration, error) {
	return r.query(ctx, clinicdata.ExpandedSelect+`
		WHERE r.status = 'completed'
		ORDER BY r.visited_at DESC
	`)
}

func (r *RegistrationRepository) Get(ctx context.Context, id string) (model.ExpandedRegistration, error) {
	e, err := clinicdata.GetExpanded(ctx, r.pool, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ExpandedRegistration{}, ErrNotFound
	}
	return e, err
}

func (r *RegistrationRepository) Status(ctx context.Context, id string) (string, bool, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM registrations WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return status, true, nil
}

type visitCompletedPayload struct {
	RegistrationID    string    `json:"registration_id"`
	SlotID            string    `json:"slot_id"`
	PhysiotherapistID string    `json:"physiotherapist_id"`
	VisitedAt         time.Time `json:"visited_at"`
}

// Complete files the medical record on a pending registration and emits
// the completion event in the same transaction.
func (r *RegistrationRepository) Complete(ctx context.Context, id, physiotherapistID string, rec model.MedicalRecord) (model.ExpandedRegistration, bool, error) {
	var (
		out     model.ExpandedRegistration
		updated bool
	)
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE registrations
			SET status = 'completed',
			    assessment = $3,
			    physical_exam = $4,
			    treatment = $5,
			    treatment_plan = $6,
			    physiotherapist_id = $2,
			    visited_at = now()
			WHERE id = $1 AND status = 'pending'
		`, id, physiotherapistID, rec.Assessment, rec.PhysicalExam, rec.Treatment, rec.TreatmentPlan)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		updated = true

		out, err = clinicdata.GetExpanded(ctx, tx, id)
		if err != nil {
			return err
		}
		evt, err := outbox.NewEvent("registration", out.ID, EventVisitCompleted, visitCompletedPayload{
			RegistrationID:    out.ID,
			SlotID:            out.SlotID,
			PhysiotherapistID: physiotherapistID,
			VisitedAt:         *out.VisitedAt,
		})
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return model.ExpandedRegistration{}, false, mapWriteErr(err)
	}
	return out, updated, nil
}

func (r *RegistrationRepository) Stats(ctx context.Context) (model.Stats, error) {
	var s model.Stats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM registrations),
			(SELECT count(*) FROM slots WHERE is_booked = false),
			(SELECT count(*) FROM access_codes WHERE is_used = false),
			(SELECT count(*) FROM departments)
	`).Scan(&s.TotalRegistrations, &s.UnbookedSlots, &s.UnusedCodes, &s.Departments)
	return s, err
}

func (r *RegistrationRepository) query(ctx context.Context, sql string, args ...any) ([]model.ExpandedRegistration, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return clinicdata.ScanAll(rows)
}
