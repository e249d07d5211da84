package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/physiobook/physiobook/libs/clinicdata"
	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/libs/outbox"
	"github.com/physiobook/physiobook/services/booking-service/internal/model"
)

const (
	EventRegistrationCreated = "booking.registration.created.v1"
	EventIncidentRecorded    = "booking.incident.recorded.v1"
)

type CodeRepository struct {
	pool *db.Pool
}

func NewCodeRepository(pool *db.Pool) *CodeRepository {
	return &CodeRepository{pool: pool}
}

func (r *CodeRepository) FindUnused(ctx context.Context, code string) (model.AccessCode, bool, error) {
	var ac model.AccessCode
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, is_used, created_at
		FROM access_codes
		WHERE code = $1 AND is_used = false
	`, code).Scan(&ac.ID, &ac.Code, &ac.IsUsed, &ac.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AccessCode{}, false, nil
	}
	if err != nil {
		return model.AccessCode{}, false, err
	}
	return ac, true, nil
}

func (r *CodeRepository) Consume(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE access_codes
		SET is_used = true, used_at = now()
		WHERE id = $1 AND is_used = false
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CodeRepository) IsUnused(ctx context.Context, id string) (bool, error) {
	var unused bool
	err := r.pool.QueryRow(ctx, `SELECT NOT is_used FROM access_codes WHERE id = $1`, id).Scan(&unused)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return unused, err
}

type SlotRepository struct {
	pool *db.Pool
}

func NewSlotRepository(pool *db.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

func (r *SlotRepository) ListOpen(ctx context.Context, from, on string) ([]model.Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, date::text, hour, is_booked, created_at
		FROM slots
		WHERE is_booked = false
		  AND date >= $1::date
		  AND ($2 = '' OR date = NULLIF($2, '')::date)
		ORDER BY date, hour
	`, from, on)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := []model.Slot{}
	for rows.Next() {
		var s model.Slot
		if err := rows.Scan(&s.ID, &s.Date, &s.Hour, &s.IsBooked, &s.CreatedAt); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *SlotRepository) Claim(ctx context.Context, id string) (model.Slot, bool, error) {
	var s model.Slot
	err := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET is_booked = true, booked_at = now()
		WHERE id = $1 AND is_booked = false
		RETURNING id, date::text, hour, is_booked, created_at
	`, id).Scan(&s.ID, &s.Date, &s.Hour, &s.IsBooked, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Slot{}, false, nil
	}
	if err != nil {
		return model.Slot{}, false, err
	}
	return s, true, nil
}

type DepartmentRepository struct {
	pool *db.Pool
}

func NewDepartmentRepository(pool *db.Pool) *DepartmentRepository {
	return &DepartmentRepository{pool: pool}
}

func (r *DepartmentRepository) ListActive(ctx context.Context) ([]model.Department, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, is_active, created_at
		FROM departments
		WHERE is_active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	depts := []model.Department{}
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.IsActive, &d.CreatedAt); err != nil {
			return nil, err
		}
		depts = append(depts, d)
	}
	return depts, rows.Err()
}

func (r *DepartmentRepository) Get(ctx context.Context, id string) (model.Department, bool, error) {
	var d model.Department
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, is_active, created_at
		FROM departments
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.IsActive, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Department{}, false, nil
	}
	if err != nil {
		return model.Department{}, false, err
	}
	return d, true, nil
}

type RegistrationRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRegistrationRepository(pool *db.Pool, outboxRepo *outbox.Repository) *RegistrationRepository {
	return &RegistrationRepository{pool: pool, outbox: outboxRepo}
}

type registrationCreatedPayload struct {
	RegistrationID string    `json:"registration_id"`
	SlotID         string    `json:"slot_id"`
	AccessCodeID   string    `json:"access_code_id"`
	DepartmentID   string    `json:"department_id"`
	DepartmentName string    `json:"department_name"`
	FullName       string    `json:"full_name"`
	Phone          string    `json:"phone"`
	SlotDate       string    `json:"slot_date"`
	SlotHour       int       `json:"slot_hour"`
	CreatedAt      time.Time `json:"created_at"`
}

func (r *RegistrationRepository) Create(ctx context.Context, reg model.Registration) (model.ExpandedRegistration, error) {
	var out model.ExpandedRegistration
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(ctx, `
			INSERT INTO registrations
				(access_code_id, slot_id, department_id, full_name, national_id, phone, complaint, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, reg.AccessCodeID, reg.SlotID, reg.DepartmentID, reg.FullName, reg.NationalID, reg.Phone,
			reg.Complaint, reg.Status).Scan(&id); err != nil {
			return err
		}

		var err error
		out, err = clinicdata.GetExpanded(ctx, tx, id)
		if err != nil {
			return err
		}

		evt, err := outbox.NewEvent("registration", out.ID, EventRegistrationCreated, registrationCreatedPayload{
			RegistrationID: out.ID,
			SlotID:         out.SlotID,
			AccessCodeID:   out.AccessCodeID,
			DepartmentID:   out.DepartmentID,
			DepartmentName: out.DepartmentName,
			FullName:       out.FullName,
			Phone:          out.Phone,
			SlotDate:       out.SlotDate,
			SlotHour:       out.SlotHour,
			CreatedAt:      out.CreatedAt,
		})
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return model.ExpandedRegistration{}, err
	}
	return out, nil
}

type IncidentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewIncidentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *IncidentRepository {
	return &IncidentRepository{pool: pool, outbox: outboxRepo}
}

// Record inserts inc unless an open incident already covers the resource,
// and emits the recorded event for new rows only.
func (r *IncidentRepository) Record(ctx context.Context, inc model.Incident) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var created model.Incident
		err := tx.QueryRow(ctx, `
			INSERT INTO booking_incidents (kind, resource_type, resource_id, slot_id, code_id, detail)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (resource_type, resource_id) WHERE status = 'open' DO NOTHING
			RETURNING id, kind, resource_type, resource_id::text, slot_id::text, code_id::text, detail, status, created_at
		`, inc.Kind, inc.ResourceType, inc.ResourceID, inc.SlotID, inc.CodeID, inc.Detail).Scan(
			&created.ID, &created.Kind, &created.ResourceType, &created.ResourceID,
			&created.SlotID, &created.CodeID, &created.Detail, &created.Status, &created.CreatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		evt, err := outbox.NewEvent("booking_incident", created.ID, EventIncidentRecorded, created)
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
}
