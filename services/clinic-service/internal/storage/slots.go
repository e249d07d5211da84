package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/physiobook/physiobook/libs/clinicdata"
	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/services/clinic-service/internal/model"
)

type SlotRepository struct {
	pool *db.Pool
}

func NewSlotRepository(pool *db.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

// List returns slots with from <= date <= to ordered by date and hour.
func (r *SlotRepository) List(ctx context.Context, from, to string) ([]model.Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, date::text, hour, is_booked, booked_at, created_at
		FROM slots
		WHERE date BETWEEN $1::date AND $2::date
		ORDER BY date, hour
	`, from, to)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

// Create upserts one slot per hour. Existing (date,hour) pairs are left
// untouched and only new rows are returned.
func (r *SlotRepository) Create(ctx context.Context, date string, hours []int) ([]model.Slot, error) {
	if len(hours) == 0 {
		return []model.Slot{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		INSERT INTO slots (date, hour)
		SELECT $1::date, h FROM unnest($2::smallint[]) AS h
		ON CONFLICT (date, hour) DO NOTHING
		RETURNING id, date::text, hour, is_booked, booked_at, created_at
	`, date, hours)
	if err != nil {
		return nil, err
	}
	slots, err := scanSlots(rows)
	if err != nil {
		return nil, err
	}
	clinicdata.SortSlots(slots)
	return slots, nil
}

func (r *SlotRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSlots(rows pgx.Rows) ([]model.Slot, error) {
	defer rows.Close()
	out := []model.Slot{}
	for rows.Next() {
		var s model.Slot
		if err := rows.Scan(&s.ID, &s.Date, &s.Hour, &s.IsBooked, &s.BookedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
