package storage

import (
	"context"

	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/services/clinic-service/internal/model"
)

type CodeRepository struct {
	pool *db.Pool
}

func NewCodeRepository(pool *db.Pool) *CodeRepository {
	return &CodeRepository{pool: pool}
}

// List returns codes newest first. status is "", "used" or "unused".
func (r *CodeRepository) List(ctx context.Context, status string) ([]model.AccessCode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, is_used, used_at, created_at
		FROM access_codes
		WHERE ($1 = '' OR is_used = ($1 = 'used'))
		ORDER BY created_at DESC, code
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AccessCode{}
	for rows.Next() {
		var c model.AccessCode
		if err := rows.Scan(&c.ID, &c.Code, &c.IsUsed, &c.UsedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Generate creates count fresh codes through generate_access_codes.
func (r *CodeRepository) Generate(ctx context.Context, count int) ([]model.AccessCode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, is_used, used_at, created_at
		FROM generate_access_codes($1)
	`, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AccessCode{}
	for rows.Next() {
		var c model.AccessCode
		if err := rows.Scan(&c.ID, &c.Code, &c.IsUsed, &c.UsedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CodeRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM access_codes WHERE id = $1`, id)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
