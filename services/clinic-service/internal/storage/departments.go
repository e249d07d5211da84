package storage

import (
	"context"

	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/services/clinic-service/internal/model"
)

type DepartmentRepository struct {
	pool *db.Pool
}

func NewDepartmentRepository(pool *db.Pool) *DepartmentRepository {
	return &DepartmentRepository{pool: pool}
}

func (r *DepartmentRepository) List(ctx context.Context) ([]model.Department, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, is_active, created_at
		FROM departments
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Department{}
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.IsActive, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DepartmentRepository) Create(ctx context.Context, name string) (model.Department, error) {
	var d model.Department
	err := r.pool.QueryRow(ctx, `
		INSERT INTO departments (name)
		VALUES ($1)
		RETURNING id, name, is_active, created_at
	`, name).Scan(&d.ID, &d.Name, &d.IsActive, &d.CreatedAt)
	return d, mapWriteErr(err)
}

// Update changes only the fields that are non-nil.
func (r *DepartmentRepository) Update(ctx context.Context, id string, name *string, active *bool) (model.Department, error) {
	var d model.Department
	err := r.pool.QueryRow(ctx, `
		UPDATE departments
		SET name = COALESCE($2, name),
		    is_active = COALESCE($3, is_active)
		WHERE id = $1
		RETURNING id, name, is_active, created_at
	`, id, name, active).Scan(&d.ID, &d.Name, &d.IsActive, &d.CreatedAt)
	return d, mapWriteErr(err)
}

func (r *DepartmentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
