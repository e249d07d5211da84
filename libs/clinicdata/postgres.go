package clinicdata

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/physiobook/physiobook/libs/db"
)

// ExpandedSelect reads registrations with their display joins. Callers append
// their own WHERE and ORDER BY.
const ExpandedSelect = `
	SELECT r.id, r.access_code_id, r.slot_id, r.department_id, r.full_name, r.national_id, r.phone,
	       r.complaint, r.status, r.assessment, r.physical_exam, r.treatment, r.treatment_plan,
	       r.physiotherapist_id::text, r.visited_at, r.created_at,
	       s.date::text, s.hour, d.name, c.code, p.full_name
	FROM registrations r
	JOIN slots s ON s.id = r.slot_id
	JOIN departments d ON d.id = r.department_id
	JOIN access_codes c ON c.id = r.access_code_id
	LEFT JOIN profiles p ON p.user_id = r.physiotherapist_id
`

// ScanExpanded scans one row selected with ExpandedSelect.
func ScanExpanded(row pgx.Row) (ExpandedRegistration, error) {
	var e ExpandedRegistration
	err := row.Scan(
		&e.ID, &e.AccessCodeID, &e.SlotID, &e.DepartmentID, &e.FullName, &e.NationalID, &e.Phone,
		&e.Complaint, &e.Status, &e.Assessment, &e.PhysicalExam, &e.Treatment, &e.TreatmentPlan,
		&e.PhysiotherapistID, &e.VisitedAt, &e.CreatedAt,
		&e.SlotDate, &e.SlotHour, &e.DepartmentName, &e.AccessCode, &e.PhysiotherapistName,
	)
	return e, err
}

// GetExpanded reads one registration by id. A missing row is pgx.ErrNoRows.
func GetExpanded(ctx context.Context, q db.Querier, id string) (ExpandedRegistration, error) {
	return ScanExpanded(q.QueryRow(ctx, ExpandedSelect+` WHERE r.id = $1`, id))
}

// ScanAll drains rows selected with ExpandedSelect.
func ScanAll(rows pgx.Rows) ([]ExpandedRegistration, error) {
	defer rows.Close()
	out := []ExpandedRegistration{}
	for rows.Next() {
		e, err := ScanExpanded(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
