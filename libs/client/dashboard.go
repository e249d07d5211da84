package client

import (
	"context"

	"github.com/physiobook/physiobook/libs/optimistic"
)

// Dashboard keeps the admin lists locally and applies deletes and toggles
// optimistically. A failed request restores the list and returns
// *optimistic.RollbackError.
type Dashboard struct {
	api         *Client
	Codes       *optimistic.List[AccessCode]
	Slots       *optimistic.List[Slot]
	Departments *optimistic.List[Department]
}

func NewDashboard(api *Client) *Dashboard {
	return &Dashboard{
		api:         api,
		Codes:       optimistic.NewList[AccessCode](nil),
		Slots:       optimistic.NewList[Slot](nil),
		Departments: optimistic.NewList[Department](nil),
	}
}

// Load re-fetches every list. Dashboards call it on open and whenever the
// live feed reports a change.
func (d *Dashboard) Load(ctx context.Context) error {
	codes, err := d.api.ListCodes(ctx, "")
	if err != nil {
		return err
	}
	days, err := d.api.ListSlots(ctx, "", "")
	if err != nil {
		return err
	}
	depts, err := d.api.ListDepartments(ctx)
	if err != nil {
		return err
	}

	var slots []Slot
	for _, day := range days {
		slots = append(slots, day.Slots...)
	}
	d.Codes.Replace(codes)
	d.Slots.Replace(slots)
	d.Departments.Replace(depts)
	return nil
}

func (d *Dashboard) DeleteCode(ctx context.Context, id string) error {
	return d.Codes.Apply(ctx,
		optimistic.Remove(func(c AccessCode) bool { return c.ID == id }),
		func(ctx context.Context) error { return d.api.DeleteCode(ctx, id) },
	)
}

func (d *Dashboard) DeleteSlot(ctx context.Context, id string) error {
	return d.Slots.Apply(ctx,
		optimistic.Remove(func(s Slot) bool { return s.ID == id }),
		func(ctx context.Context) error { return d.api.DeleteSlot(ctx, id) },
	)
}

func (d *Dashboard) DeleteDepartment(ctx context.Context, id string) error {
	return d.Departments.Apply(ctx,
		optimistic.Remove(func(dep Department) bool { return dep.ID == id }),
		func(ctx context.Context) error { return d.api.DeleteDepartment(ctx, id) },
	)
}

func (d *Dashboard) SetDepartmentActive(ctx context.Context, id string, active bool) error {
	return d.Departments.Apply(ctx,
		optimistic.Update(
			func(dep Department) bool { return dep.ID == id },
			func(dep Department) Department { dep.IsActive = active; return dep },
		),
		func(ctx context.Context) error {
			_, err := d.api.SetDepartmentActive(ctx, id, active)
			return err
		},
	)
}
