package booking

import (
	"context"
	"fmt"
	"sort"

	"github.com/physiobook/physiobook/libs/clinicdata"
	"github.com/physiobook/physiobook/services/booking-service/internal/model"
)

type Catalog struct {
	slots       SlotStore
	departments DepartmentStore
}

func NewCatalog(slots SlotStore, departments DepartmentStore) *Catalog {
	return &Catalog{slots: slots, departments: departments}
}

// Available lists unbooked slots from today on, grouped by date. Days and
// hours are ascending regardless of store order.
func (c *Catalog) Available(ctx context.Context, today, on string) ([]model.SlotDay, error) {
	if on != "" && on < today {
		return []model.SlotDay{}, nil
	}
	slots, err := c.slots.ListOpen(ctx, today, on)
	if err != nil {
		return nil, fmt.Errorf("%w: list slots: %w", ErrNetwork, err)
	}
	return clinicdata.GroupByDate(slots), nil
}

func (c *Catalog) Departments(ctx context.Context) ([]model.Department, error) {
	depts, err := c.departments.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list departments: %w", ErrNetwork, err)
	}
	sort.SliceStable(depts, func(i, j int) bool { return depts[i].Name < depts[j].Name })
	return depts, nil
}
