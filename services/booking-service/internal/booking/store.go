package booking

import (
	"context"

	"github.com/physiobook/physiobook/services/booking-service/internal/model"
)

// CodeStore reads and consumes access codes.
type CodeStore interface {
	// FindUnused returns ok=false when no unused code matches exactly.
	FindUnused(ctx context.Context, code string) (model.AccessCode, bool, error)
	// Consume marks the code used only if it is still unused. ok=false means
	// no row changed.
	Consume(ctx context.Context, id string) (bool, error)
	// IsUnused reports whether the code with this id exists and is unused.
	IsUnused(ctx context.Context, id string) (bool, error)
}

type SlotStore interface {
	// ListOpen returns unbooked slots dated on or after from. A non-empty on
	// restricts the result to that single date.
	ListOpen(ctx context.Context, from, on string) ([]model.Slot, error)
	// Claim books the slot only if it is still free. ok=false means someone
	// else holds it or it does not exist.
	Claim(ctx context.Context, id string) (model.Slot, bool, error)
}

type DepartmentStore interface {
	ListActive(ctx context.Context) ([]model.Department, error)
	// Get returns ok=false when no department has this id.
	Get(ctx context.Context, id string) (model.Department, bool, error)
}

// RegistrationStore inserts the registration and its created event together
// and returns the expanded row.
type RegistrationStore interface {
	Create(ctx context.Context, reg model.Registration) (model.ExpandedRegistration, error)
}

// IncidentStore records partial bookings for operators and reconciliation.
type IncidentStore interface {
	Record(ctx context.Context, inc model.Incident) error
}
