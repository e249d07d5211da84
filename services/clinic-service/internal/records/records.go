// Package records completes a pending visit with its medical record.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/physiobook/physiobook/services/clinic-service/internal/model"
)

var (
	ErrNotFound         = errors.New("registration not found")
	ErrAlreadyCompleted = errors.New("registration already completed")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field(s)", len(e.Fields))
}

type Store interface {
	// Complete fills the record only while the registration is pending.
	// ok=false means no pending row matched.
	Complete(ctx context.Context, id, physiotherapistID string, rec model.MedicalRecord) (model.ExpandedRegistration, bool, error)
	// Status returns ok=false when the registration does not exist.
	Status(ctx context.Context, id string) (string, bool, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Complete moves a registration from pending to completed exactly once.
func (s *Service) Complete(ctx context.Context, id, physiotherapistID string, rec model.MedicalRecord) (model.ExpandedRegistration, error) {
	rec, err := Validate(rec)
	if err != nil {
		return model.ExpandedRegistration{}, err
	}

	reg, ok, err := s.store.Complete(ctx, id, physiotherapistID, rec)
	if err != nil {
		return model.ExpandedRegistration{}, err
	}
	if ok {
		return reg, nil
	}

	status, exists, err := s.store.Status(ctx, id)
	switch {
	case err != nil:
		return model.ExpandedRegistration{}, err
	case !exists:
		return model.ExpandedRegistration{}, ErrNotFound
	case status == model.StatusCompleted:
		return model.ExpandedRegistration{}, ErrAlreadyCompleted
	default:
		return model.ExpandedRegistration{}, fmt.Errorf("registration %s in unexpected status %q", id, status)
	}
}

// Validate requires all four medical fields after trimming.
func Validate(rec model.MedicalRecord) (model.MedicalRecord, error) {
	rec = model.MedicalRecord{
		Assessment:    strings.TrimSpace(rec.Assessment),
		PhysicalExam:  strings.TrimSpace(rec.PhysicalExam),
		Treatment:     strings.TrimSpace(rec.Treatment),
		TreatmentPlan: strings.TrimSpace(rec.TreatmentPlan),
	}
	fields := map[string]string{}
	for name, v := range map[string]string{
		"assessment":     rec.Assessment,
		"physical_exam":  rec.PhysicalExam,
		"treatment":      rec.Treatment,
		"treatment_plan": rec.TreatmentPlan,
	} {
		if v == "" {
			fields[name] = "required"
		}
	}
	if len(fields) > 0 {
		return model.MedicalRecord{}, &ValidationError{Fields: fields}
	}
	return rec, nil
}
