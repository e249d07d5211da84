package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/physiobook/physiobook/libs/db"
	otelx "github.com/physiobook/physiobook/libs/otel"
	"github.com/physiobook/physiobook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Workflow books a slot in three ordered steps: claim the slot, consume the
// access code, persist the registration. The steps do not share a
// transaction. A failure after the claim is reported with its step trace and
// recorded as an incident; nothing is compensated or retried.
type Workflow struct {
	slots       SlotStore
	codes       CodeStore
	departments DepartmentStore
	regs        RegistrationStore
	incidents   IncidentStore
	logger      *slog.Logger
	tracer      trace.Tracer
}

func NewWorkflow(slots SlotStore, codes CodeStore, departments DepartmentStore, regs RegistrationStore, incidents IncidentStore, logger *slog.Logger) *Workflow {
	return &Workflow{
		slots:       slots,
		codes:       codes,
		departments: departments,
		regs:        regs,
		incidents:   incidents,
		logger:      logger,
		tracer:      otelx.Tracer("booking"),
	}
}

func (w *Workflow) Submit(ctx context.Context, slotID, codeID string, form model.RegistrationForm) (model.ExpandedRegistration, error) {
	form.SlotID = slotID
	clean, err := ValidateForm(form)
	if err != nil {
		return model.ExpandedRegistration{}, err
	}
	codeID = strings.TrimSpace(codeID)
	if codeID == "" {
		return model.ExpandedRegistration{}, ErrInvalidCode
	}

	var progress Progress

	if err := w.checkInputs(ctx, codeID, clean.DepartmentID); err != nil {
		return model.ExpandedRegistration{}, &BookingError{Progress: progress, Err: err}
	}

	if err := w.claimSlot(ctx, clean.SlotID); err != nil {
		return model.ExpandedRegistration{}, &BookingError{Progress: progress, Err: err}
	}
	progress.SlotClaimed = true

	if err := w.consumeCode(ctx, codeID); err != nil {
		failure := &CodeConsumptionFailed{SlotID: clean.SlotID, Err: err}
		w.reportPartial(ctx, progress, model.Incident{
			Kind:         model.IncidentCodeConsumptionFailed,
			ResourceType: "slot",
			ResourceID:   clean.SlotID,
			SlotID:       &clean.SlotID,
			CodeID:       &codeID,
			Detail:       err.Error(),
		})
		return model.ExpandedRegistration{}, &BookingError{Progress: progress, Err: failure}
	}
	progress.CodeConsumed = true

	reg, err := w.persist(ctx, codeID, clean)
	if err != nil {
		failure := &RegistrationPersistFailed{SlotID: clean.SlotID, CodeID: codeID, Err: err}
		w.reportPartial(ctx, progress, model.Incident{
			Kind:         model.IncidentRegistrationPersistFailed,
			ResourceType: "slot",
			ResourceID:   clean.SlotID,
			SlotID:       &clean.SlotID,
			CodeID:       &codeID,
			Detail:       err.Error(),
		})
		return model.ExpandedRegistration{}, &BookingError{Progress: progress, Err: failure}
	}

	w.logger.Info("registration created",
		"registration_id", reg.ID,
		"slot_id", reg.SlotID,
		"code_id", reg.AccessCodeID,
	)
	return reg, nil
}

// checkInputs rejects a code that was used since it was staged and a
// department that is unknown or inactive, before anything is modified. These
// are reads only; the claim and consume steps still guard themselves.
func (w *Workflow) checkInputs(ctx context.Context, codeID, departmentID string) error {
	unused, err := w.codes.IsUnused(ctx, codeID)
	switch {
	case err != nil && db.IsDataException(err):
		return ErrInvalidCode
	case err != nil:
		return fmt.Errorf("%w: check code: %w", ErrNetwork, err)
	case !unused:
		return ErrInvalidCode
	}

	dept, ok, err := w.departments.Get(ctx, departmentID)
	switch {
	case err != nil && !db.IsDataException(err):
		return fmt.Errorf("%w: check department: %w", ErrNetwork, err)
	case err != nil, !ok, !dept.IsActive:
		return &ValidationError{Fields: map[string]string{"department_id": "unknown or inactive department"}}
	}
	return nil
}

func (w *Workflow) claimSlot(ctx context.Context, slotID string) error {
	ctx, span := w.tracer.Start(ctx, "booking.claim_slot", trace.WithAttributes(attribute.String("slot.id", slotID)))
	defer span.End()

	_, ok, err := w.slots.Claim(ctx, slotID)
	switch {
	case err != nil && db.IsConstraintViolation(err):
		err = ErrSlotAlreadyTaken
	case err != nil && db.IsDataException(err):
		err = &ValidationError{Fields: map[string]string{"slot_id": "invalid slot"}}
	case err != nil:
		err = fmt.Errorf("%w: claim slot: %w", ErrNetwork, err)
	case !ok:
		err = ErrSlotAlreadyTaken
	}
	otelx.RecordError(span, err)
	return err
}

func (w *Workflow) consumeCode(ctx context.Context, codeID string) error {
	ctx, span := w.tracer.Start(ctx, "booking.consume_code", trace.WithAttributes(attribute.String("access_code.id", codeID)))
	defer span.End()

	ok, err := w.codes.Consume(ctx, codeID)
	if err == nil && !ok {
		err = errors.New("access code already used or missing")
	}
	otelx.RecordError(span, err)
	return err
}

func (w *Workflow) persist(ctx context.Context, codeID string, form model.RegistrationForm) (model.ExpandedRegistration, error) {
	ctx, span := w.tracer.Start(ctx, "booking.persist_registration")
	defer span.End()

	reg, err := w.regs.Create(ctx, model.Registration{
		AccessCodeID: codeID,
		SlotID:       form.SlotID,
		DepartmentID: form.DepartmentID,
		FullName:     strings.ToUpper(form.FullName),
		NationalID:   form.NationalID,
		Phone:        form.Phone,
		Complaint:    form.Complaint,
		Status:       model.StatusPending,
	})
	otelx.RecordError(span, err)
	return reg, err
}

func (w *Workflow) reportPartial(ctx context.Context, progress Progress, inc model.Incident) {
	w.logger.ErrorContext(ctx, "booking left partial state",
		"kind", inc.Kind,
		"slot_id", deref(inc.SlotID),
		"code_id", deref(inc.CodeID),
		"slot_claimed", progress.SlotClaimed,
		"code_consumed", progress.CodeConsumed,
		"err", inc.Detail,
	)
	if w.incidents == nil {
		return
	}
	if err := w.incidents.Record(context.WithoutCancel(ctx), inc); err != nil {
		w.logger.ErrorContext(ctx, "incident record failed", "kind", inc.Kind, "slot_id", deref(inc.SlotID), "err", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
