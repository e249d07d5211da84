package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/physiobook/physiobook/libs/auth"
	"github.com/physiobook/physiobook/libs/clinicdata"
	"github.com/physiobook/physiobook/libs/httpx"
	"github.com/physiobook/physiobook/services/clinic-service/internal/live"
	"github.com/physiobook/physiobook/services/clinic-service/internal/model"
	"github.com/physiobook/physiobook/services/clinic-service/internal/records"
	"github.com/physiobook/physiobook/services/clinic-service/internal/slotplan"
	"github.com/physiobook/physiobook/services/clinic-service/internal/storage"
)

type Departments interface {
	List(ctx context.Context) ([]model.Department, error)
	Create(ctx context.Context, name string) (model.Department, error)
	Update(ctx context.Context, id string, name *string, active *bool) (model.Department, error)
	Delete(ctx context.Context, id string) error
}

type Codes interface {
	List(ctx context.Context, status string) ([]model.AccessCode, error)
	Generate(ctx context.Context, count int) ([]model.AccessCode, error)
	Delete(ctx context.Context, id string) error
}

type Slots interface {
	List(ctx context.Context, from, to string) ([]model.Slot, error)
	Create(ctx context.Context, date string, hours []int) ([]model.Slot, error)
	Delete(ctx context.Context, id string) error
}

type Registrations interface {
	List(ctx context.Context, status string) ([]model.ExpandedRegistration, error)
	Queue(ctx context.Context) ([]model.ExpandedRegistration, error)
	History(ctx context.Context) ([]model.ExpandedRegistration, error)
	Get(ctx context.Context, id string) (model.ExpandedRegistration, error)
	Stats(ctx context.Context) (model.Stats, error)
}

type Incidents interface {
	List(ctx context.Context, status string) ([]model.Incident, error)
	Resolve(ctx context.Context, id string) (model.Incident, error)
}

// Notifier tells live dashboards that something changed.
type Notifier interface {
	Notify(ctx context.Context, kind, resourceID string)
}

type Deps struct {
	Departments   Departments
	Codes         Codes
	Slots         Slots
	Registrations Registrations
	Incidents     Incidents
	Records       *records.Service
	Notifier      Notifier
	Live          http.HandlerFunc
}

type ClinicHandler struct {
	Deps
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewClinicHandler(deps Deps, logger *slog.Logger, loc *time.Location) *ClinicHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ClinicHandler{Deps: deps, logger: logger, loc: loc, now: time.Now}
}

func (h *ClinicHandler) Register(mux *http.ServeMux) {
	route := func(pattern string, cap auth.Capability, fn http.HandlerFunc) {
		mux.Handle(pattern, httpx.RequireCapability(cap)(fn))
	}

	route("GET /api/v1/clinic/departments", auth.CapManageDepartments, h.ListDepartments)
	route("POST /api/v1/clinic/departments", auth.CapManageDepartments, h.CreateDepartment)
	route("PATCH /api/v1/clinic/departments/{id}", auth.CapManageDepartments, h.UpdateDepartment)
	route("DELETE /api/v1/clinic/departments/{id}", auth.CapManageDepartments, h.DeleteDepartment)

	route("GET /api/v1/clinic/codes", auth.CapManageAccessCodes, h.ListCodes)
	route("POST /api/v1/clinic/codes", auth.CapManageAccessCodes, h.GenerateCodes)
	route("DELETE /api/v1/clinic/codes/{id}", auth.CapManageAccessCodes, h.DeleteCode)

	route("GET /api/v1/clinic/slots", auth.CapManageSlots, h.ListSlots)
	route("POST /api/v1/clinic/slots", auth.CapManageSlots, h.CreateSlots)
	route("DELETE /api/v1/clinic/slots/{id}", auth.CapManageSlots, h.DeleteSlot)

	route("GET /api/v1/clinic/registrations", auth.CapViewRegistrations, h.ListRegistrations)
	route("GET /api/v1/clinic/stats", auth.CapViewStats, h.Stats)
	route("GET /api/v1/clinic/queue", auth.CapViewPatientQueue, h.Queue)
	route("GET /api/v1/clinic/history", auth.CapViewPatientHistory, h.History)
	route("GET /api/v1/clinic/patients/{id}", auth.CapViewPatientDetail, h.Patient)
	route("PUT /api/v1/clinic/records/{id}", auth.CapFileMedicalRecord, h.FileRecord)

	route("GET /api/v1/clinic/incidents", auth.CapManageSlots, h.ListIncidents)
	route("POST /api/v1/clinic/incidents/{id}/resolve", auth.CapManageSlots, h.ResolveIncident)

	if h.Live != nil {
		mux.Handle("GET /api/v1/clinic/live", httpx.RequireAnyCapability(
			auth.CapViewStats, auth.CapViewPatientQueue,
		)(h.Live))
	}
}

func (h *ClinicHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.Departments.List(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"departments": depts})
}

type departmentRequest struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

func (h *ClinicHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := ""
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if name == "" {
		writeValidation(w, map[string]string{"name": "required"})
		return
	}
	dept, err := h.Departments.Create(r.Context(), name)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dept)
}

func (h *ClinicHandler) UpdateDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == nil && req.IsActive == nil {
		writeValidation(w, map[string]string{"name": "name or is_active required"})
		return
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			writeValidation(w, map[string]string{"name": "must not be empty"})
			return
		}
		req.Name = &trimmed
	}
	dept, err := h.Departments.Update(r.Context(), r.PathValue("id"), req.Name, req.IsActive)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dept)
}

func (h *ClinicHandler) DeleteDepartment(w http.ResponseWriter, r *http.Request) {
	if err := h.Departments.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ClinicHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != "used" && status != "unused" {
		httpx.WriteError(w, http.StatusBadRequest, "status must be used or unused")
		return
	}
	codes, err := h.Codes.List(r.Context(), status)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"codes": codes})
}

type generateCodesRequest struct {
	Count int `json:"count"`
}

func (h *ClinicHandler) GenerateCodes(w http.ResponseWriter, r *http.Request) {
	var req generateCodesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Count < 1 || req.Count > 100 {
		writeValidation(w, map[string]string{"count": "must be between 1 and 100"})
		return
	}
	codes, err := h.Codes.Generate(r.Context(), req.Count)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if len(codes) < req.Count {
		h.logger.WarnContext(r.Context(), "code space exhausted", "requested", req.Count, "generated", len(codes))
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"codes": codes})
}

func (h *ClinicHandler) DeleteCode(w http.ResponseWriter, r *http.Request) {
	if err := h.Codes.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ClinicHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := slotplan.Range(q.Get("from"), q.Get("to"), h.now(), h.loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	slots, err := h.Slots.List(r.Context(), from, to)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"days": clinicdata.GroupByDate(slots)})
}

type createSlotsRequest struct {
	Date  string `json:"date"`
	Hours []int  `json:"hours"`
}

func (h *ClinicHandler) CreateSlots(w http.ResponseWriter, r *http.Request) {
	var req createSlotsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	hours, err := slotplan.Plan(req.Date, req.Hours, h.now(), h.loc)
	if err != nil {
		field := "hours"
		if errors.Is(err, slotplan.ErrInvalidDate) {
			field = "date"
		}
		writeValidation(w, map[string]string{field: err.Error()})
		return
	}

	ctx := r.Context()
	slots, err := h.Slots.Create(ctx, req.Date, hours)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if len(slots) > 0 {
		h.notify(ctx, live.KindSlotChanged, "")
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"slots": slots})
}

func (h *ClinicHandler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Slots.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.notify(r.Context(), live.KindSlotChanged, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ClinicHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != model.StatusPending && status != model.StatusCompleted {
		httpx.WriteError(w, http.StatusBadRequest, "status must be pending or completed")
		return
	}
	regs, err := h.Registrations.List(r.Context(), status)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"registrations": regs})
}

func (h *ClinicHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Registrations.Stats(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *ClinicHandler) Queue(w http.ResponseWriter, r *http.Request) {
	regs, err := h.Registrations.Queue(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"registrations": regs})
}

func (h *ClinicHandler) History(w http.ResponseWriter, r *http.Request) {
	regs, err := h.Registrations.History(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"registrations": regs})
}

func (h *ClinicHandler) Patient(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Registrations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reg)
}

func (h *ClinicHandler) FileRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IdentityFromRequest(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var rec model.MedicalRecord
	if err := httpx.DecodeJSON(r, &rec); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	reg, err := h.Records.Complete(ctx, r.PathValue("id"), id.UserID, rec)
	var ve *records.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &ve):
		writeValidation(w, ve.Fields)
		return
	case errors.Is(err, records.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, records.ErrAlreadyCompleted):
		httpx.WriteError(w, http.StatusConflict, err.Error())
		return
	default:
		h.writeStoreError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "visit completed", "registration_id", reg.ID, "physiotherapist_id", id.UserID)
	h.notify(ctx, live.KindVisitCompleted, reg.ID)
	httpx.WriteJSON(w, http.StatusOK, reg)
}

func (h *ClinicHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = model.IncidentOpen
	}
	if status == "all" {
		status = ""
	} else if status != model.IncidentOpen && status != model.IncidentResolved {
		httpx.WriteError(w, http.StatusBadRequest, "status must be open, resolved or all")
		return
	}
	incidents, err := h.Incidents.List(r.Context(), status)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func (h *ClinicHandler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.Incidents.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "incident resolved", "incident_id", inc.ID, "kind", inc.Kind)
	httpx.WriteJSON(w, http.StatusOK, inc)
}

func (h *ClinicHandler) notify(ctx context.Context, kind, resourceID string) {
	if h.Notifier != nil {
		h.Notifier.Notify(ctx, kind, resourceID)
	}
}

func (h *ClinicHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrInUse):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrDuplicate), errors.Is(err, storage.ErrRejected):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "clinic store failed", "err", err, "path", r.URL.Path)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeValidation(w http.ResponseWriter, fields map[string]string) {
	httpx.WriteError(w, http.StatusUnprocessableEntity, "validation failed", map[string]any{"fields": fields})
}
