package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/physiobook/physiobook/libs/httpx"
	"github.com/physiobook/physiobook/services/booking-service/internal/booking"
	"github.com/physiobook/physiobook/services/booking-service/internal/model"
	"github.com/physiobook/physiobook/services/booking-service/internal/stage"
)

const (
	StageTokenHeader        = "X-Stage-Token"
	ConfirmationTokenHeader = "X-Confirmation-Token"
)

type BookingHandler struct {
	gate     *booking.Gate
	catalog  *booking.Catalog
	workflow *booking.Workflow
	stage    stage.Store
	logger   *slog.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewBookingHandler(gate *booking.Gate, catalog *booking.Catalog, workflow *booking.Workflow, stageStore stage.Store, logger *slog.Logger, loc *time.Location) *BookingHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingHandler{
		gate:     gate,
		catalog:  catalog,
		workflow: workflow,
		stage:    stageStore,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/public/codes/validate", h.ValidateCode)
	mux.HandleFunc("GET /api/v1/public/slots", h.Slots)
	mux.HandleFunc("GET /api/v1/public/departments", h.Departments)
	mux.HandleFunc("POST /api/v1/public/registrations", h.Submit)
	mux.HandleFunc("GET /api/v1/public/registrations/confirmation", h.Confirmation)
}

type validateCodeRequest struct {
	Code string `json:"code"`
}

type validateCodeResponse struct {
	StageToken string `json:"stage_token"`
	CodeID     string `json:"code_id"`
}

func (h *BookingHandler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var req validateCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	code, err := h.gate.Validate(ctx, req.Code)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}

	token, err := h.stage.PutCode(ctx, code.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "stage code failed", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "could not start booking")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, validateCodeResponse{StageToken: token, CodeID: code.ID})
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	on := strings.TrimSpace(r.URL.Query().Get("date"))
	if on != "" {
		if _, err := time.Parse(time.DateOnly, on); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	today := h.now().In(h.loc).Format(time.DateOnly)
	days, err := h.catalog.Available(r.Context(), today, on)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (h *BookingHandler) Departments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.catalog.Departments(r.Context())
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"departments": depts})
}

type submitResponse struct {
	Registration      model.ExpandedRegistration `json:"registration"`
	ConfirmationToken string                     `json:"confirmation_token"`
}

func (h *BookingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stageToken := strings.TrimSpace(r.Header.Get(StageTokenHeader))
	if stageToken == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "access code required")
		return
	}
	codeID, err := h.stage.Code(ctx, stageToken)
	if err != nil {
		if !errors.Is(err, stage.ErrNotFound) {
			h.logger.ErrorContext(ctx, "stage lookup failed", "err", err)
		}
		httpx.WriteError(w, http.StatusUnauthorized, "access code expired, enter it again")
		return
	}

	var form model.RegistrationForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	reg, err := h.workflow.Submit(ctx, form.SlotID, codeID, form)
	if err != nil {
		if codeSpent(err) {
			h.clearCode(r, stageToken)
		}
		h.writeBookingError(w, r, err)
		return
	}

	h.clearCode(r, stageToken)
	confirmation, err := h.stage.PutRegistration(ctx, reg)
	if err != nil {
		h.logger.WarnContext(ctx, "stage registration failed", "registration_id", reg.ID, "err", err)
	}
	httpx.WriteJSON(w, http.StatusCreated, submitResponse{Registration: reg, ConfirmationToken: confirmation})
}

// codeSpent is true once the staged code can no longer start a booking: it
// was used elsewhere, or a submission got past the slot claim with it.
func codeSpent(err error) bool {
	var (
		consume *booking.CodeConsumptionFailed
		persist *booking.RegistrationPersistFailed
	)
	return errors.Is(err, booking.ErrInvalidCode) || errors.As(err, &consume) || errors.As(err, &persist)
}

func (h *BookingHandler) clearCode(r *http.Request, stageToken string) {
	if err := h.stage.ClearCode(r.Context(), stageToken); err != nil {
		h.logger.WarnContext(r.Context(), "clear staged code failed", "err", err)
	}
}

func (h *BookingHandler) Confirmation(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get(ConfirmationTokenHeader))
	if token == "" {
		httpx.WriteError(w, http.StatusNotFound, "no registration to confirm")
		return
	}
	reg, err := h.stage.TakeRegistration(r.Context(), token)
	if err != nil {
		if !errors.Is(err, stage.ErrNotFound) {
			h.logger.ErrorContext(r.Context(), "take staged registration failed", "err", err)
		}
		httpx.WriteError(w, http.StatusNotFound, "no registration to confirm")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"registration": reg})
}

// writeBookingError maps the booking error taxonomy onto HTTP responses.
func (h *BookingHandler) writeBookingError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *booking.ValidationError
		consume    *booking.CodeConsumptionFailed
		persist    *booking.RegistrationPersistFailed
	)
	switch {
	case errors.As(err, &validation):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation failed", map[string]any{"fields": validation.Fields})
	case errors.Is(err, booking.ErrInvalidCode):
		httpx.WriteError(w, http.StatusNotFound, "invalid access code")
	case errors.Is(err, booking.ErrSlotAlreadyTaken):
		httpx.WriteError(w, http.StatusConflict, "slot already taken", map[string]any{"refresh_slots": true})
	case errors.As(err, &consume):
		httpx.WriteError(w, http.StatusInternalServerError, "booking could not be completed, contact the clinic", map[string]any{
			"slot_id": consume.SlotID,
		})
	case errors.As(err, &persist):
		httpx.WriteError(w, http.StatusInternalServerError, "registration could not be saved, contact the clinic", map[string]any{
			"slot_id": persist.SlotID,
			"code_id": persist.CodeID,
		})
	case errors.Is(err, booking.ErrNetwork):
		h.logger.ErrorContext(r.Context(), "booking store unreachable", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "service unavailable, try again")
	default:
		h.logger.ErrorContext(r.Context(), "booking request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
