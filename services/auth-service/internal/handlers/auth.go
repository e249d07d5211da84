package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/physiobook/physiobook/libs/auth"
	"github.com/physiobook/physiobook/libs/httpx"
	"github.com/physiobook/physiobook/services/auth-service/internal/identity"
	"github.com/physiobook/physiobook/services/auth-service/internal/storage"
	"github.com/physiobook/physiobook/services/auth-service/internal/tokens"
)

type AuditLog interface {
	ListRecent(ctx context.Context, limit int) ([]storage.AuditEvent, error)
}

type AuthHandler struct {
	svc    *identity.Service
	signer tokens.Signer
	audit  AuditLog
	logger *slog.Logger
}

func NewAuthHandler(svc *identity.Service, signer tokens.Signer, audit AuditLog, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, signer: signer, audit: audit, logger: logger}
}

func (h *AuthHandler) Register(mux *http.ServeMux) {
	authed := httpx.RequireAuth(h.signer)
	admin := func(fn http.HandlerFunc) http.Handler {
		return authed(httpx.RequireCapability(auth.CapManageUsers)(fn))
	}

	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	mux.Handle("GET /api/v1/auth/me", authed(http.HandlerFunc(h.Me)))
	mux.HandleFunc("POST /api/v1/auth/password-reset", h.RequestReset)
	mux.HandleFunc("POST /api/v1/auth/password-reset/confirm", h.ConfirmReset)
	mux.HandleFunc("GET /.well-known/jwks.json", h.JWKS)
	mux.HandleFunc("POST /api/v1/auth/rotate", h.Rotate)

	mux.Handle("GET /api/v1/auth/users", admin(h.ListUsers))
	mux.Handle("POST /api/v1/auth/users", admin(h.CreateUser))
	mux.Handle("PATCH /api/v1/auth/users/{id}", admin(h.UpdateUser))
	mux.Handle("DELETE /api/v1/auth/users/{id}", admin(h.DeleteUser))
	mux.Handle("GET /api/v1/auth/audit", admin(h.Audit))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	UserID       string            `json:"user_id"`
	Role         auth.Role         `json:"role"`
	Name         string            `json:"name"`
	Capabilities []auth.Capability `json:"capabilities"`
	Routes       []auth.Route      `json:"routes"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	tokens, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	tokens, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	caps := auth.RoleCapabilities(id.Role)
	httpx.WriteJSON(w, http.StatusOK, meResponse{
		UserID:       id.UserID,
		Role:         id.Role,
		Name:         id.Name,
		Capabilities: caps.List(),
		Routes:       auth.RoutesFor(caps),
	})
}

func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.RequestReset(r.Context(), req.Email); err != nil {
		h.logger.ErrorContext(r.Context(), "password reset request failed", "err", err)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *AuthHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ConfirmReset(r.Context(), req.Token, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	set := h.signer.JWKS()
	if len(set.Keys) == 0 {
		httpx.WriteError(w, http.StatusNotFound, "jwks not available")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, set)
}

// Rotate switches the active signing key. It is guarded by X-Rotate-Key.
func (h *AuthHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	if !h.signer.CanRotate() {
		httpx.WriteError(w, http.StatusBadRequest, "rotation not enabled")
		return
	}
	key := r.Header.Get("X-Rotate-Key")
	if key == "" || key != h.signer.RotateKey() {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		ActiveKid string `json:"active_kid"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil || req.ActiveKid == "" {
		httpx.WriteError(w, http.StatusBadRequest, "active_kid is required")
		return
	}
	if err := h.signer.SetActiveKid(req.ActiveKid); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid active_kid")
		return
	}
	h.logger.InfoContext(r.Context(), "signing key rotated", "active_kid", req.ActiveKid)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req identity.NewUser
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := httpx.IdentityFromContext(r.Context())
	p, err := h.svc.CreateUser(r.Context(), actor.UserID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName *string `json:"full_name"`
		Role     *string `json:"role"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := httpx.IdentityFromContext(r.Context())
	p, err := h.svc.UpdateUser(r.Context(), actor.UserID, r.PathValue("id"), req.FullName, req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := httpx.IdentityFromContext(r.Context())
	if err := h.svc.DeleteUser(r.Context(), actor.UserID, r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	events, err := h.audit.ListRecent(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *identity.ValidationError
	switch {
	case errors.As(err, &ve):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation failed", map[string]any{"fields": ve.Fields})
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrInvalidRefresh):
		httpx.WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrInvalidReset):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrEmailTaken), errors.Is(err, identity.ErrSelfDelete):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "auth request failed", "err", err, "path", r.URL.Path)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
