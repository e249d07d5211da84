package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/physiobook/physiobook/libs/auth"
)

// Identity headers are set by the gateway after token verification and trusted
// by the services behind it.
const (
	UserIDHeader   = "X-User-Id"
	RoleHeader     = "X-Role"
	UserNameHeader = "X-User-Name"
)

type Identity struct {
	UserID string
	Role   auth.Role
	Name   string
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}

// IdentityFromRequest prefers the context identity and falls back to the forwarded headers.
func IdentityFromRequest(r *http.Request) (Identity, bool) {
	if id, ok := IdentityFromContext(r.Context()); ok {
		return id, true
	}
	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	role, err := auth.ParseRole(r.Header.Get(RoleHeader))
	if userID == "" || err != nil {
		return Identity{}, false
	}
	return Identity{UserID: userID, Role: role, Name: r.Header.Get(UserNameHeader)}, true
}

// WithoutIdentityHeaders drops client-supplied identity headers so only the
// gateway can set them.
func WithoutIdentityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(UserIDHeader)
		r.Header.Del(RoleHeader)
		r.Header.Del(UserNameHeader)
		next.ServeHTTP(w, r)
	})
}

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

// RequireAuth verifies the bearer token and forwards the identity as headers and context.
func RequireAuth(verifier TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			role, err := auth.ParseRole(claims.Role)
			if err != nil {
				WriteError(w, http.StatusForbidden, "unknown role")
				return
			}

			id := Identity{UserID: claims.Subject, Role: role, Name: claims.Name}
			r.Header.Set(UserIDHeader, id.UserID)
			r.Header.Set(RoleHeader, string(id.Role))
			if id.Name != "" {
				r.Header.Set(UserNameHeader, id.Name)
			} else {
				r.Header.Del(UserNameHeader)
			}
			ctx := context.WithValue(r.Context(), ctxKeyIdentity, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects callers whose role lacks cap.
func RequireCapability(cap auth.Capability) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromRequest(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "missing identity")
				return
			}
			if !auth.RoleCapabilities(id.Role).Has(cap) {
				WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyCapability passes when the role holds at least one of caps.
func RequireAnyCapability(caps ...auth.Capability) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromRequest(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "missing identity")
				return
			}
			held := auth.RoleCapabilities(id.Role)
			for _, c := range caps {
				if held.Has(c) {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(w, http.StatusForbidden, "forbidden")
		})
	}
}
