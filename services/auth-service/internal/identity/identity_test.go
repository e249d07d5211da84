package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/physiobook/physiobook/libs/auth"
)

type hsSigner struct{}

func (hsSigner) Sign(c auth.Claims) (string, error) { return auth.SignHS256(c, "test-secret") }

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	svc := NewService(store, hsSigner{}, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		AccessTTL:    15 * time.Minute,
		ResetURLBase: "https://clinic.example/reset/",
	})
	return svc, store
}

func seedUser(t *testing.T, svc *Service, email string, role auth.Role) Profile {
	t.Helper()
	p, err := svc.CreateUser(context.Background(), "admin-0", NewUser{
		Email:    email,
		Password: "correct horse",
		FullName: "Test " + string(role),
		Role:     role,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return p
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	svc, _ := newTestService(t)
	p := seedUser(t, svc, "pt@clinic.example", auth.RolePhysiotherapist)

	tokens, err := svc.Login(context.Background(), "  PT@clinic.example ", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := auth.ParseAndVerifyHS256(tokens.AccessToken, "test-secret")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != p.UserID || claims.Role != string(auth.RolePhysiotherapist) || claims.Name != p.FullName {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if tokens.Profile.UserID != p.UserID || tokens.RefreshToken == "" || tokens.TokenType != "Bearer" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	if !tokens.ExpiresAt.Equal(claims.ExpiresAt.Time) {
		t.Fatalf("expires_at %s does not match token exp %s", tokens.ExpiresAt, claims.ExpiresAt.Time)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	seedUser(t, svc, "admin@clinic.example", auth.RoleAdmin)

	for _, tc := range []struct{ email, password string }{
		{"admin@clinic.example", "wrong password"},
		{"nobody@clinic.example", "correct horse"},
		{"", ""},
	} {
		if _, err := svc.Login(context.Background(), tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%q: expected ErrInvalidCredentials, got %v", tc.email, err)
		}
	}
}

func TestRefreshRotatesOnce(t *testing.T) {
	svc, _ := newTestService(t)
	seedUser(t, svc, "doc@clinic.example", auth.RolePhysician)
	ctx := context.Background()

	first, err := svc.Login(ctx, "doc@clinic.example", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token must rotate")
	}
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Fatalf("reused refresh token: expected ErrInvalidRefresh, got %v", err)
	}

	if err := svc.Logout(ctx, second.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := svc.Logout(ctx, second.RefreshToken); err != nil {
		t.Fatalf("logout twice: %v", err)
	}
	if _, err := svc.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Fatalf("refresh after logout: expected ErrInvalidRefresh, got %v", err)
	}
}

func TestRefreshExpired(t *testing.T) {
	svc, _ := newTestService(t)
	seedUser(t, svc, "doc@clinic.example", auth.RolePhysician)
	ctx := context.Background()

	tokens, err := svc.Login(ctx, "doc@clinic.example", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(60 * 24 * time.Hour) }
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Fatalf("expected ErrInvalidRefresh, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, svc, "pt@clinic.example", auth.RolePhysiotherapist)
	ctx := context.Background()

	session, err := svc.Login(ctx, "pt@clinic.example", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.RequestReset(ctx, "ghost@clinic.example"); err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if len(store.outbox) != 0 {
		t.Fatal("unknown email must not queue a reset")
	}

	if err := svc.RequestReset(ctx, "pt@clinic.example"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if len(store.outbox) != 1 {
		t.Fatalf("expected one queued reset, got %d", len(store.outbox))
	}
	link := store.outbox[0].Link
	if !strings.HasPrefix(link, "https://clinic.example/reset?token=") {
		t.Fatalf("unexpected link %q", link)
	}
	raw := strings.TrimPrefix(link, "https://clinic.example/reset?token=")

	var ve *ValidationError
	if err := svc.ConfirmReset(ctx, raw, "short"); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for short password, got %v", err)
	}
	if err := svc.ConfirmReset(ctx, raw, "new password 1"); err != nil {
		t.Fatalf("confirm reset: %v", err)
	}
	if err := svc.ConfirmReset(ctx, raw, "new password 2"); !errors.Is(err, ErrInvalidReset) {
		t.Fatalf("reset token reuse: expected ErrInvalidReset, got %v", err)
	}

	if _, err := svc.Login(ctx, "pt@clinic.example", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := svc.Login(ctx, "pt@clinic.example", "new password 1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Fatalf("sessions from before the reset must be revoked, got %v", err)
	}
}

func TestUserAdministration(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	admin := seedUser(t, svc, "admin@clinic.example", auth.RoleAdmin)

	_, err := svc.CreateUser(ctx, admin.UserID, NewUser{Email: "x", Password: "123", Role: "nurse"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"email", "password", "role", "full_name"} {
		if ve.Fields[field] == "" {
			t.Fatalf("expected %s field error, got %v", field, ve.Fields)
		}
	}

	p, err := svc.CreateUser(ctx, admin.UserID, NewUser{
		Email: "fisio@clinic.example", Password: "long enough", FullName: "Fisio", Role: "fisioterapis",
	})
	if err != nil {
		t.Fatalf("create with legacy alias: %v", err)
	}
	if p.Role != auth.RolePhysiotherapist {
		t.Fatalf("expected alias to parse as physiotherapist, got %s", p.Role)
	}
	if _, err := svc.CreateUser(ctx, admin.UserID, NewUser{
		Email: "fisio@clinic.example", Password: "long enough", FullName: "Dup", Role: auth.RoleAdmin,
	}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	role := "dokter"
	updated, err := svc.UpdateUser(ctx, admin.UserID, p.UserID, nil, &role)
	if err != nil || updated.Role != auth.RolePhysician {
		t.Fatalf("update role: %+v (%v)", updated, err)
	}

	if err := svc.DeleteUser(ctx, admin.UserID, admin.UserID); !errors.Is(err, ErrSelfDelete) {
		t.Fatalf("expected ErrSelfDelete, got %v", err)
	}
	if err := svc.DeleteUser(ctx, admin.UserID, p.UserID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	users, _ := svc.ListUsers(ctx)
	if len(users) != 1 {
		t.Fatalf("expected 1 user left, got %d", len(users))
	}
	if len(store.audit) < 4 {
		t.Fatalf("expected admin actions to be audited, got %v", store.audit)
	}
}
