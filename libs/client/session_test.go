package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/physiobook/physiobook/libs/auth"
	"github.com/physiobook/physiobook/libs/httpx"
)

func authServer(t *testing.T, role auth.Role, ttl time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login", "/api/v1/auth/refresh":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			refresh := "refresh-1"
			if body["refresh_token"] != "" {
				refresh = body["refresh_token"] + "-next"
			}
			httpx.WriteJSON(w, http.StatusOK, Tokens{
				AccessToken:  "access",
				RefreshToken: refresh,
				TokenType:    "Bearer",
				ExpiresAt:    time.Now().Add(ttl),
				Profile:      Profile{UserID: "u-1", Email: "pt@clinic.example", Role: role},
			})
		case "/api/v1/auth/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionLifecycleEvents(t *testing.T) {
	srv := authServer(t, auth.RolePhysiotherapist, time.Hour)
	defer srv.Close()

	s := NewSession(New(srv.URL), quietLogger())
	defer s.Close()

	var mu sync.Mutex
	var got []EventKind
	s.Subscribe(func(SessionEvent) { panic("broken subscriber") })
	s.Subscribe(func(e SessionEvent) {
		mu.Lock()
		got = append(got, e.Kind)
		mu.Unlock()
	})

	ctx := context.Background()
	state, err := s.SignIn(ctx, "pt@clinic.example", "secret")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !state.Capabilities.Has(auth.CapFileMedicalRecord) || state.Capabilities.Has(auth.CapManageSlots) {
		t.Fatalf("unexpected capabilities %v", state.Capabilities.List())
	}
	if len(state.Routes) == 0 || state.Routes[0].Path != "/clinic/queue" {
		t.Fatalf("unexpected routes %+v", state.Routes)
	}
	if s.Client() == nil || s.AccessToken() != "access" {
		t.Fatal("expected access token after sign in")
	}

	refreshed, err := s.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken != "refresh-1-next" {
		t.Fatalf("expected rotated refresh token, got %q", refreshed.RefreshToken)
	}

	if err := s.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, ok := s.Current(); ok {
		t.Fatal("expected no session after sign out")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []EventKind{SignedIn, Refreshed, SignedOut}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSessionExpires(t *testing.T) {
	srv := authServer(t, auth.RoleAdmin, 50*time.Millisecond)
	defer srv.Close()

	s := NewSession(New(srv.URL), quietLogger())
	defer s.Close()

	expired := make(chan SessionEvent, 1)
	s.Subscribe(func(e SessionEvent) {
		if e.Kind == Expired {
			expired <- e
		}
	})

	if _, err := s.SignIn(context.Background(), "admin@clinic.example", "secret"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	select {
	case e := <-expired:
		if e.State.Profile.UserID != "u-1" {
			t.Fatalf("expected expired state to carry the profile, got %+v", e.State.Profile)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Expired event")
	}
	if _, ok := s.Current(); ok {
		t.Fatal("expected session cleared after expiry")
	}
}

func TestUnsubscribeAndRejectUnknownRole(t *testing.T) {
	srv := authServer(t, auth.Role(""), time.Hour)
	defer srv.Close()

	s := NewSession(New(srv.URL), quietLogger())
	calls := 0
	unsubscribe := s.Subscribe(func(SessionEvent) { calls++ })
	unsubscribe()
	unsubscribe()

	if _, err := s.SignIn(context.Background(), "x@clinic.example", "secret"); err == nil {
		t.Fatal("expected sign in to fail for an account without a role")
	}
	if calls != 0 {
		t.Fatalf("expected no events, got %d", calls)
	}
}
