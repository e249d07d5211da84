package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/physiobook/physiobook/libs/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mark("a"), nil, mark("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("expected a,b got %v", order)
	}
}

func TestRequireAuthForwardsIdentity(t *testing.T) {
	secret := "test-secret"
	token, err := auth.SignHS256(auth.NewClaims("user-1", auth.RolePhysiotherapist, "Budi", time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok || id.UserID != "user-1" || id.Role != auth.RolePhysiotherapist {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get(UserIDHeader) != "user-1" || r.Header.Get(RoleHeader) != "physiotherapist" || r.Header.Get(UserNameHeader) != "Budi" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), WithoutIdentityHeaders, RequireAuth(auth.Verifier{Secret: secret}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(UserIDHeader, "spoofed")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	reqBad := httptest.NewRequest(http.MethodGet, "/", nil)
	reqBad.Header.Set("Authorization", "Bearer badtoken")
	rwBad := httptest.NewRecorder()
	h.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rwBad.Code)
	}

	rwNone := httptest.NewRecorder()
	h.ServeHTTP(rwNone, httptest.NewRequest(http.MethodGet, "/", nil))
	if rwNone.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rwNone.Code)
	}
}

func TestRequireCapability(t *testing.T) {
	h := RequireCapability(auth.CapManageUsers)(okHandler())

	cases := []struct {
		role string
		want int
	}{
		{"admin", http.StatusOK},
		{"dokter", http.StatusForbidden},
		{"physiotherapist", http.StatusForbidden},
		{"owner", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(UserIDHeader, "u")
		req.Header.Set(RoleHeader, tc.role)
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		if rw.Code != tc.want {
			t.Errorf("role %q: expected %d, got %d", tc.role, tc.want, rw.Code)
		}
	}

	either := RequireAnyCapability(auth.CapViewPatientQueue, auth.CapManageUsers)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, "u")
	req.Header.Set(RoleHeader, "physiotherapist")
	rw := httptest.NewRecorder()
	either.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected any-capability pass, got %d", rw.Code)
	}
}

func TestInMemoryRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	h := RateLimit(rl, nil, nil, false)(okHandler())
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		codes = append(codes, rw.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.2, 172.16.0.1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected other client allowed, got %d", rw.Code)
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := rl.Allow(context.Background(), "10.0.0.1"); !ok {
		t.Fatal("expected window reset")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitFailOpen(t *testing.T) {
	open := RateLimit(failingLimiter{}, nil, nil, true)(okHandler())
	rw := httptest.NewRecorder()
	open.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", rw.Code)
	}

	closed := RateLimit(failingLimiter{}, nil, nil, false)(okHandler())
	rw = httptest.NewRecorder()
	closed.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected fail-closed 503, got %d", rw.Code)
	}
}

func TestCORSWildcardSubdomain(t *testing.T) {
	h := WithCORS(DefaultCORSPolicy([]string{"https://*.clinic.example"}, false, time.Minute))(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://book.clinic.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rw.Code)
	}
	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != "https://book.clinic.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if !strings.Contains(rw.Header().Get("Access-Control-Allow-Headers"), "X-Stage-Token") {
		t.Fatal("expected stage token header to be allowed")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected no CORS headers for unknown origin")
	}
}
