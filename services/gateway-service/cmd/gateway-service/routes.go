package main

import (
	"embed"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/physiobook/physiobook/libs/auth"
	"github.com/physiobook/physiobook/libs/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed assets/gateway.v1.yaml
var openAPISpec embed.FS

type upstreams struct {
	Auth    *url.URL
	Booking *url.URL
	Clinic  *url.URL
}

// clinicScopes maps clinic path prefixes to the capabilities that may use them.
// clinic-service re-checks per method; this keeps unauthorised traffic off it.
var clinicScopes = []struct {
	prefix string
	caps   []auth.Capability
}{
	{"/api/v1/clinic/departments", []auth.Capability{auth.CapManageDepartments}},
	{"/api/v1/clinic/codes", []auth.Capability{auth.CapManageAccessCodes}},
	{"/api/v1/clinic/slots", []auth.Capability{auth.CapManageSlots}},
	{"/api/v1/clinic/incidents", []auth.Capability{auth.CapManageSlots}},
	{"/api/v1/clinic/registrations", []auth.Capability{auth.CapViewRegistrations}},
	{"/api/v1/clinic/stats", []auth.Capability{auth.CapViewStats}},
	{"/api/v1/clinic/queue", []auth.Capability{auth.CapViewPatientQueue}},
	{"/api/v1/clinic/history", []auth.Capability{auth.CapViewPatientHistory}},
	{"/api/v1/clinic/patients", []auth.Capability{auth.CapViewPatientDetail}},
	{"/api/v1/clinic/records", []auth.Capability{auth.CapFileMedicalRecord}},
	{"/api/v1/clinic/live", []auth.Capability{auth.CapViewStats, auth.CapViewPatientQueue}},
}

func registerRoutes(mux *http.ServeMux, up upstreams, verifier httpx.TokenVerifier, codeLimit httpx.Middleware) {
	authProxy := newProxy(up.Auth)
	bookingProxy := newProxy(up.Booking)
	clinicProxy := newProxy(up.Clinic)

	registerProxy(mux, "/api/v1/auth", authProxy)
	registerProxy(mux, "/.well-known/jwks.json", authProxy)

	// The code gate gets its own tighter limit; the code space is small.
	mux.Handle("/api/v1/public/codes/validate", codeLimit(bookingProxy))
	registerProxy(mux, "/api/v1/public", bookingProxy)

	requireAuth := httpx.RequireAuth(verifier)
	for _, scope := range clinicScopes {
		h := requireAuth(httpx.RequireAnyCapability(scope.caps...)(clinicProxy))
		if scope.prefix == "/api/v1/clinic/live" {
			h = tokenFromQuery(h)
		}
		registerProxy(mux, scope.prefix, h)
	}
	registerProxy(mux, "/api/v1/clinic", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not found")
	}))

	mux.HandleFunc("GET /openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openAPISpec.ReadFile("assets/gateway.v1.yaml")
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "openapi not available")
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func newProxy(target *url.URL) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(target)
	p.Transport = otelhttp.NewTransport(http.DefaultTransport)
	p.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, _ error) {
		httpx.WriteError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return p
}

// tokenFromQuery lets browser websockets, which cannot set headers, pass the
// access token as ?access_token=. The parameter is stripped before proxying.
func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if tok := q.Get("access_token"); tok != "" && r.Header.Get("Authorization") == "" {
			r.Header.Set("Authorization", "Bearer "+tok)
			q.Del("access_token")
			r.URL.RawQuery = q.Encode()
		}
		next.ServeHTTP(w, r)
	})
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
