package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeAPI struct {
	auth     []string
	created  map[string]any
	deleteID string
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/clinic/codes", func(w http.ResponseWriter, r *http.Request) {
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"codes": []map[string]any{
			{"id": "c1", "code": "0042", "is_used": false, "created_at": "2026-03-01T08:00:00Z"},
		}})
	})
	mux.HandleFunc("POST /api/v1/clinic/slots", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.created)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"slots": []map[string]any{
			{"id": "s1", "date": "2026-03-02", "hour": 8},
			{"id": "s2", "date": "2026-03-02", "hour": 9},
		}})
	})
	mux.HandleFunc("DELETE /api/v1/clinic/departments/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.deleteID = r.PathValue("id")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "department in use"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCodesListSendsToken(t *testing.T) {
	f := &fakeAPI{}
	srv := f.server(t)
	out, err := run(t, "--api", srv.URL, "--token", "tok-1", "codes", "list")
	if err != nil {
		t.Fatalf("codes list: %v", err)
	}
	if !strings.Contains(out, "0042") || !strings.Contains(out, "unused") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if len(f.auth) != 1 || f.auth[0] != "Bearer tok-1" {
		t.Fatalf("expected bearer token, got %v", f.auth)
	}
}

func TestSlotsCreateParsesHours(t *testing.T) {
	f := &fakeAPI{}
	srv := f.server(t)
	out, err := run(t, "--api", srv.URL, "slots", "create", "--date", "2026-03-02", "--hours", "8, 9")
	if err != nil {
		t.Fatalf("slots create: %v", err)
	}
	if !strings.Contains(out, "created 2 slot(s)") {
		t.Fatalf("unexpected output %q", out)
	}
	hours, _ := f.created["hours"].([]any)
	if f.created["date"] != "2026-03-02" || len(hours) != 2 {
		t.Fatalf("unexpected request body %v", f.created)
	}
}

func TestSlotsCreateRejectsBadHours(t *testing.T) {
	if _, err := run(t, "--api", "http://127.0.0.1:1", "slots", "create", "--date", "2026-03-02", "--hours", "8,25"); err == nil {
		t.Fatal("expected error for hour 25")
	}
}

func TestCodesGenerateBounds(t *testing.T) {
	for _, n := range []string{"0", "101", "x"} {
		if _, err := run(t, "--api", "http://127.0.0.1:1", "codes", "generate", n); err == nil {
			t.Fatalf("expected error for N=%s", n)
		}
	}
}

func TestDepartmentDeleteConflictHint(t *testing.T) {
	f := &fakeAPI{}
	srv := f.server(t)
	_, err := run(t, "--api", srv.URL, "departments", "delete", "d1")
	if err == nil || !strings.Contains(err.Error(), "deactivate") {
		t.Fatalf("expected conflict hint, got %v", err)
	}
	if f.deleteID != "d1" {
		t.Fatalf("expected delete of d1, got %q", f.deleteID)
	}
}

func TestParseHours(t *testing.T) {
	got, err := parseHours(" 8,,10 ")
	if err != nil || len(got) != 2 || got[0] != 8 || got[1] != 10 {
		t.Fatalf("unexpected %v (%v)", got, err)
	}
	if _, err := parseHours(" , "); err == nil {
		t.Fatal("expected error for empty hours")
	}
}
