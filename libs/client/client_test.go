package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/physiobook/physiobook/libs/httpx"
	"github.com/physiobook/physiobook/libs/optimistic"
)

func TestRegisterMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   map[string]any
		check  func(t *testing.T, err error)
	}{
		{
			name:   "slot taken",
			status: http.StatusConflict,
			body:   map[string]any{"error": "slot already taken", "refresh_slots": true},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrSlotAlreadyTaken) {
					t.Fatalf("expected ErrSlotAlreadyTaken, got %v", err)
				}
			},
		},
		{
			name:   "validation",
			status: http.StatusUnprocessableEntity,
			body:   map[string]any{"error": "validation failed", "fields": map[string]string{"phone": "invalid phone number"}},
			check: func(t *testing.T, err error) {
				var ve *ValidationError
				if !errors.As(err, &ve) || ve.Fields["phone"] == "" {
					t.Fatalf("expected phone validation error, got %v", err)
				}
			},
		},
		{
			name:   "partial failure",
			status: http.StatusInternalServerError,
			body:   map[string]any{"error": "registration could not be saved", "slot_id": "s-1", "code_id": "c-1"},
			check: func(t *testing.T, err error) {
				var bf *BookingFailure
				if !errors.As(err, &bf) || bf.SlotID != "s-1" || bf.CodeID != "c-1" {
					t.Fatalf("expected booking failure with ids, got %v", err)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get(StageTokenHeader) != "stage-1" {
					t.Errorf("missing stage token header")
				}
				httpx.WriteJSON(w, tc.status, tc.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL).Register(context.Background(), "stage-1", RegistrationForm{SlotID: "s-1"})
			tc.check(t, err)
		})
	}
}

func TestValidateCodeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "invalid access code")
	}))
	defer srv.Close()

	if _, err := New(srv.URL).ValidateCode(context.Background(), "0000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := New(url).AvailableSlots(context.Background(), ""); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestDashboardDeleteRollsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/clinic/codes":
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"codes": []AccessCode{{ID: "a", Code: "1234"}, {ID: "b", Code: "5678"}}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/clinic/slots":
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"days": []SlotDay{}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/clinic/departments":
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"departments": []Department{}})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/clinic/codes/a":
			w.WriteHeader(http.StatusNoContent)
		default:
			httpx.WriteError(w, http.StatusForbidden, "forbidden")
		}
	}))
	defer srv.Close()

	d := NewDashboard(New(srv.URL))
	ctx := context.Background()
	if err := d.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := d.DeleteCode(ctx, "a"); err != nil {
		t.Fatalf("delete a: %v", err)
	}
	if got := d.Codes.Items(); len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("expected only b left, got %+v", got)
	}

	err := d.DeleteCode(ctx, "b")
	var rb *optimistic.RollbackError
	if !errors.As(err, &rb) || !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected rollback wrapping forbidden, got %v", err)
	}
	if got := d.Codes.Items(); len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("expected b restored, got %+v", got)
	}
}
