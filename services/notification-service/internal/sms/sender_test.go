package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"0812-3456-7890":  "+6281234567890",
		"+62 812 345 678": "+62812345678",
		"62812345678":     "+62812345678",
		"812345678":       "+62812345678",
		"abc":             "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in, "62"); got != want {
			t.Fatalf("NormalizePhone(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestWebhookSender(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "tok")
	if err := s.Send(context.Background(), "+62812", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["to"] != "+62812" || got["body"] != "hello" || auth != "Bearer tok" {
		t.Fatalf("unexpected request body=%v auth=%q", got, auth)
	}
}

func TestWebhookSenderErrors(t *testing.T) {
	if err := NewWebhookSender("", "").Send(context.Background(), "x", "y"); err == nil {
		t.Fatal("expected error without url")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewWebhookSender(srv.URL, "").Send(context.Background(), "x", "y"); err == nil {
		t.Fatal("expected error for non-2xx")
	}
}
