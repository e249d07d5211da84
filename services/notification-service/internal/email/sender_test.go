package email

import (
	"context"
	"strings"
	"testing"
)

func TestBuildMessageHeaders(t *testing.T) {
	msg := buildMessage("clinic@test", "pat@test", "Hello", "Body line")
	for _, want := range []string{"From: clinic@test\r\n", "To: pat@test\r\n", "Subject: Hello\r\n", "\r\n\r\nBody line\r\n"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSendRejectsHeaderInjection(t *testing.T) {
	s := NewSMTPSender(Config{Host: "127.0.0.1", Port: "1"})
	if err := s.Send(context.Background(), "a@test\r\nBcc: b@test", "x", "y"); err == nil {
		t.Fatal("expected error for recipient with line break")
	}
}

func TestDefaultFrom(t *testing.T) {
	s := NewSMTPSender(Config{Host: "mailpit", Port: "1025"})
	if s.from != "no-reply@physiobook.local" || s.addr != "mailpit:1025" || s.auth != nil {
		t.Fatalf("unexpected sender %+v", s)
	}
}
