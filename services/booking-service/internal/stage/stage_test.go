package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/physiobook/physiobook/services/booking-service/internal/model"
)

func TestMemoryStoreCodeLifecycle(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	token, err := s.PutCode(ctx, "code-1")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if got, err := s.Code(ctx, token); err != nil || got != "code-1" {
		t.Fatalf("expected code-1, got %q (%v)", got, err)
	}
	_ = s.ClearCode(ctx, token)
	if _, err := s.Code(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	token, _ := s.PutCode(ctx, "code-1")
	now = now.Add(2 * time.Minute)
	if _, err := s.Code(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestMemoryStoreTakeRegistrationOnce(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	reg := model.ExpandedRegistration{Registration: model.Registration{ID: "r-1"}, SlotHour: 9}

	token, _ := s.PutRegistration(ctx, reg)
	got, err := s.TakeRegistration(ctx, token)
	if err != nil || got.ID != "r-1" {
		t.Fatalf("expected r-1, got %+v (%v)", got, err)
	}
	if _, err := s.TakeRegistration(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second take to fail, got %v", err)
	}
}
