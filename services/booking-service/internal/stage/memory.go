package stage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/physiobook/physiobook/services/booking-service/internal/model"
)

type entry[T any] struct {
	value   T
	expires time.Time
}

// MemoryStore is a single-process Store, used when REDIS_ADDR is empty.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	codes map[string]entry[string]
	regs  map[string]entry[model.ExpandedRegistration]
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryStore{
		ttl:   ttl,
		now:   time.Now,
		codes: map[string]entry[string]{},
		regs:  map[string]entry[model.ExpandedRegistration]{},
	}
}

func (s *MemoryStore) PutCode(_ context.Context, codeID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.codes[token] = entry[string]{value: codeID, expires: s.now().Add(s.ttl)}
	return token, nil
}

func (s *MemoryStore) Code(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.codes[token]
	if !ok || !s.now().Before(e.expires) {
		delete(s.codes, token)
		return "", ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) ClearCode(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.codes, token)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PutRegistration(_ context.Context, reg model.ExpandedRegistration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.regs[token] = entry[model.ExpandedRegistration]{value: reg, expires: s.now().Add(s.ttl)}
	return token, nil
}

func (s *MemoryStore) TakeRegistration(_ context.Context, token string) (model.ExpandedRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.regs[token]
	delete(s.regs, token)
	if !ok || !s.now().Before(e.expires) {
		return model.ExpandedRegistration{}, ErrNotFound
	}
	return e.value, nil
}
