package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/physiobook/physiobook/libs/auth"
)

type memReset struct {
	ResetRequest
	usedAt *time.Time
}

type memStore struct {
	mu      sync.Mutex
	users   map[string]User
	refresh map[string]RefreshToken
	hashes  map[string]string
	resets  map[string]*memReset
	audit   []string
	outbox  []ResetRequest
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]User{},
		refresh: map[string]RefreshToken{},
		hashes:  map[string]string{},
		resets:  map[string]*memReset{},
	}
}

func (m *memStore) UserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memStore) UserByID(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memStore) ListProfiles(context.Context) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Profile{}
	for _, u := range m.users {
		out = append(out, u.Profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memStore) CreateUser(_ context.Context, u User, actorID string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return Profile{}, ErrEmailTaken
		}
	}
	u.CreatedAt = time.Now()
	m.users[u.UserID] = u
	m.audit = append(m.audit, AuditUserCreated)
	return u.Profile, nil
}

func (m *memStore) UpdateProfile(_ context.Context, id string, fullName *string, role *auth.Role, _ string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	if fullName != nil {
		u.FullName = *fullName
	}
	if role != nil {
		u.Role = *role
	}
	m.users[id] = u
	m.audit = append(m.audit, AuditUserUpdated)
	return u.Profile, nil
}

func (m *memStore) DeleteUser(_ context.Context, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	m.audit = append(m.audit, AuditUserDeleted)
	return nil
}

func (m *memStore) CreateRefresh(_ context.Context, id, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[id] = RefreshToken{ID: id, UserID: userID, ExpiresAt: expiresAt}
	m.hashes[tokenHash] = id
	return nil
}

func (m *memStore) RefreshByHash(_ context.Context, tokenHash string) (RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.hashes[tokenHash]
	if !ok {
		return RefreshToken{}, ErrNotFound
	}
	return m.refresh[id], nil
}

func (m *memStore) RevokeRefresh(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.refresh[id]
	if !ok || rec.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	rec.RevokedAt = &now
	m.refresh[id] = rec
	return true, nil
}

func (m *memStore) CreateReset(_ context.Context, req ResetRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[req.TokenHash] = &memReset{ResetRequest: req}
	m.outbox = append(m.outbox, req)
	return nil
}

func (m *memStore) ConsumeReset(_ context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[tokenHash]
	if !ok || r.usedAt != nil || !r.ExpiresAt.After(now) {
		return "", ErrInvalidReset
	}
	r.usedAt = &now
	u := m.users[r.UserID]
	u.PasswordHash = passwordHash
	m.users[r.UserID] = u
	for id, rec := range m.refresh {
		if rec.UserID == r.UserID && rec.RevokedAt == nil {
			rec.RevokedAt = &now
			m.refresh[id] = rec
		}
	}
	m.audit = append(m.audit, AuditPasswordReset)
	return r.UserID, nil
}

func (m *memStore) RecordAudit(_ context.Context, eventType, _ string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, eventType)
	return nil
}
