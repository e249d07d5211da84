package client

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/physiobook/physiobook/libs/auth"
)

type EventKind string

const (
	SignedIn  EventKind = "signed_in"
	SignedOut EventKind = "signed_out"
	Refreshed EventKind = "refreshed"
	Expired   EventKind = "expired"
)

// SessionState is the signed-in identity. Capabilities and Routes are
// resolved once at sign-in.
type SessionState struct {
	Profile      Profile
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Capabilities auth.Capabilities
	Routes       []auth.Route
}

type SessionEvent struct {
	Kind  EventKind
	State SessionState
}

// Session is the identity provider for one signed-in staff member. It owns the
// tokens and notifies subscribers of every change.
type Session struct {
	api    *Client
	logger *slog.Logger

	mu         sync.RWMutex
	state      *SessionState
	generation int
	expiry     *time.Timer

	subsMu sync.Mutex
	subs   map[int]func(SessionEvent)
	nextID int
	closed bool
}

func NewSession(api *Client, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{api: api, logger: logger, subs: map[int]func(SessionEvent){}}
}

// Client returns an API client that authenticates with this session's access token.
func (s *Session) Client() *Client {
	return s.api.With(WithToken(s.AccessToken))
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return ""
	}
	return s.state.AccessToken
}

func (s *Session) Current() (SessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return SessionState{}, false
	}
	return *s.state, true
}

func (s *Session) SignIn(ctx context.Context, email, password string) (SessionState, error) {
	tokens, err := s.api.Login(ctx, email, password)
	if err != nil {
		return SessionState{}, err
	}
	if !tokens.Profile.Role.Valid() {
		return SessionState{}, fmt.Errorf("account has no usable role %q", tokens.Profile.Role)
	}

	caps := auth.RoleCapabilities(tokens.Profile.Role)
	state := SessionState{
		Profile:      tokens.Profile,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		Capabilities: caps,
		Routes:       auth.RoutesFor(caps),
	}
	s.set(&state)
	s.emit(SessionEvent{Kind: SignedIn, State: state})
	return state, nil
}

// SignOut revokes the refresh token and clears local state. Local state is
// cleared even when revocation fails.
func (s *Session) SignOut(ctx context.Context) error {
	current, ok := s.Current()
	if !ok {
		return nil
	}
	err := s.api.Logout(ctx, current.RefreshToken)
	s.set(nil)
	s.emit(SessionEvent{Kind: SignedOut, State: current})
	return err
}

func (s *Session) Refresh(ctx context.Context) (SessionState, error) {
	current, ok := s.Current()
	if !ok {
		return SessionState{}, ErrNotSignedIn
	}
	tokens, err := s.api.RefreshTokens(ctx, current.RefreshToken)
	if err != nil {
		return SessionState{}, err
	}
	current.AccessToken = tokens.AccessToken
	current.RefreshToken = tokens.RefreshToken
	current.ExpiresAt = tokens.ExpiresAt
	s.set(&current)
	s.emit(SessionEvent{Kind: Refreshed, State: current})
	return current, nil
}

// Subscribe registers fn for every future event. The returned func removes it
// and is safe to call more than once.
func (s *Session) Subscribe(fn func(SessionEvent)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// Close drops all subscribers and stops the expiry timer. State is kept.
func (s *Session) Close() {
	s.subsMu.Lock()
	s.closed = true
	s.subs = map[int]func(SessionEvent){}
	s.subsMu.Unlock()

	s.mu.Lock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	s.generation++
	s.mu.Unlock()
}

func (s *Session) set(state *SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.generation++
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	if state == nil || state.ExpiresAt.IsZero() {
		return
	}
	gen := s.generation
	s.expiry = time.AfterFunc(time.Until(state.ExpiresAt), func() { s.expire(gen) })
}

func (s *Session) expire(gen int) {
	s.mu.Lock()
	if gen != s.generation || s.state == nil {
		s.mu.Unlock()
		return
	}
	last := *s.state
	s.state = nil
	s.expiry = nil
	s.generation++
	s.mu.Unlock()

	s.emit(SessionEvent{Kind: Expired, State: last})
}

func (s *Session) emit(evt SessionEvent) {
	s.subsMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(SessionEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		s.deliver(fn, evt)
	}
}

func (s *Session) deliver(fn func(SessionEvent), evt SessionEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session subscriber panicked", "event", string(evt.Kind), "panic", r)
		}
	}()
	fn(evt)
}
