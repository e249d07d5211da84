// Package identity implements sign-in, session refresh, password reset and
// user administration on top of a transactional Store.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/physiobook/physiobook/libs/auth"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrInvalidReset       = errors.New("invalid or expired reset token")
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrSelfDelete         = errors.New("cannot delete your own account")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field(s)", len(e.Fields))
}

const (
	minPasswordLen = 8

	AuditUserCreated   = "user.created"
	AuditUserUpdated   = "user.updated"
	AuditUserDeleted   = "user.deleted"
	AuditPasswordReset = "user.password_reset"
	AuditSignIn        = "session.signed_in"
)

type Profile struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	Profile
	PasswordHash string
}

type RefreshToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// ResetRequest is handed to the store, which queues the reset email.
type ResetRequest struct {
	ID        string
	UserID    string
	Email     string
	FullName  string
	TokenHash string
	Link      string
	ExpiresAt time.Time
}

type Store interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	CreateUser(ctx context.Context, u User, actorID string) (Profile, error)
	UpdateProfile(ctx context.Context, id string, fullName *string, role *auth.Role, actorID string) (Profile, error)
	DeleteUser(ctx context.Context, id, actorID string) error

	CreateRefresh(ctx context.Context, id, userID, tokenHash string, expiresAt time.Time) error
	RefreshByHash(ctx context.Context, tokenHash string) (RefreshToken, error)
	// RevokeRefresh reports false when the token was already revoked.
	RevokeRefresh(ctx context.Context, id string) (bool, error)

	CreateReset(ctx context.Context, req ResetRequest) error
	// ConsumeReset marks the reset used, stores the new hash and revokes the
	// user's refresh tokens. It returns ErrInvalidReset when nothing matched.
	ConsumeReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)

	RecordAudit(ctx context.Context, eventType, actorID string, metadata map[string]any) error
}

type Signer interface {
	Sign(claims auth.Claims) (string, error)
}

type Config struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	ResetTTL     time.Duration
	ResetURLBase string
}

type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Profile      Profile   `json:"profile"`
}

type Service struct {
	store  Store
	signer Signer
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

func NewService(store Store, signer Signer, logger *slog.Logger, cfg Config) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 30 * time.Minute
	}
	return &Service{store: store, signer: signer, logger: logger, cfg: cfg, now: time.Now}
}

func (s *Service) Login(ctx context.Context, email, password string) (Tokens, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Tokens{}, ErrInvalidCredentials
	}
	user, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Tokens{}, ErrInvalidCredentials
	}
	if err != nil {
		return Tokens{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Tokens{}, ErrInvalidCredentials
	}
	if !user.Role.Valid() {
		s.logger.WarnContext(ctx, "sign-in rejected for unknown role", "user_id", user.UserID, "role", user.Role)
		return Tokens{}, ErrInvalidCredentials
	}

	tokens, err := s.issue(ctx, user.Profile)
	if err != nil {
		return Tokens{}, err
	}
	if err := s.store.RecordAudit(ctx, AuditSignIn, user.UserID, nil); err != nil {
		s.logger.WarnContext(ctx, "audit sign-in failed", "err", err)
	}
	return tokens, nil
}

// Refresh rotates the refresh token. A token can be redeemed once.
func (s *Service) Refresh(ctx context.Context, raw string) (Tokens, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Tokens{}, ErrInvalidRefresh
	}
	rec, err := s.store.RefreshByHash(ctx, HashToken(raw))
	if errors.Is(err, ErrNotFound) {
		return Tokens{}, ErrInvalidRefresh
	}
	if err != nil {
		return Tokens{}, err
	}
	if rec.RevokedAt != nil || !rec.ExpiresAt.After(s.now()) {
		return Tokens{}, ErrInvalidRefresh
	}

	revoked, err := s.store.RevokeRefresh(ctx, rec.ID)
	if err != nil {
		return Tokens{}, err
	}
	if !revoked {
		return Tokens{}, ErrInvalidRefresh
	}

	user, err := s.store.UserByID(ctx, rec.UserID)
	if errors.Is(err, ErrNotFound) {
		return Tokens{}, ErrInvalidRefresh
	}
	if err != nil {
		return Tokens{}, err
	}
	return s.issue(ctx, user.Profile)
}

// Logout revokes raw. Unknown or already revoked tokens are not an error.
func (s *Service) Logout(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	rec, err := s.store.RefreshByHash(ctx, HashToken(raw))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.RevokedAt != nil {
		return nil
	}
	_, err = s.store.RevokeRefresh(ctx, rec.ID)
	return err
}

func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return user.Profile, nil
}

// RequestReset queues a reset email when the account exists. Callers cannot
// tell whether it did.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	user, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.logger.InfoContext(ctx, "password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	raw, err := NewOpaqueToken()
	if err != nil {
		return err
	}
	return s.store.CreateReset(ctx, ResetRequest{
		ID:        uuid.NewString(),
		UserID:    user.UserID,
		Email:     user.Email,
		FullName:  user.FullName,
		TokenHash: HashToken(raw),
		Link:      strings.TrimRight(s.cfg.ResetURLBase, "/") + "?token=" + raw,
		ExpiresAt: s.now().Add(s.cfg.ResetTTL),
	})
}

func (s *Service) ConfirmReset(ctx context.Context, raw, password string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrInvalidReset
	}
	if len(password) < minPasswordLen {
		return &ValidationError{Fields: map[string]string{"password": fmt.Sprintf("must be at least %d characters", minPasswordLen)}}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	userID, err := s.store.ConsumeReset(ctx, HashToken(raw), hash, s.now())
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "password reset completed", "user_id", userID)
	return nil
}

type NewUser struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	FullName string    `json:"full_name"`
	Role     auth.Role `json:"role"`
}

func (s *Service) ListUsers(ctx context.Context) ([]Profile, error) {
	return s.store.ListProfiles(ctx)
}

func (s *Service) CreateUser(ctx context.Context, actorID string, in NewUser) (Profile, error) {
	fields := map[string]string{}
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		fields["email"] = "invalid email"
	}
	if len(in.Password) < minPasswordLen {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLen)
	}
	role, err := auth.ParseRole(string(in.Role))
	if err != nil {
		fields["role"] = "unknown role"
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		fields["full_name"] = "required"
	}
	if len(fields) > 0 {
		return Profile{}, &ValidationError{Fields: fields}
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return Profile{}, err
	}
	return s.store.CreateUser(ctx, User{
		Profile: Profile{
			UserID:   uuid.NewString(),
			Email:    email,
			FullName: fullName,
			Role:     role,
		},
		PasswordHash: hash,
	}, actorID)
}

func (s *Service) UpdateUser(ctx context.Context, actorID, id string, fullName *string, role *string) (Profile, error) {
	var parsed *auth.Role
	if role != nil {
		r, err := auth.ParseRole(*role)
		if err != nil {
			return Profile{}, &ValidationError{Fields: map[string]string{"role": "unknown role"}}
		}
		parsed = &r
	}
	if fullName != nil {
		trimmed := strings.TrimSpace(*fullName)
		if trimmed == "" {
			return Profile{}, &ValidationError{Fields: map[string]string{"full_name": "must not be empty"}}
		}
		fullName = &trimmed
	}
	if fullName == nil && parsed == nil {
		return Profile{}, &ValidationError{Fields: map[string]string{"full_name": "full_name or role required"}}
	}
	return s.store.UpdateProfile(ctx, id, fullName, parsed, actorID)
}

func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfDelete
	}
	return s.store.DeleteUser(ctx, id, actorID)
}

func (s *Service) issue(ctx context.Context, p Profile) (Tokens, error) {
	claims := auth.NewClaims(p.UserID, p.Role, p.FullName, s.cfg.AccessTTL)
	access, err := s.signer.Sign(claims)
	if err != nil {
		return Tokens{}, fmt.Errorf("sign access token: %w", err)
	}
	raw, err := NewOpaqueToken()
	if err != nil {
		return Tokens{}, err
	}
	if err := s.store.CreateRefresh(ctx, uuid.NewString(), p.UserID, HashToken(raw), s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Tokens{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Tokens{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresAt:    claims.ExpiresAt.Time,
		Profile:      p,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NewOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func HashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(hash, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}
