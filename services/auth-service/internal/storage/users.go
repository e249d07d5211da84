package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/physiobook/physiobook/libs/auth"
	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/libs/outbox"
	"github.com/physiobook/physiobook/services/auth-service/internal/identity"
)

const EventPasswordResetRequested = "auth.password_reset.requested.v1"

// Store is the postgres identity.Store.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
	audit  *AuditRepository
}

func NewStore(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo, audit: NewAuditRepository(pool)}
}

const userSelect = `
	SELECT u.id, u.email, u.password_hash, p.full_name, p.role, p.created_at
	FROM users u
	JOIN profiles p ON p.user_id = u.id
`

func (s *Store) UserByEmail(ctx context.Context, email string) (identity.User, error) {
	return scanUser(s.pool.QueryRow(ctx, userSelect+` WHERE u.email = $1`, email))
}

func (s *Store) UserByID(ctx context.Context, id string) (identity.User, error) {
	return scanUser(s.pool.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id))
}

func (s *Store) ListProfiles(ctx context.Context) ([]identity.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, email, full_name, role, created_at
		FROM profiles
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []identity.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, u identity.User, actorID string) (identity.Profile, error) {
	var out identity.Profile
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, password_hash)
			VALUES ($1, $2, $3)
		`, u.UserID, u.Email, u.PasswordHash); err != nil {
			return err
		}
		p, err := scanProfile(tx.QueryRow(ctx, `
			INSERT INTO profiles (user_id, email, full_name, role)
			VALUES ($1, $2, $3, $4)
			RETURNING user_id, email, full_name, role, created_at
		`, u.UserID, u.Email, u.FullName, string(u.Role)))
		if err != nil {
			return err
		}
		out = p
		return s.audit.Record(ctx, tx, identity.AuditUserCreated, actorID, map[string]any{
			"user_id": p.UserID,
			"email":   p.Email,
			"role":    p.Role,
		})
	})
	if db.IsUniqueViolation(err) {
		return identity.Profile{}, identity.ErrEmailTaken
	}
	return out, err
}

func (s *Store) UpdateProfile(ctx context.Context, id string, fullName *string, role *auth.Role, actorID string) (identity.Profile, error) {
	var roleArg *string
	if role != nil {
		r := string(*role)
		roleArg = &r
	}
	var out identity.Profile
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		p, err := scanProfile(tx.QueryRow(ctx, `
			UPDATE profiles
			SET full_name = COALESCE($2, full_name),
			    role = COALESCE($3, role)
			WHERE user_id = $1
			RETURNING user_id, email, full_name, role, created_at
		`, id, fullName, roleArg))
		if err != nil {
			return err
		}
		out = p
		return s.audit.Record(ctx, tx, identity.AuditUserUpdated, actorID, map[string]any{
			"user_id":   id,
			"full_name": fullName,
			"role":      roleArg,
		})
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.Profile{}, identity.ErrNotFound
	}
	return out, err
}

func (s *Store) DeleteUser(ctx context.Context, id, actorID string) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return identity.ErrNotFound
		}
		return s.audit.Record(ctx, tx, identity.AuditUserDeleted, actorID, map[string]any{"user_id": id})
	})
}

func (s *Store) RecordAudit(ctx context.Context, eventType, actorID string, metadata map[string]any) error {
	return s.audit.Record(ctx, s.pool, eventType, actorID, metadata)
}

func scanUser(row pgx.Row) (identity.User, error) {
	var (
		u    identity.User
		role string
	)
	err := row.Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.FullName, &role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	u.Role = auth.Role(role)
	return u, nil
}

func scanProfile(row pgx.Row) (identity.Profile, error) {
	var (
		p    identity.Profile
		role string
	)
	if err := row.Scan(&p.UserID, &p.Email, &p.FullName, &role, &p.CreatedAt); err != nil {
		return identity.Profile{}, err
	}
	p.Role = auth.Role(role)
	return p, nil
}
