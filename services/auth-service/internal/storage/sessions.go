package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/physiobook/physiobook/libs/outbox"
	"github.com/physiobook/physiobook/services/auth-service/internal/identity"
)

func (s *Store) CreateRefresh(ctx context.Context, id, userID, tokenHash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, id, userID, tokenHash, expiresAt)
	return err
}

func (s *Store) RefreshByHash(ctx context.Context, tokenHash string) (identity.RefreshToken, error) {
	var t identity.RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, expires_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&t.ID, &t.UserID, &t.ExpiresAt, &t.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.RefreshToken{}, identity.ErrNotFound
	}
	return t, err
}

func (s *Store) RevokeRefresh(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type resetRequestedPayload struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateReset stores the hashed token and queues the email event together.
func (s *Store) CreateReset(ctx context.Context, req identity.ResetRequest) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO password_resets (id, user_id, token_hash, expires_at)
			VALUES ($1, $2, $3, $4)
		`, req.ID, req.UserID, req.TokenHash, req.ExpiresAt); err != nil {
			return err
		}
		evt, err := outbox.NewEvent("user", req.UserID, EventPasswordResetRequested, resetRequestedPayload{
			UserID:    req.UserID,
			Email:     req.Email,
			FullName:  req.FullName,
			Link:      req.Link,
			ExpiresAt: req.ExpiresAt.UTC(),
		})
		if err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
}

func (s *Store) ConsumeReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	var userID string
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE password_resets
			SET used_at = $2
			WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
			RETURNING user_id
		`, tokenHash, now).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.ErrInvalidReset
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, passwordHash); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = $2
			WHERE user_id = $1 AND revoked_at IS NULL
		`, userID, now); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, identity.AuditPasswordReset, userID, nil)
	})
	return userID, err
}
