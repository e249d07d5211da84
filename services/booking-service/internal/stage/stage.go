// Package stage holds the short-lived state a patient carries between booking
// pages: the validated access code before submission, and the finished
// registration until the confirmation page has shown it once.
package stage

import (
	"context"
	"errors"

	"github.com/physiobook/physiobook/services/booking-service/internal/model"
)

// ErrNotFound is returned for unknown and expired tokens.
var ErrNotFound = errors.New("stage token not found or expired")

type Store interface {
	PutCode(ctx context.Context, codeID string) (string, error)
	Code(ctx context.Context, token string) (string, error)
	ClearCode(ctx context.Context, token string) error
	PutRegistration(ctx context.Context, reg model.ExpandedRegistration) (string, error)
	// TakeRegistration returns the staged registration and deletes it.
	TakeRegistration(ctx context.Context, token string) (model.ExpandedRegistration, error)
}
