package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidCode      = errors.New("invalid access code")
	ErrSlotAlreadyTaken = errors.New("slot already taken")
	ErrNetwork          = errors.New("network error")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrNotSignedIn      = errors.New("not signed in")
)

// APIError is any non-2xx response. Unwrap maps the status onto the sentinels above.
type APIError struct {
	Status  int
	Message string
	Body    map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

// ValidationError carries the per-field messages of a 422 response.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field(s)", len(e.Fields))
}

// BookingFailure is a booking that failed after the slot was claimed.
// CodeID is empty when the access code was not consumed.
type BookingFailure struct {
	Message string
	SlotID  string
	CodeID  string
}

func (e *BookingFailure) Error() string {
	if e.CodeID != "" {
		return fmt.Sprintf("%s (slot %s, code %s)", e.Message, e.SlotID, e.CodeID)
	}
	return fmt.Sprintf("%s (slot %s)", e.Message, e.SlotID)
}

func networkError(err error) error {
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func stringField(body map[string]any, key string) string {
	v, _ := body[key].(string)
	return v
}
