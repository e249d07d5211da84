package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidCode covers malformed, unknown and already used codes alike.
	ErrInvalidCode = errors.New("invalid access code")
	// ErrSlotAlreadyTaken means the slot was claimed first by someone else.
	// Nothing was modified; the caller should refresh the slot list.
	ErrSlotAlreadyTaken = errors.New("slot already taken")
	ErrNetwork          = errors.New("store unreachable")
)

// ValidationError lists every invalid form field. Nothing was modified.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

// CodeConsumptionFailed means the slot is claimed but the code could not be
// marked used. The slot stays claimed.
type CodeConsumptionFailed struct {
	SlotID string
	Err    error
}

func (e *CodeConsumptionFailed) Error() string {
	return fmt.Sprintf("access code could not be consumed after claiming slot %s: %v", e.SlotID, e.Err)
}

func (e *CodeConsumptionFailed) Unwrap() error { return e.Err }

// RegistrationPersistFailed means the slot is claimed and the code consumed
// but no registration row exists.
type RegistrationPersistFailed struct {
	SlotID string
	CodeID string
	Err    error
}

func (e *RegistrationPersistFailed) Error() string {
	return fmt.Sprintf("registration could not be saved for slot %s and code %s: %v", e.SlotID, e.CodeID, e.Err)
}

func (e *RegistrationPersistFailed) Unwrap() error { return e.Err }

// Progress records which workflow steps completed before a failure.
type Progress struct {
	SlotClaimed  bool
	CodeConsumed bool
}

// BookingError wraps every failure after validation with the step trace.
type BookingError struct {
	Progress Progress
	Err      error
}

func (e *BookingError) Error() string { return e.Err.Error() }

func (e *BookingError) Unwrap() error { return e.Err }

// ProgressOf returns the step trace carried by err, if any.
func ProgressOf(err error) (Progress, bool) {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Progress, true
	}
	return Progress{}, false
}
