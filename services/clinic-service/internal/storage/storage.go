package storage

import (
	"errors"

	"github.com/physiobook/physiobook/libs/db"
)

const (
	EventVisitCompleted        = "clinic.visit.completed.v1"
	EventReconciliationFlagged = "clinic.reconciliation.flagged.v1"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrInUse     = errors.New("still referenced by a registration")
	ErrDuplicate = errors.New("already exists")
	ErrRejected  = errors.New("rejected by a table rule")
)

// mapWriteErr turns constraint violations into storage sentinels.
func mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return ErrNotFound
	case db.IsForeignKeyViolation(err):
		return ErrInUse
	case db.IsUniqueViolation(err):
		return ErrDuplicate
	case db.IsCheckViolation(err):
		return ErrRejected
	default:
		return err
	}
}
