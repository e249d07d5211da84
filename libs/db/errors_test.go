package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert slot: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(unique) || !IsConstraintViolation(unique) {
		t.Fatal("expected wrapped 23505 to be a unique/constraint violation")
	}
	if IsForeignKeyViolation(unique) {
		t.Fatal("23505 is not a foreign key violation")
	}

	exclusion := &pgconn.PgError{Code: "23P01"}
	if !IsUniqueViolation(exclusion) {
		t.Fatal("expected exclusion violation to count as conflict")
	}

	fk := &pgconn.PgError{Code: "23503"}
	if !IsForeignKeyViolation(fk) || !IsConstraintViolation(fk) {
		t.Fatal("expected 23503 to be a foreign key violation")
	}

	check := &pgconn.PgError{Code: "23514"}
	if !IsCheckViolation(check) || IsUniqueViolation(check) {
		t.Fatal("expected 23514 to be a check violation only")
	}

	badUUID := fmt.Errorf("claim: %w", &pgconn.PgError{Code: "22P02"})
	if !IsDataException(badUUID) || IsConstraintViolation(badUUID) {
		t.Fatal("expected 22P02 to be a data exception only")
	}

	syntax := &pgconn.PgError{Code: "42601"}
	if IsConstraintViolation(syntax) || IsDataException(syntax) {
		t.Fatal("syntax error is not a constraint violation")
	}

	if !IsNotFound(fmt.Errorf("lookup: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to be not found")
	}
}
