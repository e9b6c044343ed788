package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeConnectionException  = "08000"
	codeConnectionFailure    = "08006"
	codeCannotConnectNow     = "57P03"
	codeTooManyConnections   = "53300"
)

// Error implements repositories.RepositoryError for the relational backend.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("postgres %s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// NotFoundError reports a lookup that matched no row.
func NotFoundError(op, format string, args ...any) error {
	return &Error{op: op, err: fmt.Errorf(format, args...), notFound: true}
}

// WrapError classifies err. Context errors and already classified errors pass through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	e := &Error{op: op, err: err}
	if errors.Is(err, pgx.ErrNoRows) {
		e.notFound = true
		return e
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeCheckViolation, codeSerializationFailure, codeDeadlockDetected:
			e.conflict = true
		case codeForeignKeyViolation:
			e.notFound = true
		case codeConnectionException, codeConnectionFailure, codeCannotConnectNow, codeTooManyConnections:
			e.unavailable = true
		}
		return e
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		e.unavailable = true
	}
	return e
}
