package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
	classConnection         = "08"
	classResources          = "53"
	classOperatorAction     = "57"
)

// Error carries repository semantics derived from pgx and SQLSTATE codes.
type Error struct {
	Op          string
	Err         error
	notFound    bool
	conflict    bool
	unique      bool
	unavailable bool
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether no row matched.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports constraint or serialization conflicts.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUniqueViolation reports whether a unique constraint rejected the write.
func (e *Error) IsUniqueViolation() bool { return e != nil && e.unique }

// IsUnavailable reports connection and resource failures.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// WrapError classifies err. Context errors pass through unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e := &Error{Op: op, Err: err}
	if errors.Is(err, pgx.ErrNoRows) {
		e.notFound = true
		return e
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			e.conflict, e.unique = true, true
		case pgErr.Code == codeForeignKeyViolation, pgErr.Code == codeSerialization, pgErr.Code == codeDeadlock:
			e.conflict = true
		case hasClass(pgErr.Code, classConnection), hasClass(pgErr.Code, classResources), hasClass(pgErr.Code, classOperatorAction):
			e.unavailable = true
		}
		return e
	}
	// Anything without a SQLSTATE failed before reaching the server.
	e.unavailable = true
	return e
}

// NotFound builds a not-found error for operations that detect missing rows themselves.
func NotFound(op, detail string) error {
	return &Error{Op: op, Err: errors.New(detail), notFound: true}
}

func hasClass(code, class string) bool {
	return len(code) == 5 && code[:2] == class
}
