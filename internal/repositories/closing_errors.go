package repositories

import (
	"errors"
	"fmt"
)

// ClosingErrorCode enumerates failure reasons for closing persistence.
type ClosingErrorCode string

const (
	// ClosingErrorUnknown represents an unspecified failure.
	ClosingErrorUnknown ClosingErrorCode = "closing_unknown"
	// ClosingErrorAlreadyExists indicates a closing was already recorded for the date.
	ClosingErrorAlreadyExists ClosingErrorCode = "closing_already_exists"
	// ClosingErrorInvalidInput indicates the record could not be stored as given.
	ClosingErrorInvalidInput ClosingErrorCode = "closing_invalid_input"
)

// ClosingError wraps closing-specific failures with machine readable codes.
type ClosingError struct {
	Date    string
	Code    ClosingErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ClosingError) Error() string {
	if e == nil {
		return ""
	}
	if e.Date != "" {
		return fmt.Sprintf("closing %s: %s", e.Date, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *ClosingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewClosingError constructs a typed closing error.
func NewClosingError(code ClosingErrorCode, date, message string, err error) *ClosingError {
	if message == "" {
		message = string(code)
	}
	return &ClosingError{
		Date:    date,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsClosingAlreadyExists reports whether err carries the already-exists code.
func IsClosingAlreadyExists(err error) bool {
	var closingErr *ClosingError
	if errors.As(err, &closingErr) {
		return closingErr.Code == ClosingErrorAlreadyExists
	}
	return false
}

// IsNotFound reports whether err is a RepositoryError describing a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsUnavailable reports whether err is a RepositoryError describing a transient outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
