package memory

import "fmt"

type notFoundError struct {
	kind string
	id   string
}

func (e *notFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.kind, e.id) }

func (e *notFoundError) IsNotFound() bool    { return true }
func (e *notFoundError) IsConflict() bool    { return false }
func (e *notFoundError) IsUnavailable() bool { return false }

type conflictError struct {
	kind string
	id   string
}

func (e *conflictError) Error() string { return fmt.Sprintf("%s %s already exists", e.kind, e.id) }

func (e *conflictError) IsNotFound() bool    { return false }
func (e *conflictError) IsConflict() bool    { return true }
func (e *conflictError) IsUnavailable() bool { return false }
