// Package apperr defines the domain errors returned synchronously to callers.
// They are never retried automatically.
package apperr

import "fmt"

var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrForbidden    = fmt.Errorf("forbidden")
	ErrInvalidInput = fmt.Errorf("invalid input")
)
