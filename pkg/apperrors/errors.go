package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidState        = errors.New("invalid visit state")
	ErrForbidden           = errors.New("forbidden")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrValidation          = errors.New("validation error")
)
