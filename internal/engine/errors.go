package engine

import "errors"

// Failure kinds surfaced to callers. None are process-fatal; the transport
// layer maps them onto response codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)
