package domain

import "errors"

// Error taxonomy shared by services and the HTTP layer.
var (
	// ErrValidation marks missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate marks an attempt to create an entity that already exists.
	ErrDuplicate = errors.New("already exists")
	// ErrNotFound marks an unknown user or challenge.
	ErrNotFound = errors.New("not found")
	// ErrAuth marks a credential mismatch.
	ErrAuth = errors.New("invalid credentials")
	// ErrUpstream marks a failure of an external collaborator.
	ErrUpstream = errors.New("upstream service unavailable")
)
