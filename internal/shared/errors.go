package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAmount indicates a non-positive amount or quantity.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidTransition indicates a workflow state change that is not allowed.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInsufficientStock indicates a movement would drive stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicateCode indicates a generated code collided with an existing one.
	ErrDuplicateCode = errors.New("duplicate code")
	// ErrConflict indicates the transaction lost a serialization race and was rolled back.
	// Replaying the whole operation is safe.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)
