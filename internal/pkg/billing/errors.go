package billing

import (
	"errors"
	"fmt"
)

const genericErrorMessage = "An unexpected error occurred"

// ValidationError reports malformed input. It is always raised before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports a subscription, profile or person missing locally.
type NotFoundError struct {
	Resource string
	Message  string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Resource + " not found"
}

// ConflictError reports an operation on a resource in a terminal or
// conflicting state.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func notFound(resource, message string) error {
	return &NotFoundError{Resource: resource, Message: message}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// ActionResult is the shape admin actions hand back to the calling surface.
type ActionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ResultFromError converts an operation error into an ActionResult.
func ResultFromError(err error) ActionResult {
	if err == nil {
		return ActionResult{Success: true}
	}
	msg := err.Error()
	if msg == "" {
		msg = genericErrorMessage
	}
	return ActionResult{Success: false, Error: msg}
}
