package model

import (
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + " " + fe.Message
	}
	return strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateSubscriptionKey checks that both halves of a subscription key are
// present. It returns a *ValidationError or nil.
func ValidateSubscriptionKey(name, endpoint string) error {
	var ve ValidationError
	if strings.TrimSpace(name) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	}
	if strings.TrimSpace(endpoint) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "callback_endpoint", Message: "is required"})
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateEventName checks that an event name is present.
func ValidateEventName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Errors: []FieldError{{Field: "name", Message: "is required"}}}
	}
	return nil
}
