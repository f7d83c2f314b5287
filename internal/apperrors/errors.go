// Package apperrors provides the typed errors shared by the retrieval engine and its adapters.
package apperrors

import "fmt"

// ProviderFailure describes why an embedding or LLM boundary call failed.
type ProviderFailure string

const (
	FailureTimeout     ProviderFailure = "timeout"
	FailureRateLimited ProviderFailure = "rate_limited"
	FailureUnavailable ProviderFailure = "unavailable"
	FailureCircuitOpen ProviderFailure = "circuit_open"
)

// ErrProviderUnavailable matches any failed or timed out provider call.
var ErrProviderUnavailable = &ProviderUnavailableError{}

// ProviderUnavailableError reports that an external provider could not serve a call.
type ProviderUnavailableError struct {
	Provider string
	Failure  ProviderFailure
	Err      error
}

// NewProviderUnavailable wraps err as a provider failure of the given kind.
func NewProviderUnavailable(provider string, failure ProviderFailure, err error) *ProviderUnavailableError {
	return &ProviderUnavailableError{Provider: provider, Failure: failure, Err: err}
}

func (e *ProviderUnavailableError) Error() string {
	msg := "provider unavailable"
	if e.Provider != "" {
		msg = e.Provider + " " + msg
	}
	if e.Failure != "" {
		msg += " (" + string(e.Failure) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// Is implements the error interface for error comparison.
func (e *ProviderUnavailableError) Is(target error) bool {
	_, ok := target.(*ProviderUnavailableError)
	return ok
}

// Retryable reports whether another attempt may succeed.
func (e *ProviderUnavailableError) Retryable() bool {
	return e.Failure != FailureCircuitOpen
}

// ErrMalformedResponse matches boundary responses that could not be parsed or had the wrong shape.
var ErrMalformedResponse = &MalformedResponseError{}

// MalformedResponseError reports an unparseable or unexpected provider response.
type MalformedResponseError struct {
	Provider string
	Message  string
	Err      error
}

// NewMalformedResponse creates a MalformedResponseError.
func NewMalformedResponse(provider, message string, err error) *MalformedResponseError {
	return &MalformedResponseError{Provider: provider, Message: message, Err: err}
}

func (e *MalformedResponseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "malformed response"
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Is implements the error interface for error comparison.
func (e *MalformedResponseError) Is(target error) bool {
	_, ok := target.(*MalformedResponseError)
	return ok
}

// ErrNotFound represents a "not found" error.
var ErrNotFound = &NotFoundError{}

// NotFoundError is returned when a referenced document or record does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFound creates a NotFoundError for resource/id.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Resource != "" && e.ID != "":
		return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
	case e.Resource != "":
		return e.Resource + " not found"
	}
	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ErrConfiguration matches invalid configuration. It is fatal at startup.
var ErrConfiguration = &ConfigurationError{}

// ConfigurationError reports an invalid configuration value.
type ConfigurationError struct {
	Field   string
	Message string
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return "invalid configuration " + e.Field + ": " + e.Message
	}
	return "invalid configuration: " + e.Message
}

// Is implements the error interface for error comparison.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// ErrValidation represents a validation error.
// Use when caller input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}
	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ErrConflict is returned when an operation collides with one already in progress.
var ErrConflict = &ConflictError{}

// ConflictError is a sentinel error for resource conflicts.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError with a custom message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "conflict"
}

// Is implements the error interface for error comparison.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)
	return ok
}
