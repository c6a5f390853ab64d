package psp

import (
	"errors"
	"fmt"
)

// Predefined provider errors.
var (
	// ErrProviderUnavailable indicates the provider could not be reached
	// or returned a server error.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrUnknownProvider indicates no adapter exists for the requested
	// provider name.
	ErrUnknownProvider = errors.New("unknown payment provider")
)

// ValidationError reports missing or malformed configuration or
// credentials. It is fatal for the request and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Error is a provider-scoped error carrying the provider's own code
// alongside a wrapped sentinel for errors.Is checks.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}
