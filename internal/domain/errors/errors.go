// Package errors provides standardized error types for the domain layer.
// These errors enable consistent classification of transfer failures into
// retryable and terminal categories across all services.
package errors

import (
	"errors"
	"fmt"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
)

// Standard error categories
var (
	// ErrInvalidRequest indicates the transfer request failed pre-flight validation
	ErrInvalidRequest = errors.New("invalid transfer request")

	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrTransient indicates a network-level failure that is safe to retry
	ErrTransient = errors.New("transient network error")

	// ErrWalletCapability indicates the signer capability is missing or disconnected
	ErrWalletCapability = errors.New("wallet capability unavailable")

	// ErrPastPointOfNoReturn indicates the burn has confirmed and the transfer
	// can no longer be cancelled
	ErrPastPointOfNoReturn = errors.New("transfer past point of no return")

	// ErrConflict indicates a conflict with the current transfer state
	ErrConflict = errors.New("conflict")
)

// DomainError is a transfer failure with machine-readable classification
type DomainError struct {
	Err       error
	Kind      entities.ErrorKind
	Message   string
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// New creates a domain error with an explicit kind
func New(err error, kind entities.ErrorKind, message string) *DomainError {
	return &DomainError{Err: err, Kind: kind, Message: message}
}

// WithRetryable marks the error as retryable
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// InvalidRequest creates a non-retryable validation failure
func InvalidRequest(kind entities.ErrorKind, message string) *DomainError {
	return &DomainError{Err: ErrInvalidRequest, Kind: kind, Message: message}
}

// Transient creates a retryable network failure
func Transient(err error, message string) *DomainError {
	return &DomainError{
		Err:       fmt.Errorf("%w: %w", ErrTransient, err),
		Kind:      entities.ErrKindTransientNetwork,
		Message:   message,
		Retryable: true,
	}
}

// WalletCapability creates a failure requiring the caller to reconnect a signer
func WalletCapability(err error, message string) *DomainError {
	return &DomainError{
		Err:     fmt.Errorf("%w: %w", ErrWalletCapability, err),
		Kind:    entities.ErrKindWalletCapability,
		Message: message,
	}
}

// Kind extracts the machine-readable kind from any error
func Kind(err error) entities.ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsRetryable reports whether the failure is safe to retry
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// IsInvalidRequest checks if an error is a validation failure
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
