package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input; no side effects were performed
	ErrValidation = errors.New("validation failed")

	// ErrStorageUnavailable marks a persistence failure that is safe to retry
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidStateTransition marks a commission lifecycle misuse
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrVendorFetch marks a failed vendor catalog/price fetch
	ErrVendorFetch = errors.New("vendor fetch failed")

	// ErrUnknownVendor marks a vendor outside the configured set
	ErrUnknownVendor = errors.New("unknown vendor")

	ErrNotFound = errors.New("not found")
)

// ValidationError describes the offending input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// VendorFetchError records a single product's failed fetch within a poll cycle
type VendorFetchError struct {
	Vendor    Vendor
	ProductID string
	Err       error
}

func (e *VendorFetchError) Error() string {
	if e.ProductID == "" {
		return fmt.Sprintf("%s catalog: %v", e.Vendor, e.Err)
	}
	return fmt.Sprintf("%s product %s: %v", e.Vendor, e.ProductID, e.Err)
}

func (e *VendorFetchError) Unwrap() []error {
	return []error{ErrVendorFetch, e.Err}
}

// StorageError wraps a persistence-layer failure as ErrStorageUnavailable
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
}
