package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation - malformed input, rejected before any I/O
	ErrValidation = errors.New("prober: validation failed")

	// ErrNotFound - unknown endpoint id
	ErrNotFound = errors.New("prober: endpoint not found")

	// ErrStorage - credential store or metrics sink I/O failure
	ErrStorage = errors.New("prober: storage failure")

	// ErrCapabilityUnavailable - optional server extension missing on the target.
	// Absorbed by the health evaluator, never returned across its boundary.
	ErrCapabilityUnavailable = errors.New("prober: capability unavailable")
)

// ErrorKind classifies probe-level failures.
type ErrorKind string

const (
	ErrorKindNone               ErrorKind = ""
	ErrorKindTimeout            ErrorKind = "timeout"
	ErrorKindAuthFailure        ErrorKind = "auth_failure"
	ErrorKindNetworkUnreachable ErrorKind = "network_unreachable"
	ErrorKindSSL                ErrorKind = "ssl_error"
	ErrorKindUnknown            ErrorKind = "unknown"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// ConnectivityError is a classified failure talking to a target database.
type ConnectivityError struct {
	Kind ErrorKind
	Err  error
}

func (e *ConnectivityError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}
