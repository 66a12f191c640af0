package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// Provisioning failures, one per step kind. Both are fatal to startup.
	ErrorTypeAssetCollection ErrorType = "asset_collection"
	ErrorTypeMigration       ErrorType = "migration"

	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeProcess    ErrorType = "process"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeCancelled  ErrorType = "cancelled"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Provisioning errors
func NewAssetCollectionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeAssetCollection, message, cause)
}

func NewMigrationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeMigration, message, cause)
}

// Validation errors
func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, cause)
}

// Process errors
func NewProcessError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProcess, message, cause)
}

// System errors
func NewPermissionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePermission, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewNetworkError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNetwork, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

// Error checking helpers
func IsAssetCollectionError(err error) bool {
	return hasType(err, ErrorTypeAssetCollection)
}

func IsMigrationError(err error) bool {
	return hasType(err, ErrorTypeMigration)
}

// IsProvisioningError reports whether err is one of the provisioning step failure kinds
func IsProvisioningError(err error) bool {
	return IsAssetCollectionError(err) || IsMigrationError(err)
}

func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

func IsProcessError(err error) bool {
	return hasType(err, ErrorTypeProcess)
}

func IsPermissionError(err error) bool {
	return hasType(err, ErrorTypePermission)
}

func IsIOError(err error) bool {
	return hasType(err, ErrorTypeIO)
}

func IsNetworkError(err error) bool {
	return hasType(err, ErrorTypeNetwork)
}

func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

func IsCancelledError(err error) bool {
	return hasType(err, ErrorTypeCancelled)
}

// hasType reports whether the outermost DomainError in the chain has the given type.
// Wrapping errors (e.g. a validation error caused by a migration error) classify
// by their own type, not by their cause.
func hasType(err error, errorType ErrorType) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == errorType
}

// ExitCode maps a startup outcome to the process exit status:
// 0 when err is nil, 1 for any failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Error aggregation for bulk operations
type ErrorCollection struct {
	Errors []error
}

func (e *ErrorCollection) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	messages := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("%d errors occurred: %s", len(e.Errors), strings.Join(messages, "; "))
}

func (e *ErrorCollection) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *ErrorCollection) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ErrorCollection) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// NewErrorCollection creates a new error collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors: make([]error, 0),
	}
}
