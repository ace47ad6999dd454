package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError represents input rejected before any remote call is made.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError with a specific message.
//
// Parameters:
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewFieldValidationError creates a ValidationError bound to a request field.
func NewFieldValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
//
// Parameters:
//   - format: The format string.
//   - args: Arguments for the format string.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// RemoteError wraps a failure surfaced by the identity, storage or payments
// collaborator. Code is a stable key for the message translation table.
type RemoteError struct {
	Collaborator string
	Code         string
	Err          error
}

func (e *RemoteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Collaborator, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Collaborator, e.Code, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewRemoteError wraps err as a collaborator failure.
func NewRemoteError(collaborator, code string, err error) error {
	return &RemoteError{
		Collaborator: collaborator,
		Code:         code,
		Err:          err,
	}
}

// NotFoundError reports a missing record addressed by key.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// NewNotFoundError creates a NotFoundError for resource/key.
func NewNotFoundError(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// LimitExceededError is returned when a plan quota blocks an operation.
type LimitExceededError struct {
	Limit int
	Used  int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("daily analysis limit reached (%d/%d)", e.Used, e.Limit)
}

// NewLimitExceededError creates a LimitExceededError.
func NewLimitExceededError(used, limit int) error {
	return &LimitExceededError{Limit: limit, Used: used}
}

// PlanRestrictionError is returned when the user's plan does not cover the
// chosen asset.
type PlanRestrictionError struct {
	Plan   string
	Symbol string
}

func (e *PlanRestrictionError) Error() string {
	return fmt.Sprintf("plan %s does not include %s", e.Plan, e.Symbol)
}

// NewPlanRestrictionError creates a PlanRestrictionError.
func NewPlanRestrictionError(plan, symbol string) error {
	return &PlanRestrictionError{Plan: plan, Symbol: symbol}
}

// HTTPStatus maps the error taxonomy onto response codes.
func HTTPStatus(err error) int {
	var validationErr *ValidationError
	var notFoundErr *NotFoundError
	var limitErr *LimitExceededError
	var remoteErr *RemoteError
	var planErr *PlanRestrictionError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &limitErr):
		return http.StatusTooManyRequests
	case errors.As(err, &planErr):
		return http.StatusForbidden
	case errors.As(err, &remoteErr):
		switch remoteErr.Code {
		case MsgInvalidCredentials:
			return http.StatusUnauthorized
		case MsgUserExists:
			return http.StatusConflict
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
