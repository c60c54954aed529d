package model

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a referenced evaluation, opportunity, or company
// profile does not exist. Not retryable.
type NotFoundError struct {
	Kind string // "evaluation", "opportunity", "company_profile"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError indicates a concurrent modification was detected, e.g. a
// refresh already in flight for the same evaluation or an optimistic version
// check failing on a profile update.
type ConflictError struct {
	Kind   string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %s: %s", e.Kind, e.ID, e.Reason)
}

// ValidationError indicates a malformed request, e.g. an illegal patch to
// user-owned evaluation fields. Not retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// EvaluationFailedError indicates the external evaluator call failed or timed
// out for one evaluation. The stored record is guaranteed untouched.
type EvaluationFailedError struct {
	EvaluationID string
	Err          error
}

func (e *EvaluationFailedError) Error() string {
	return fmt.Sprintf("evaluation %s failed: %v", e.EvaluationID, e.Err)
}

func (e *EvaluationFailedError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err's chain contains a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsConflict reports whether err's chain contains a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// IsValidation reports whether err's chain contains a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsEvaluationFailed reports whether err's chain contains an
// EvaluationFailedError.
func IsEvaluationFailed(err error) bool {
	var e *EvaluationFailedError
	return errors.As(err, &e)
}
