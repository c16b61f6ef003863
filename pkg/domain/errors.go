package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Concrete errors match them through errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrTransaction = errors.New("transaction failed")
	ErrCascade     = errors.New("cascade failed")
)

// ValidationError reports a malformed or out-of-domain field value.
type ValidationError struct {
	Entity  EntityType
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s: %s", e.Entity, e.Message)
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Entity, e.Field, e.Message)
}

// Is matches ErrValidation.
func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a violated uniqueness constraint.
type ConflictError struct {
	Entity EntityType
	Field  string
	Value  string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

// Is matches ErrConflict.
func (e ConflictError) Is(target error) bool { return target == ErrConflict }

// TransactionError reports that an atomic mutation unit could not commit.
type TransactionError struct {
	Op  string
	Err error
}

func (e TransactionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transaction %s failed", e.Op)
	}
	return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e TransactionError) Unwrap() error { return e.Err }

// Is matches ErrTransaction.
func (e TransactionError) Is(target error) bool { return target == ErrTransaction }

// CascadeError reports that a deal outcome could not be propagated to its lead.
// The deal write it accompanies has been committed unless strict cascading is on.
type CascadeError struct {
	DealID string
	LeadID string
	Err    error
}

func (e CascadeError) Error() string {
	return fmt.Sprintf("cascade deal %s to lead %s: %v", e.DealID, e.LeadID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e CascadeError) Unwrap() error { return e.Err }

// Is matches ErrCascade.
func (e CascadeError) Is(target error) bool { return target == ErrCascade }

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Is matches ErrValidation; blocking rules guard field constraints.
func (e RuleViolationError) Is(target error) bool { return target == ErrValidation }
