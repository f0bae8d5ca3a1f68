package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every operation. Callers branch with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication error")
	ErrUpstream       = errors.New("upstream error")
	ErrPersistence    = errors.New("persistence error")
	ErrDelivery       = errors.New("notification delivery error")
	ErrNotFound       = errors.New("not found")
)

// Validation failures. Each one is also an ErrValidation.
var (
	ErrEmptyDescription   = validationError("empty description")
	ErrDescriptionTooLong = validationError("description too long (max 500 characters)")
	ErrEmptyCategory      = validationError("empty category")
	ErrInvalidAmount      = validationError("amount must be greater than zero")
	ErrZeroDate           = validationError("date cannot be zero")
	ErrInvalidLimit       = validationError("budget limit must be greater than zero")
	ErrEmptyAmendment     = validationError("amendment changes nothing")
	ErrDuplicateBudget    = validationError("a budget for this category already exists")
	ErrEmptyTitle         = validationError("empty title")
	ErrTitleTooLong       = validationError("title too long (max 200 characters)")
	ErrInvalidTarget      = validationError("goal target must be greater than zero")
	ErrZeroDeadline       = validationError("deadline cannot be zero")
	ErrMissingUser        = fmt.Errorf("%w: missing user identity", ErrAuthentication)
)

type fieldError struct{ msg string }

func (e *fieldError) Error() string { return e.msg }
func (e *fieldError) Is(target error) bool {
	return target == ErrValidation
}

func validationError(msg string) error { return &fieldError{msg: msg} }

// ItemError is the failure of a single item of an ingestion batch.
// It never aborts the rest of the batch.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// RequireUser rejects operations that reach the core without a resolved identity.
func RequireUser(userID string) error {
	if userID == "" {
		return ErrMissingUser
	}
	return nil
}

// Persistence wraps a store failure so callers can tell it apart from
// validation problems.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
