package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/phillip/farewell-fund-go/models"
	"github.com/phillip/farewell-fund-go/store"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("not authorized")
	// ErrUnauthenticated is returned when no identity is attached to the call.
	ErrUnauthenticated = fmt.Errorf("%w: no identity", ErrUnauthorized)
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrStorage         = errors.New("storage failure")
)

// ValidationError is field-scoped malformed input, rejected before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ErrNoMembers is returned by equal distribution over an event without members.
var ErrNoMembers = &ValidationError{Field: "members", Message: "event has no members to distribute across"}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// ConflictError is a transition the current state does not allow. It is an
// expected race outcome.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func conflict(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// StorageError wraps a collaborator failure. Its cause is for logs only.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// AutoApproveError reports a manual entry that was recorded as verified but
// whose follow-up approve failed. Contribution is the committed row; retrying
// the create would record the money twice.
type AutoApproveError struct {
	Contribution *models.Contribution
	Err          error
}

func (e *AutoApproveError) Error() string {
	return fmt.Sprintf("contribution %s recorded but not approved: %v", e.Contribution.ID, e.Err)
}

func (e *AutoApproveError) Unwrap() error { return e.Err }

func notFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}

// storageFailure logs the cause and returns the typed wrapper.
func storageFailure(log *zap.Logger, op string, err error) error {
	log.Error("storage failure", zap.String("op", op), zap.Error(err))
	return &StorageError{Op: op, Err: err}
}

// fromStore maps store sentinels onto the service taxonomy. Status conflicts
// are left to the caller, which knows which message applies.
func fromStore(log *zap.Logger, op, entity string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(entity)
	}
	return storageFailure(log, op, err)
}
