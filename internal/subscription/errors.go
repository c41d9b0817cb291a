package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfeidau/bookstore/internal/store"
)

// User-facing conflict messages.
const (
	MsgAlreadySubscribed = "You are already subscribed to a plan."
	MsgNotSubscribed     = "You are not subscribed to a plan."
	MsgNoCreditsLeft     = "You have no book credits left for this billing period."
)

// PlanInUseMessage is the deletion guard message for n active subscribers.
func PlanInUseMessage(n int) string {
	return fmt.Sprintf("Cannot delete plan since there are %d users who are subscribed to it.", n)
}

// ValidationError reports malformed or duplicate plan input.
type ValidationError struct {
	Field   string
	Message string

	// Err is set when the rejection came from the store, e.g. store.ErrPlanNameTaken.
	Err error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NotFoundError reports an unknown plan or user.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found.", e.Resource, e.ID)
}

// ConflictError reports an operation rejected by the current ledger state.
// ActiveSubscribers is set when a plan delete is blocked.
type ConflictError struct {
	Message           string
	ActiveSubscribers int
}

func (e *ConflictError) Error() string {
	return e.Message
}

// TransientError reports that a backing store timed out or was unavailable.
// The operation had no partial effect and may be retried by the caller.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// isTransient reports whether err came from the store being unreachable or the
// caller's deadline expiring.
func isTransient(err error) bool {
	return errors.Is(err, store.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// wrapStoreError turns transient store failures into *TransientError and passes
// anything else through with op context.
func wrapStoreError(op string, err error) error {
	if isTransient(err) {
		return &TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
