// Package apperr holds the application error taxonomy. Services return these
// sentinels (usually wrapped with context via pkg/errors) and the HTTP layer
// maps them to status codes in one place.
package apperr

import (
	"github.com/pkg/errors"
)

var (
	// ErrAccountPending marks a profile awaiting admin approval
	// (active=false, deleted=false).
	ErrAccountPending = errors.New("account is pending admin approval")

	// ErrAccountRemoved marks a soft-deleted profile. The deleted flag is the
	// only terminal marker; active=false alone means pending.
	ErrAccountRemoved = errors.New("account has been removed")

	// ErrInsufficientRole is returned by the strict (admin-entry) gate when
	// the profile role does not match. The lenient gate re-provisions instead.
	ErrInsufficientRole = errors.New("insufficient role")

	// ErrValidation covers missing or malformed input, caught before any
	// store call.
	ErrValidation = errors.New("invalid input")

	// ErrDuplicateSubmission is raised by any guard strategy that detects a
	// prior submission. Advisory only.
	ErrDuplicateSubmission = errors.New("feedback already submitted")

	// ErrSurveyClosed refuses rendering/persisting against a deactivated
	// survey, before any strategy-specific check.
	ErrSurveyClosed = errors.New("survey has been deactivated")

	ErrNotFound = errors.New("not found")

	// ErrDeliveryFailure wraps email channel failures. The respondent may
	// retry (resend) without losing verification state.
	ErrDeliveryFailure = errors.New("message delivery failed")

	ErrStoreFailure = errors.New("backend store failure")

	// ErrPartialCascade reports that some, but not all, response deletions
	// succeeded during a survey cascade delete. The survey itself is retained
	// whenever this occurs.
	ErrPartialCascade = errors.New("some responses could not be deleted")
)

// Validationf builds an ErrValidation with a user-facing message.
func Validationf(format string, args ...any) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

// Is reports whether err matches the given sentinel, unwrapping as needed.
func Is(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
