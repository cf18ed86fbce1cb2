package domain

import "github.com/cockroachdb/errors"

// Error kinds. Every specific error below belongs to exactly one kind so
// callers can classify with errors.Is(err, ErrConflict) and friends.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrExpired    = errors.New("expired")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
	ErrStorage    = errors.New("storage failure")
)

var (
	ErrShowNotFound        = newError(ErrNotFound, "show not found")
	ErrReservationNotFound = newError(ErrNotFound, "reservation not found")
	ErrBookingNotFound     = newError(ErrNotFound, "booking not found")
	ErrSeatNotFound        = newError(ErrNotFound, "seat not found")
	ErrSeatMapNotFound     = newError(ErrNotFound, "seat map not found")

	ErrSeatUnavailable          = newError(ErrConflict, "seat unavailable")
	ErrSeatConflict             = newError(ErrConflict, "seat conflict")
	ErrActiveReservationExists  = newError(ErrConflict, "active reservation exists for this show")
	ErrAlreadyConverted         = newError(ErrConflict, "reservation already converted")
	ErrReservationCancelled     = newError(ErrConflict, "reservation cancelled")
	ErrAlreadyCancelled         = newError(ErrConflict, "booking already cancelled")
	ErrCancellationWindowClosed = newError(ErrConflict, "cancellation window closed")
	ErrInvalidTransition        = newError(ErrConflict, "invalid status transition")

	ErrReservationExpired = newError(ErrExpired, "reservation expired")
	ErrBookingExpired     = newError(ErrExpired, "booking expired")

	ErrNotOwner  = newError(ErrForbidden, "not owner")
	ErrAdminOnly = newError(ErrForbidden, "admin only")

	ErrNoSeatsRequested       = newError(ErrValidation, "no seats requested")
	ErrDuplicateSeatInRequest = newError(ErrValidation, "duplicate seat in request")
	ErrSeatLimitExceeded      = newError(ErrValidation, "seat limit exceeded")
	ErrInvalidSeat            = newError(ErrValidation, "invalid seat")
	ErrInvalidPaymentMethod   = newError(ErrValidation, "invalid payment method")
	ErrInvalidCustomer        = newError(ErrValidation, "invalid customer details")
	ErrShowNotBookable        = newError(ErrValidation, "show not available for booking")

	ErrSerializationFailure = newError(ErrStorage, "serialization failure")
)

// kindError is a sentinel that reports itself as its kind to errors.Is while
// staying distinct from every other sentinel of the same kind.
type kindError struct {
	msg  string
	kind error
}

func newError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

// Kind returns the kind sentinel err is marked with, or nil for unclassified errors.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrExpired, ErrForbidden, ErrValidation, ErrStorage} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// StorageFailure wraps an adapter error so it classifies as ErrStorage while
// keeping the original cause for logs.
func StorageFailure(err error, op string) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return err
	}
	return errors.Mark(errors.Wrap(err, op), ErrStorage)
}
