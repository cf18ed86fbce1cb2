package domain

import (
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingExpired   BookingStatus = "expired"
	BookingRefunded  BookingStatus = "refunded"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled, BookingExpired},
	BookingConfirmed: {BookingCancelled, BookingRefunded},
	BookingCancelled: {BookingRefunded},
}

// HoldsSeats reports whether a booking in this status still owns its seats.
func (s BookingStatus) HoldsSeats() bool {
	return s == BookingPending || s == BookingConfirmed
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "credit-card"
	PaymentDebitCard  PaymentMethod = "debit-card"
	PaymentUPI        PaymentMethod = "upi"
	PaymentNetBanking PaymentMethod = "net-banking"
	PaymentWallet     PaymentMethod = "wallet"
	PaymentCash       PaymentMethod = "cash"
)

func (m PaymentMethod) Validate() error {
	switch m {
	case PaymentCreditCard, PaymentDebitCard, PaymentUPI, PaymentNetBanking, PaymentWallet, PaymentCash:
		return nil
	}
	return errors.Wrapf(ErrInvalidPaymentMethod, "%q", m)
}

type CustomerDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (c CustomerDetails) IsZero() bool {
	return c == CustomerDetails{}
}

func (c CustomerDetails) Validate() error {
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Phone) == "" {
		return errors.Wrap(ErrInvalidCustomer, "name and phone are required")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return errors.Wrapf(ErrInvalidCustomer, "email %q", c.Email)
	}
	return nil
}

// CustomerFromUser fills customer details from the caller identity.
func CustomerFromUser(u User) CustomerDetails {
	return CustomerDetails{Name: u.Name, Email: u.Email, Phone: u.Phone}
}

type Booking struct {
	ID                   uuid.UUID
	Code                 string
	UserID               uuid.UUID
	ShowID               uuid.UUID
	ReservationID        *uuid.UUID
	Seats                []ReservedSeat
	TotalAmount          float64
	Currency             string
	Status               BookingStatus
	PaymentStatus        PaymentStatus
	PaymentMethod        PaymentMethod
	TransactionID        string
	Customer             CustomerDetails
	ShowDateTime         time.Time
	CreatedAt            time.Time
	ExpiryDateTime       time.Time
	UpdatedAt            time.Time
	CancellationDateTime *time.Time
	CancellationReason   string
	RefundAmount         float64
}

func (b Booking) TicketCount() int {
	return len(b.Seats)
}

func (b Booking) SeatKeys() []SeatKey {
	return seatKeys(b.Seats)
}

// PaymentOverdue reports whether a pending booking is past its payment window.
func (b Booking) PaymentOverdue(now time.Time) bool {
	return b.Status == BookingPending && !now.Before(b.ExpiryDateTime)
}

func (b Booking) AccessibleBy(u User) bool {
	return b.UserID == u.ID || u.IsAdmin()
}

func (b *Booking) transition(to BookingStatus, now time.Time) error {
	if !slices.Contains(bookingTransitions[b.Status], to) {
		return errors.Wrapf(ErrInvalidTransition, "booking %s: %s -> %s", b.Code, b.Status, to)
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

// Cancel applies the cancellation window and refund tiers and returns the
// refund. The booking is left untouched on error.
func (b *Booking) Cancel(reason string, now time.Time, policy RefundPolicy) (float64, error) {
	switch b.Status {
	case BookingCancelled, BookingRefunded:
		return 0, errors.Wrapf(ErrAlreadyCancelled, "booking %s", b.Code)
	case BookingExpired:
		return 0, errors.Wrapf(ErrBookingExpired, "booking %s", b.Code)
	}
	untilShow := b.ShowDateTime.Sub(now)
	if untilShow < policy.Cutoff {
		return 0, errors.Wrapf(ErrCancellationWindowClosed, "booking %s: show starts in %s", b.Code, untilShow.Truncate(time.Minute))
	}
	refund := policy.Amount(b.TotalAmount, untilShow)
	if err := b.transition(BookingCancelled, now); err != nil {
		return 0, err
	}
	b.CancellationDateTime = &now
	b.CancellationReason = reason
	b.RefundAmount = refund
	return refund, nil
}

// Confirm records a successful payment.
func (b *Booking) Confirm(transactionID string, now time.Time) error {
	if b.PaymentOverdue(now) {
		return errors.Wrapf(ErrBookingExpired, "booking %s payment window closed at %s", b.Code, b.ExpiryDateTime.Format(time.RFC3339))
	}
	if err := b.transition(BookingConfirmed, now); err != nil {
		return err
	}
	b.PaymentStatus = PaymentCompleted
	b.TransactionID = transactionID
	return nil
}

// FailPayment cancels a pending booking whose payment did not go through.
func (b *Booking) FailPayment(reason string, now time.Time) error {
	if b.Status != BookingPending {
		return errors.Wrapf(ErrInvalidTransition, "booking %s is %s", b.Code, b.Status)
	}
	if err := b.transition(BookingCancelled, now); err != nil {
		return err
	}
	b.PaymentStatus = PaymentFailed
	b.CancellationDateTime = &now
	b.CancellationReason = reason
	return nil
}

// Expire moves an unpaid booking past its payment window to expired.
func (b *Booking) Expire(now time.Time) error {
	if !b.PaymentOverdue(now) {
		return errors.Wrapf(ErrInvalidTransition, "booking %s is not overdue", b.Code)
	}
	if err := b.transition(BookingExpired, now); err != nil {
		return err
	}
	b.PaymentStatus = PaymentFailed
	return nil
}

// Settle marks the refund of a cancelled (or confirmed) booking as paid out.
func (b *Booking) Settle(now time.Time) error {
	if err := b.transition(BookingRefunded, now); err != nil {
		return err
	}
	b.PaymentStatus = PaymentRefunded
	return nil
}
