package domain

import (
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationExpired   ReservationStatus = "expired"
	ReservationConverted ReservationStatus = "converted"
	ReservationCancelled ReservationStatus = "cancelled"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationActive:  {ReservationExpired, ReservationConverted, ReservationCancelled},
	ReservationExpired: {ReservationCancelled},
}

type Reservation struct {
	ID                 uuid.UUID
	Code               string
	ShowID             uuid.UUID
	UserID             uuid.UUID
	Seats              []ReservedSeat
	TotalAmount        float64
	Status             ReservationStatus
	CreatedAt          time.Time
	ExpiresAt          time.Time
	UpdatedAt          time.Time
	ConvertedBookingID *uuid.UUID
}

func NewReservation(showID, userID uuid.UUID, seats []ReservedSeat, now time.Time, ttl time.Duration) Reservation {
	return Reservation{
		ID:          uuid.New(),
		Code:        NewCode(ReservationCodePrefix, now),
		ShowID:      showID,
		UserID:      userID,
		Seats:       seats,
		TotalAmount: TotalOf(seats),
		Status:      ReservationActive,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		UpdatedAt:   now,
	}
}

// IsExpired reports whether the hold deadline has passed at now. The status
// field is not consulted.
func (r Reservation) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Holding reports whether r still claims its seats at now.
func (r Reservation) Holding(now time.Time) bool {
	return r.Status == ReservationActive && !r.IsExpired(now)
}

// EffectiveStatus is the status a client should see: an overdue active hold
// reads as expired before the sweeper gets to it.
func (r Reservation) EffectiveStatus(now time.Time) ReservationStatus {
	if r.Status == ReservationActive && r.IsExpired(now) {
		return ReservationExpired
	}
	return r.Status
}

// RemainingTime is the whole seconds left on the hold, never negative.
func (r Reservation) RemainingTime(now time.Time) time.Duration {
	if r.EffectiveStatus(now) != ReservationActive {
		return 0
	}
	return r.ExpiresAt.Sub(now).Truncate(time.Second)
}

func (r Reservation) SeatKeys() []SeatKey {
	return seatKeys(r.Seats)
}

func (r Reservation) OwnedBy(userID uuid.UUID) bool {
	return r.UserID == userID
}

func (r *Reservation) transition(to ReservationStatus, now time.Time) error {
	if !slices.Contains(reservationTransitions[r.Status], to) {
		return errors.Wrapf(ErrInvalidTransition, "reservation %s: %s -> %s", r.Code, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// Expire moves an overdue active reservation to expired.
func (r *Reservation) Expire(now time.Time) error {
	if !r.IsExpired(now) {
		return errors.Wrapf(ErrInvalidTransition, "reservation %s not yet due", r.Code)
	}
	return r.transition(ReservationExpired, now)
}

func (r *Reservation) Cancel(now time.Time) error {
	if r.Status == ReservationConverted {
		return errors.Wrapf(ErrAlreadyConverted, "reservation %s", r.Code)
	}
	return r.transition(ReservationCancelled, now)
}

// CheckConvertible reports why r cannot become a booking at now. Overdue holds
// are rejected even when the sweeper has not marked them yet.
func (r Reservation) CheckConvertible(now time.Time) error {
	switch r.Status {
	case ReservationConverted:
		return errors.Wrapf(ErrAlreadyConverted, "reservation %s", r.Code)
	case ReservationCancelled:
		return errors.Wrapf(ErrReservationCancelled, "reservation %s", r.Code)
	case ReservationExpired:
		return errors.Wrapf(ErrReservationExpired, "reservation %s", r.Code)
	}
	if r.IsExpired(now) {
		return errors.Wrapf(ErrReservationExpired, "reservation %s expired at %s", r.Code, r.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// Convert links r to the booking it produced.
func (r *Reservation) Convert(bookingID uuid.UUID, now time.Time) error {
	if err := r.CheckConvertible(now); err != nil {
		return err
	}
	if err := r.transition(ReservationConverted, now); err != nil {
		return err
	}
	r.ConvertedBookingID = &bookingID
	return nil
}
