package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventReservationCreated   = "reservation.created"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationExpired   = "reservation.expired"
	EventReservationConverted = "reservation.converted"
	EventBookingCreated       = "booking.created"
	EventBookingConfirmed     = "booking.confirmed"
	EventBookingCancelled     = "booking.cancelled"
	EventBookingExpired       = "booking.expired"
	EventBookingRefunded      = "booking.refunded"
)

// Event is a state change recorded in the outbox in the same transaction as
// the change itself.
type Event struct {
	ID            uuid.UUID
	Type          string
	AggregateType string
	AggregateID   uuid.UUID
	OccurredAt    time.Time
	Payload       map[string]any
}

func ReservationEvent(eventType string, r Reservation, now time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateType: "reservation",
		AggregateID:   r.ID,
		OccurredAt:    now,
		Payload: map[string]any{
			"reservation_id":   r.ID,
			"reservation_code": r.Code,
			"show_id":          r.ShowID,
			"user_id":          r.UserID,
			"seats":            r.SeatKeys(),
			"status":           r.Status,
			"expires_at":       r.ExpiresAt.Format(time.RFC3339),
		},
	}
}

func BookingEvent(eventType string, b Booking, now time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateType: "booking",
		AggregateID:   b.ID,
		OccurredAt:    now,
		Payload: map[string]any{
			"booking_id":     b.ID,
			"booking_code":   b.Code,
			"show_id":        b.ShowID,
			"user_id":        b.UserID,
			"seats":          b.SeatKeys(),
			"status":         b.Status,
			"payment_status": b.PaymentStatus,
			"total_amount":   b.TotalAmount,
			"refund_amount":  b.RefundAmount,
		},
	}
}
