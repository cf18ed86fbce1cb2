// Package storage defines the persistence contract shared by the reservation
// store and the booking ledger. Every read-then-write on a show's seats runs
// inside WithShowTx, which serializes work per show and commits all writes
// made through the Tx as one unit.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/domain"
)

type Store interface {
	// WithShowTx runs fn with exclusive access to showID's inventory. Writes
	// are applied only if fn returns nil.
	WithShowTx(ctx context.Context, showID uuid.UUID, fn func(tx Tx) error) error

	Reservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	Booking(ctx context.Context, id uuid.UUID) (domain.Booking, error)

	// OverdueReservations lists active reservations whose deadline is <= now.
	OverdueReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	// OverduePendingBookings lists pending bookings past their payment window.
	OverduePendingBookings(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
}

// Tx is scoped to one show. Saving a reservation or booking of another show
// fails with ErrWrongShow.
type Tx interface {
	SeatMap(ctx context.Context) (*domain.SeatMap, error)
	SaveSeatMap(ctx context.Context, m *domain.SeatMap) error

	// ActiveReservations lists reservations of the show that are active with
	// a deadline after now.
	ActiveReservations(ctx context.Context, now time.Time) ([]domain.Reservation, error)
	Reservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	SaveReservation(ctx context.Context, r domain.Reservation) error

	Booking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	SaveBooking(ctx context.Context, b domain.Booking) error

	AppendEvent(ctx context.Context, evt domain.Event) error
}

// Outbox is read by the relay that publishes committed events.
type Outbox interface {
	UnpublishedEvents(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

type OutboxStatus string

const (
	OutboxNew       OutboxStatus = "NEW"
	OutboxPublished OutboxStatus = "PUBLISHED"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        OutboxStatus
	DedupeKey     string
}
