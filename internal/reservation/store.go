// Package reservation owns seat holds: creating them, expiring them, and
// promoting them into bookings. Holds are soft: they live in the reservation
// index only and the seat map changes when a hold becomes a booking.
package reservation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/booking"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/storage"
)

type Store struct {
	store     storage.Store
	ledger    *booking.Ledger
	clock     clock.Clock
	policy    domain.Policy
	batchSize int
	log       observability.Logger
}

type Option func(*Store)

func WithPolicy(p domain.Policy) Option {
	return func(s *Store) { s.policy = p }
}

func WithSweepBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func NewStore(store storage.Store, ledger *booking.Ledger, clk clock.Clock, log observability.Logger, opts ...Option) *Store {
	s := &Store{
		store:     store,
		ledger:    ledger,
		clock:     clk,
		policy:    domain.DefaultPolicy(),
		batchSize: 500,
		log:       log.WithField("component", "reservation_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateSeatRequest rejects empty, oversized and duplicated seat lists.
func ValidateSeatRequest(keys []domain.SeatKey, max int) error {
	if len(keys) == 0 {
		return domain.ErrNoSeatsRequested
	}
	if len(keys) > max {
		return errors.Wrapf(domain.ErrSeatLimitExceeded, "%d seats requested, at most %d allowed", len(keys), max)
	}
	seen := make(map[domain.SeatKey]struct{}, len(keys))
	for _, k := range keys {
		if !k.Valid() {
			return errors.Wrapf(domain.ErrInvalidSeat, "seat %q", k)
		}
		if _, dup := seen[k]; dup {
			return errors.Wrapf(domain.ErrDuplicateSeatInRequest, "seat %s", k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// Claim checks that every requested seat exists, is available in the seat map
// and is not held by an active reservation, and captures class and price. It
// must run inside the show transaction.
func Claim(ctx context.Context, tx storage.Tx, show domain.Show, active []domain.Reservation, keys []domain.SeatKey) ([]domain.ReservedSeat, *domain.SeatMap, error) {
	claimed := storage.ClaimedSeats(active)
	m, err := storage.LoadSeatMap(ctx, tx, show)
	if err != nil {
		return nil, nil, err
	}
	seats := make([]domain.ReservedSeat, 0, len(keys))
	for _, k := range keys {
		if _, held := claimed[k]; held {
			return nil, nil, errors.Wrapf(domain.ErrSeatUnavailable, "seat %s%s is temporarily reserved", k.Row, k.Number)
		}
		seat, ok := m.FindSeat(k.Row, k.Number)
		if !ok {
			return nil, nil, errors.Wrapf(domain.ErrInvalidSeat, "seat %s%s does not exist", k.Row, k.Number)
		}
		if seat.Status != domain.SeatAvailable {
			return nil, nil, errors.Wrapf(domain.ErrSeatUnavailable, "seat %s%s is %s", k.Row, k.Number, seat.Status)
		}
		seats = append(seats, domain.ReservedSeat{Row: seat.Row, Number: seat.Number, Class: seat.Class, Price: seat.Price})
	}
	return seats, m, nil
}

// Reserve places a hold on keys for userID. The availability check, the
// one-hold-per-user rule and the insert run in one show transaction, so two
// concurrent requests for the same seat cannot both succeed.
func (s *Store) Reserve(ctx context.Context, show domain.Show, userID uuid.UUID, keys []domain.SeatKey) (domain.Reservation, error) {
	var out domain.Reservation
	err := ValidateSeatRequest(keys, s.policy.MaxSeatsPerRequest)
	if err == nil {
		err = s.store.WithShowTx(ctx, show.ID, func(tx storage.Tx) error {
			now := s.clock.Now()
			if !show.Bookable(now) {
				return errors.Wrapf(domain.ErrShowNotBookable, "show %s", show.ID)
			}
			active, err := tx.ActiveReservations(ctx, now)
			if err != nil {
				return err
			}
			seats, _, err := Claim(ctx, tx, show, active, keys)
			if err != nil {
				return err
			}
			for _, r := range active {
				if r.UserID == userID {
					return errors.Wrapf(domain.ErrActiveReservationExists, "reservation %s", r.Code)
				}
			}
			r := domain.NewReservation(show.ID, userID, seats, now, s.policy.HoldTTL)
			if err := tx.SaveReservation(ctx, r); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, domain.ReservationEvent(domain.EventReservationCreated, r, now)); err != nil {
				return err
			}
			out = r
			return nil
		})
	}
	observability.ReservationsTotal.WithLabelValues("reserve", observability.Outcome(err)).Inc()
	if err != nil {
		return domain.Reservation{}, err
	}
	s.log.WithFields(map[string]interface{}{"reservation": out.Code, "show_id": show.ID, "seats": len(out.Seats)}).Info("seats reserved")
	return out, nil
}

// Get returns the reservation with an overdue active hold reported as expired.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	r, err := s.store.Reservation(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	r.Status = r.EffectiveStatus(s.clock.Now())
	return r, nil
}

// Cancel releases userID's hold. Cancelling an already cancelled hold is a
// no-op; converted holds can only be undone by cancelling the booking.
func (s *Store) Cancel(ctx context.Context, id, userID uuid.UUID) (domain.Reservation, error) {
	current, err := s.store.Reservation(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	var out domain.Reservation
	err = s.store.WithShowTx(ctx, current.ShowID, func(tx storage.Tx) error {
		r, err := tx.Reservation(ctx, id)
		if err != nil {
			return err
		}
		if !r.OwnedBy(userID) {
			return errors.Wrapf(domain.ErrNotOwner, "reservation %s", r.Code)
		}
		out = r
		if r.Status == domain.ReservationCancelled {
			return nil
		}
		now := s.clock.Now()
		if err := r.Cancel(now); err != nil {
			return err
		}
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		out = r
		return tx.AppendEvent(ctx, domain.ReservationEvent(domain.EventReservationCancelled, r, now))
	})
	observability.ReservationsTotal.WithLabelValues("cancel", observability.Outcome(err)).Inc()
	if err != nil {
		return domain.Reservation{}, err
	}
	return out, nil
}

type ConvertInput struct {
	PaymentMethod domain.PaymentMethod
	Customer      domain.CustomerDetails
}

// Convert turns userID's active hold into a pending booking. The seat map
// transition, the booking insert and the reservation status change commit
// together or not at all.
func (s *Store) Convert(ctx context.Context, show domain.Show, id, userID uuid.UUID, in ConvertInput) (domain.Booking, error) {
	var out domain.Booking
	err := s.store.WithShowTx(ctx, show.ID, func(tx storage.Tx) error {
		r, err := tx.Reservation(ctx, id)
		if err != nil {
			return err
		}
		if r.ShowID != show.ID {
			return errors.Wrapf(domain.ErrReservationNotFound, "reservation %s is not for show %s", r.Code, show.ID)
		}
		if !r.OwnedBy(userID) {
			return errors.Wrapf(domain.ErrNotOwner, "reservation %s", r.Code)
		}
		now := s.clock.Now()
		if err := r.CheckConvertible(now); err != nil {
			return err
		}
		m, err := storage.LoadSeatMap(ctx, tx, show)
		if err != nil {
			return err
		}
		if err := m.SetStatus(r.SeatKeys(), domain.SeatBooked); err != nil {
			return err
		}
		reservationID := r.ID
		b, err := s.ledger.Issue(ctx, tx, booking.IssueInput{
			Show:          show,
			UserID:        r.UserID,
			Seats:         r.Seats,
			TotalAmount:   r.TotalAmount,
			PaymentMethod: in.PaymentMethod,
			Customer:      in.Customer,
			ReservationID: &reservationID,
		}, now)
		if err != nil {
			return err
		}
		if err := r.Convert(b.ID, now); err != nil {
			return err
		}
		if err := tx.SaveSeatMap(ctx, m); err != nil {
			return err
		}
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, domain.ReservationEvent(domain.EventReservationConverted, r, now)); err != nil {
			return err
		}
		out = b
		return nil
	})
	observability.ReservationsTotal.WithLabelValues("convert", observability.Outcome(err)).Inc()
	if err != nil {
		return domain.Booking{}, err
	}
	s.log.WithFields(map[string]interface{}{"booking": out.Code, "show_id": show.ID}).Info("reservation converted")
	return out, nil
}

// SweepExpired marks every active reservation whose deadline is at or before
// now as expired. Each candidate is re-read under its show transaction, so a
// hold converted or cancelled in the meantime is left alone. Overdue holds are
// loaded batch by batch until a short batch or a batch that expired nothing.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	var total int
	var errs error
	for {
		overdue, err := s.store.OverdueReservations(ctx, now, s.batchSize)
		if err != nil {
			return total, errors.CombineErrors(errs, err)
		}
		n, err := s.expireBatch(ctx, overdue, now)
		total += n
		errs = errors.CombineErrors(errs, err)
		if len(overdue) < s.batchSize || n == 0 {
			break
		}
	}
	if total > 0 {
		s.log.WithField("count", total).Info("expired reservations")
	}
	return total, errs
}

func (s *Store) expireBatch(ctx context.Context, overdue []domain.Reservation, now time.Time) (int, error) {
	byShow := make(map[uuid.UUID][]uuid.UUID)
	for _, r := range overdue {
		byShow[r.ShowID] = append(byShow[r.ShowID], r.ID)
	}

	var total int
	var errs error
	for showID, ids := range byShow {
		n := 0
		err := s.store.WithShowTx(ctx, showID, func(tx storage.Tx) error {
			n = 0
			for _, id := range ids {
				r, err := tx.Reservation(ctx, id)
				if err != nil {
					return err
				}
				if r.Status != domain.ReservationActive || !r.IsExpired(now) {
					continue
				}
				if err := r.Expire(now); err != nil {
					return err
				}
				if err := tx.SaveReservation(ctx, r); err != nil {
					return err
				}
				if err := tx.AppendEvent(ctx, domain.ReservationEvent(domain.EventReservationExpired, r, now)); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "sweep show %s", showID))
			continue
		}
		total += n
	}
	return total, errs
}

type Availability struct {
	ShowID         uuid.UUID
	Rows           []domain.SeatRow
	TotalAvailable int
	TotalSeats     int
	ReservedSeats  int
}

// Availability is a point-in-time view: seats available in the seat map minus
// those under an active hold. It reserves nothing.
func (s *Store) Availability(ctx context.Context, show domain.Show) (Availability, error) {
	out := Availability{ShowID: show.ID}
	err := s.store.WithShowTx(ctx, show.ID, func(tx storage.Tx) error {
		now := s.clock.Now()
		active, err := tx.ActiveReservations(ctx, now)
		if err != nil {
			return err
		}
		claimed := storage.ClaimedSeats(active)
		m, err := storage.LoadSeatMap(ctx, tx, show)
		if err != nil {
			return err
		}
		rowIndex := make(map[string]int)
		for seat := range m.AvailableSeats() {
			if _, held := claimed[seat.Key()]; held {
				continue
			}
			i, ok := rowIndex[seat.Row]
			if !ok {
				i = len(out.Rows)
				rowIndex[seat.Row] = i
				out.Rows = append(out.Rows, domain.SeatRow{Label: seat.Row})
			}
			out.Rows[i].Seats = append(out.Rows[i].Seats, seat)
			out.TotalAvailable++
		}
		out.TotalSeats = m.Counts().Total
		out.ReservedSeats = len(claimed)
		return nil
	})
	if err != nil {
		return Availability{}, err
	}
	return out, nil
}
