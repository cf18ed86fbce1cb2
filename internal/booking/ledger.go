// Package booking keeps the ledger of tickets: creation from a converted hold
// or the direct path, payment outcomes, cancellation with refunds, and expiry
// of unpaid bookings. Seat releases happen in the same show transaction as the
// status change.
package booking

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/storage"
)

type Ledger struct {
	store     storage.Store
	clock     clock.Clock
	policy    domain.Policy
	batchSize int
	log       observability.Logger
}

type Option func(*Ledger)

func WithPolicy(p domain.Policy) Option {
	return func(l *Ledger) { l.policy = p }
}

// WithBatchSize bounds how many overdue bookings one ExpireUnpaid pass loads.
func WithBatchSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

func NewLedger(store storage.Store, clk clock.Clock, log observability.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		clock:     clk,
		policy:    domain.DefaultPolicy(),
		batchSize: 500,
		log:       log.WithField("component", "booking_ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type IssueInput struct {
	Show          domain.Show
	UserID        uuid.UUID
	Seats         []domain.ReservedSeat
	TotalAmount   float64
	PaymentMethod domain.PaymentMethod
	Customer      domain.CustomerDetails
	ReservationID *uuid.UUID
}

// Issue records a pending booking inside tx. The caller has already moved the
// seats to booked in the same transaction.
func (l *Ledger) Issue(ctx context.Context, tx storage.Tx, in IssueInput, now time.Time) (domain.Booking, error) {
	if err := in.PaymentMethod.Validate(); err != nil {
		return domain.Booking{}, err
	}
	if err := in.Customer.Validate(); err != nil {
		return domain.Booking{}, err
	}
	if len(in.Seats) == 0 {
		return domain.Booking{}, domain.ErrNoSeatsRequested
	}
	currency := in.Show.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	b := domain.Booking{
		ID:             uuid.New(),
		Code:           domain.NewCode(domain.BookingCodePrefix, now),
		UserID:         in.UserID,
		ShowID:         in.Show.ID,
		ReservationID:  in.ReservationID,
		Seats:          in.Seats,
		TotalAmount:    in.TotalAmount,
		Currency:       currency,
		Status:         domain.BookingPending,
		PaymentStatus:  domain.PaymentPending,
		PaymentMethod:  in.PaymentMethod,
		Customer:       in.Customer,
		ShowDateTime:   in.Show.StartsAt,
		CreatedAt:      now,
		ExpiryDateTime: now.Add(l.policy.PaymentWindow),
		UpdatedAt:      now,
	}
	if err := tx.SaveBooking(ctx, b); err != nil {
		return domain.Booking{}, err
	}
	if err := tx.AppendEvent(ctx, domain.BookingEvent(domain.EventBookingCreated, b, now)); err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID, actor domain.User) (domain.Booking, error) {
	b, err := l.store.Booking(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if !b.AccessibleBy(actor) {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotOwner, "booking %s", b.Code)
	}
	return b, nil
}

// Cancel cancels the booking on behalf of actor (its owner or an admin),
// records the refund and returns the seats to the pool.
func (l *Ledger) Cancel(ctx context.Context, id uuid.UUID, actor domain.User, reason string) (domain.Booking, error) {
	return l.update(ctx, id, "cancel", func(ctx context.Context, tx storage.Tx, b *domain.Booking, now time.Time) (string, error) {
		if !b.AccessibleBy(actor) {
			return "", errors.Wrapf(domain.ErrNotOwner, "booking %s", b.Code)
		}
		if _, err := b.Cancel(strings.TrimSpace(reason), now, l.policy.Refund); err != nil {
			return "", err
		}
		if err := releaseSeats(ctx, tx, *b); err != nil {
			return "", err
		}
		return domain.EventBookingCancelled, nil
	})
}

// ConfirmPayment applies a successful payment. Redelivery of the same
// transaction is a no-op.
func (l *Ledger) ConfirmPayment(ctx context.Context, id uuid.UUID, transactionID string) (domain.Booking, error) {
	return l.update(ctx, id, "confirm", func(ctx context.Context, tx storage.Tx, b *domain.Booking, now time.Time) (string, error) {
		if b.Status == domain.BookingConfirmed && b.TransactionID == transactionID {
			return "", nil
		}
		if err := b.Confirm(transactionID, now); err != nil {
			return "", err
		}
		return domain.EventBookingConfirmed, nil
	})
}

// FailPayment cancels a pending booking after a failed payment and releases
// its seats.
func (l *Ledger) FailPayment(ctx context.Context, id uuid.UUID, reason string) (domain.Booking, error) {
	return l.update(ctx, id, "fail_payment", func(ctx context.Context, tx storage.Tx, b *domain.Booking, now time.Time) (string, error) {
		if b.Status == domain.BookingCancelled && b.PaymentStatus == domain.PaymentFailed {
			return "", nil
		}
		if err := b.FailPayment(reason, now); err != nil {
			return "", err
		}
		if err := releaseSeats(ctx, tx, *b); err != nil {
			return "", err
		}
		return domain.EventBookingCancelled, nil
	})
}

// Settle records that the refund of a cancelled booking has been paid out.
func (l *Ledger) Settle(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return l.update(ctx, id, "settle", func(ctx context.Context, tx storage.Tx, b *domain.Booking, now time.Time) (string, error) {
		if b.Status == domain.BookingRefunded {
			return "", nil
		}
		if err := b.Settle(now); err != nil {
			return "", err
		}
		return domain.EventBookingRefunded, nil
	})
}

// ExpireUnpaid expires pending bookings whose payment window closed at or
// before now and releases their seats. It returns how many it expired.
func (l *Ledger) ExpireUnpaid(ctx context.Context, now time.Time) (int, error) {
	var total int
	var errs error
	for {
		overdue, err := l.store.OverduePendingBookings(ctx, now, l.batchSize)
		if err != nil {
			return total, errors.CombineErrors(errs, err)
		}
		n, err := l.expireBatch(ctx, overdue, now)
		total += n
		errs = errors.CombineErrors(errs, err)
		if len(overdue) < l.batchSize || n == 0 {
			break
		}
	}
	if total > 0 {
		l.log.WithField("count", total).Info("expired unpaid bookings")
	}
	return total, errs
}

func (l *Ledger) expireBatch(ctx context.Context, overdue []domain.Booking, now time.Time) (int, error) {
	byShow := make(map[uuid.UUID][]uuid.UUID)
	for _, b := range overdue {
		byShow[b.ShowID] = append(byShow[b.ShowID], b.ID)
	}

	var total int
	var errs error
	for showID, ids := range byShow {
		n := 0
		err := l.store.WithShowTx(ctx, showID, func(tx storage.Tx) error {
			n = 0
			for _, id := range ids {
				b, err := tx.Booking(ctx, id)
				if err != nil {
					return err
				}
				if !b.PaymentOverdue(now) {
					continue
				}
				if err := b.Expire(now); err != nil {
					return err
				}
				if err := releaseSeats(ctx, tx, b); err != nil {
					return err
				}
				if err := tx.SaveBooking(ctx, b); err != nil {
					return err
				}
				if err := tx.AppendEvent(ctx, domain.BookingEvent(domain.EventBookingExpired, b, now)); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "expire bookings of show %s", showID))
			continue
		}
		total += n
	}
	return total, errs
}

type mutation func(ctx context.Context, tx storage.Tx, b *domain.Booking, now time.Time) (string, error)

// update runs fn on a fresh copy of the booking inside its show transaction.
// fn returns the event to record, or "" when nothing changed.
func (l *Ledger) update(ctx context.Context, id uuid.UUID, op string, fn mutation) (domain.Booking, error) {
	current, err := l.store.Booking(ctx, id)
	if err != nil {
		observability.BookingsTotal.WithLabelValues(op, observability.Outcome(err)).Inc()
		return domain.Booking{}, err
	}

	var out domain.Booking
	err = l.store.WithShowTx(ctx, current.ShowID, func(tx storage.Tx) error {
		b, err := tx.Booking(ctx, id)
		if err != nil {
			return err
		}
		now := l.clock.Now()
		eventType, err := fn(ctx, tx, &b, now)
		if err != nil {
			return err
		}
		out = b
		if eventType == "" {
			return nil
		}
		if err := tx.SaveBooking(ctx, b); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, domain.BookingEvent(eventType, b, now))
	})
	observability.BookingsTotal.WithLabelValues(op, observability.Outcome(err)).Inc()
	if err != nil {
		return domain.Booking{}, err
	}
	l.log.WithFields(map[string]interface{}{"op": op, "booking": out.Code, "status": out.Status}).Debug("booking updated")
	return out, nil
}

func releaseSeats(ctx context.Context, tx storage.Tx, b domain.Booking) error {
	m, err := tx.SeatMap(ctx)
	if err != nil {
		return err
	}
	if err := m.SetStatus(b.SeatKeys(), domain.SeatAvailable); err != nil {
		return errors.Wrapf(err, "release seats of booking %s", b.Code)
	}
	return tx.SaveSeatMap(ctx, m)
}
