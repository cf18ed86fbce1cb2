// Package service exposes the reservation and booking use-cases. It is the
// only layer that spans catalog, reservation store, seat map and booking
// ledger in one operation.
package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/booking"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/payment"
	"github.com/robertarktes/showtime-reservations/internal/reservation"
	"github.com/robertarktes/showtime-reservations/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Catalog interface {
	GetShow(ctx context.Context, id uuid.UUID) (domain.Show, error)
}

type AuditLog interface {
	LogEvent(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) error
}

type Deps struct {
	Catalog      Catalog
	Store        storage.Store
	Reservations *reservation.Store
	Ledger       *booking.Ledger
	Audit        AuditLog
	Clock        clock.Clock
	Policy       domain.Policy
	Logger       observability.Logger
}

type ReservationService struct {
	catalog      Catalog
	store        storage.Store
	reservations *reservation.Store
	ledger       *booking.Ledger
	audit        AuditLog
	clock        clock.Clock
	policy       domain.Policy
	log          observability.Logger
	tracer       trace.Tracer
}

var _ payment.Handler = (*ReservationService)(nil)

func New(d Deps) *ReservationService {
	return &ReservationService{
		catalog:      d.Catalog,
		store:        d.Store,
		reservations: d.Reservations,
		ledger:       d.Ledger,
		audit:        d.Audit,
		clock:        d.Clock,
		policy:       d.Policy,
		log:          d.Logger.WithField("component", "reservation_service"),
		tracer:       otel.Tracer("showtime/service"),
	}
}

// ReservationView is a reservation as returned to clients.
type ReservationView struct {
	domain.Reservation
	RemainingTime time.Duration
}

func (s *ReservationService) view(r domain.Reservation) ReservationView {
	now := s.clock.Now()
	r.Status = r.EffectiveStatus(now)
	return ReservationView{Reservation: r, RemainingTime: r.RemainingTime(now)}
}

func (s *ReservationService) ReserveSeats(ctx context.Context, user domain.User, showID uuid.UUID, seats []domain.SeatKey) (view ReservationView, err error) {
	ctx, span := s.start(ctx, "ReserveSeats", attribute.String("show.id", showID.String()), attribute.Int("seats", len(seats)))
	defer func() { finish(span, err) }()

	show, err := s.catalog.GetShow(ctx, showID)
	if err != nil {
		return ReservationView{}, err
	}
	r, err := s.reservations.Reserve(ctx, show, user.ID, seats)
	if err != nil {
		return ReservationView{}, err
	}
	s.record(ctx, domain.EventReservationCreated, user.ID, map[string]interface{}{
		"reservation_id": r.ID.String(),
		"code":           r.Code,
		"show_id":        show.ID.String(),
		"seats":          len(r.Seats),
		"total_amount":   r.TotalAmount,
	})
	return s.view(r), nil
}

func (s *ReservationService) GetReservation(ctx context.Context, user domain.User, id uuid.UUID) (ReservationView, error) {
	r, err := s.reservations.Get(ctx, id)
	if err != nil {
		return ReservationView{}, err
	}
	if !r.OwnedBy(user.ID) && !user.IsAdmin() {
		return ReservationView{}, errors.Wrapf(domain.ErrNotOwner, "reservation %s", r.Code)
	}
	return s.view(r), nil
}

type ConvertRequest struct {
	PaymentMethod domain.PaymentMethod
	Customer      domain.CustomerDetails
}

func (s *ReservationService) ConvertReservation(ctx context.Context, user domain.User, id uuid.UUID, req ConvertRequest) (b domain.Booking, err error) {
	ctx, span := s.start(ctx, "ConvertReservation", attribute.String("reservation.id", id.String()))
	defer func() { finish(span, err) }()

	r, err := s.reservations.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if !r.OwnedBy(user.ID) {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotOwner, "reservation %s", r.Code)
	}
	show, err := s.catalog.GetShow(ctx, r.ShowID)
	if err != nil {
		return domain.Booking{}, err
	}
	b, err = s.reservations.Convert(ctx, show, id, user.ID, reservation.ConvertInput{
		PaymentMethod: req.PaymentMethod,
		Customer:      s.customer(user, req.Customer),
	})
	if err != nil {
		return domain.Booking{}, err
	}
	s.record(ctx, domain.EventReservationConverted, user.ID, map[string]interface{}{
		"reservation_id": id.String(),
		"booking_id":     b.ID.String(),
		"booking_code":   b.Code,
		"total_amount":   b.TotalAmount,
	})
	return b, nil
}

func (s *ReservationService) CancelReservation(ctx context.Context, user domain.User, id uuid.UUID) (ReservationView, error) {
	r, err := s.reservations.Cancel(ctx, id, user.ID)
	if err != nil {
		return ReservationView{}, err
	}
	s.record(ctx, domain.EventReservationCancelled, user.ID, map[string]interface{}{
		"reservation_id": id.String(),
		"code":           r.Code,
	})
	return s.view(r), nil
}

func (s *ReservationService) AvailableSeats(ctx context.Context, showID uuid.UUID) (reservation.Availability, error) {
	show, err := s.catalog.GetShow(ctx, showID)
	if err != nil {
		return reservation.Availability{}, err
	}
	return s.reservations.Availability(ctx, show)
}

type SweepResult struct {
	Reservations int
	Bookings     int
}

// SweepExpired runs one expiry pass on demand. Admin only.
func (s *ReservationService) SweepExpired(ctx context.Context, user domain.User) (SweepResult, error) {
	if !user.IsAdmin() {
		return SweepResult{}, domain.ErrAdminOnly
	}
	now := s.clock.Now()
	var res SweepResult
	var errs error
	var err error
	if res.Reservations, err = s.reservations.SweepExpired(ctx, now); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	if res.Bookings, err = s.ledger.ExpireUnpaid(ctx, now); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	return res, errs
}

type BookRequest struct {
	ShowID        uuid.UUID
	Seats         []domain.SeatKey
	PaymentMethod domain.PaymentMethod
	Customer      domain.CustomerDetails
}

// BookSeats sells seats without a prior hold. Seats under anyone's active hold
// are unavailable here; holders complete through ConvertReservation.
func (s *ReservationService) BookSeats(ctx context.Context, user domain.User, req BookRequest) (b domain.Booking, err error) {
	ctx, span := s.start(ctx, "BookSeats", attribute.String("show.id", req.ShowID.String()), attribute.Int("seats", len(req.Seats)))
	defer func() { finish(span, err) }()

	if err := reservation.ValidateSeatRequest(req.Seats, s.policy.MaxSeatsPerRequest); err != nil {
		return domain.Booking{}, err
	}
	if err := req.PaymentMethod.Validate(); err != nil {
		return domain.Booking{}, err
	}
	show, err := s.catalog.GetShow(ctx, req.ShowID)
	if err != nil {
		return domain.Booking{}, err
	}
	customer := s.customer(user, req.Customer)

	err = s.store.WithShowTx(ctx, show.ID, func(tx storage.Tx) error {
		now := s.clock.Now()
		if !show.Bookable(now) {
			return errors.Wrapf(domain.ErrShowNotBookable, "show %s", show.ID)
		}
		active, err := tx.ActiveReservations(ctx, now)
		if err != nil {
			return err
		}
		seats, m, err := reservation.Claim(ctx, tx, show, active, req.Seats)
		if err != nil {
			return err
		}
		if err := m.SetStatus(req.Seats, domain.SeatBooked); err != nil {
			return err
		}
		if err := tx.SaveSeatMap(ctx, m); err != nil {
			return err
		}
		b, err = s.ledger.Issue(ctx, tx, booking.IssueInput{
			Show:          show,
			UserID:        user.ID,
			Seats:         seats,
			TotalAmount:   domain.TotalOf(seats),
			PaymentMethod: req.PaymentMethod,
			Customer:      customer,
		}, now)
		return err
	})
	observability.BookingsTotal.WithLabelValues("book", observability.Outcome(err)).Inc()
	if err != nil {
		return domain.Booking{}, err
	}
	s.record(ctx, domain.EventBookingCreated, user.ID, map[string]interface{}{
		"booking_id":   b.ID.String(),
		"booking_code": b.Code,
		"show_id":      show.ID.String(),
		"total_amount": b.TotalAmount,
	})
	return b, nil
}

func (s *ReservationService) GetBooking(ctx context.Context, user domain.User, id uuid.UUID) (domain.Booking, error) {
	return s.ledger.Get(ctx, id, user)
}

func (s *ReservationService) CancelBooking(ctx context.Context, user domain.User, id uuid.UUID, reason string) (b domain.Booking, err error) {
	ctx, span := s.start(ctx, "CancelBooking", attribute.String("booking.id", id.String()))
	defer func() { finish(span, err) }()

	b, err = s.ledger.Cancel(ctx, id, user, reason)
	if err != nil {
		return domain.Booking{}, err
	}
	s.record(ctx, domain.EventBookingCancelled, user.ID, map[string]interface{}{
		"booking_id":    b.ID.String(),
		"booking_code":  b.Code,
		"refund_amount": b.RefundAmount,
		"reason":        b.CancellationReason,
	})
	return b, nil
}

// HandlePayment applies an asynchronous gateway outcome to its booking.
func (s *ReservationService) HandlePayment(ctx context.Context, r payment.Result) (domain.Booking, error) {
	if err := r.Validate(); err != nil {
		return domain.Booking{}, err
	}
	switch r.Status {
	case payment.StatusCompleted:
		return s.ledger.ConfirmPayment(ctx, r.BookingID, r.TransactionID)
	case payment.StatusFailed:
		reason := r.Reason
		if reason == "" {
			reason = "payment failed"
		}
		return s.ledger.FailPayment(ctx, r.BookingID, reason)
	default:
		return s.ledger.Settle(ctx, r.BookingID)
	}
}

func (s *ReservationService) customer(user domain.User, c domain.CustomerDetails) domain.CustomerDetails {
	if c.IsZero() {
		return domain.CustomerFromUser(user)
	}
	return c
}

// record writes an audit entry. Audit failures never fail the request.
func (s *ReservationService) record(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, action, userID, data); err != nil {
		s.log.WithError(err).WithField("action", action).Warn("audit log write failed")
	}
}

func (s *ReservationService) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
