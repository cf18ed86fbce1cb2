package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/payment"
	"github.com/robertarktes/showtime-reservations/internal/reservation"
	"github.com/robertarktes/showtime-reservations/internal/service"
)

// Service is the use-case surface the handlers drive.
type Service interface {
	ReserveSeats(ctx context.Context, user domain.User, showID uuid.UUID, seats []domain.SeatKey) (service.ReservationView, error)
	GetReservation(ctx context.Context, user domain.User, id uuid.UUID) (service.ReservationView, error)
	ConvertReservation(ctx context.Context, user domain.User, id uuid.UUID, req service.ConvertRequest) (domain.Booking, error)
	CancelReservation(ctx context.Context, user domain.User, id uuid.UUID) (service.ReservationView, error)
	AvailableSeats(ctx context.Context, showID uuid.UUID) (reservation.Availability, error)
	SweepExpired(ctx context.Context, user domain.User) (service.SweepResult, error)
	BookSeats(ctx context.Context, user domain.User, req service.BookRequest) (domain.Booking, error)
	GetBooking(ctx context.Context, user domain.User, id uuid.UUID) (domain.Booking, error)
	CancelBooking(ctx context.Context, user domain.User, id uuid.UUID, reason string) (domain.Booking, error)
	HandlePayment(ctx context.Context, r payment.Result) (domain.Booking, error)
}

// Checker is a named readiness probe.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handlers struct {
	svc    Service
	checks []Checker
}

func NewHandlers(svc Service, checks ...Checker) *Handlers {
	return &Handlers{svc: svc, checks: checks}
}

type seatRequest struct {
	ShowID uuid.UUID        `json:"show_id"`
	Seats  []domain.SeatKey `json:"seats"`
}

type convertRequest struct {
	PaymentMethod domain.PaymentMethod   `json:"payment_method"`
	Customer      domain.CustomerDetails `json:"customer"`
}

type bookRequest struct {
	ShowID        uuid.UUID              `json:"show_id"`
	Seats         []domain.SeatKey       `json:"seats"`
	PaymentMethod domain.PaymentMethod   `json:"payment_method"`
	Customer      domain.CustomerDetails `json:"customer"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type reservationResponse struct {
	ID               uuid.UUID             `json:"id"`
	Code             string                `json:"code"`
	ShowID           uuid.UUID             `json:"show_id"`
	UserID           uuid.UUID             `json:"user_id"`
	Seats            []domain.ReservedSeat `json:"seats"`
	TotalAmount      float64               `json:"total_amount"`
	Status           string                `json:"status"`
	CreatedAt        time.Time             `json:"created_at"`
	ExpiresAt        time.Time             `json:"expires_at"`
	RemainingSeconds int64                 `json:"remaining_seconds"`
	BookingID        *uuid.UUID            `json:"booking_id,omitempty"`
}

func toReservation(v service.ReservationView) reservationResponse {
	return reservationResponse{
		ID:               v.ID,
		Code:             v.Code,
		ShowID:           v.ShowID,
		UserID:           v.UserID,
		Seats:            v.Seats,
		TotalAmount:      v.TotalAmount,
		Status:           string(v.Status),
		CreatedAt:        v.CreatedAt,
		ExpiresAt:        v.ExpiresAt,
		RemainingSeconds: int64(v.RemainingTime / time.Second),
		BookingID:        v.ConvertedBookingID,
	}
}

type bookingResponse struct {
	ID                 uuid.UUID              `json:"id"`
	Code               string                 `json:"code"`
	ShowID             uuid.UUID              `json:"show_id"`
	UserID             uuid.UUID              `json:"user_id"`
	ReservationID      *uuid.UUID             `json:"reservation_id,omitempty"`
	Seats              []domain.ReservedSeat  `json:"seats"`
	NumberOfTickets    int                    `json:"number_of_tickets"`
	TotalAmount        float64                `json:"total_amount"`
	Currency           string                 `json:"currency"`
	Status             string                 `json:"status"`
	PaymentStatus      string                 `json:"payment_status"`
	PaymentMethod      string                 `json:"payment_method"`
	TransactionID      string                 `json:"transaction_id,omitempty"`
	Customer           domain.CustomerDetails `json:"customer"`
	ShowDateTime       time.Time              `json:"show_date_time"`
	CreatedAt          time.Time              `json:"created_at"`
	ExpiresAt          time.Time              `json:"expires_at"`
	CancelledAt        *time.Time             `json:"cancelled_at,omitempty"`
	CancellationReason string                 `json:"cancellation_reason,omitempty"`
	RefundAmount       float64                `json:"refund_amount"`
}

func toBooking(b domain.Booking) bookingResponse {
	return bookingResponse{
		ID:                 b.ID,
		Code:               b.Code,
		ShowID:             b.ShowID,
		UserID:             b.UserID,
		ReservationID:      b.ReservationID,
		Seats:              b.Seats,
		NumberOfTickets:    b.TicketCount(),
		TotalAmount:        b.TotalAmount,
		Currency:           b.Currency,
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		PaymentMethod:      string(b.PaymentMethod),
		TransactionID:      b.TransactionID,
		Customer:           b.Customer,
		ShowDateTime:       b.ShowDateTime,
		CreatedAt:          b.CreatedAt,
		ExpiresAt:          b.ExpiryDateTime,
		CancelledAt:        b.CancellationDateTime,
		CancellationReason: b.CancellationReason,
		RefundAmount:       b.RefundAmount,
	}
}

type availabilityResponse struct {
	ShowID         uuid.UUID        `json:"show_id"`
	Rows           []domain.SeatRow `json:"rows"`
	TotalAvailable int              `json:"total_available"`
	TotalSeats     int              `json:"total_seats"`
	ReservedSeats  int              `json:"reserved_seats"`
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	var req seatRequest
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ShowID == uuid.Nil {
		writeError(w, r, errors.Wrap(domain.ErrValidation, "show_id is required"))
		return
	}
	v, err := h.svc.ReserveSeats(r.Context(), user, req.ShowID, req.Seats)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservation(v))
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := h.svc.GetReservation(r.Context(), user, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservation(v))
}

func (h *Handlers) ConvertReservation(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req convertRequest
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.svc.ConvertReservation(r.Context(), user, id, service.ConvertRequest{
		PaymentMethod: req.PaymentMethod,
		Customer:      req.Customer,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBooking(b))
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := h.svc.CancelReservation(r.Context(), user, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservation(v))
}

func (h *Handlers) ShowSeats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := h.svc.AvailableSeats(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows := a.Rows
	if rows == nil {
		rows = []domain.SeatRow{}
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		ShowID:         a.ShowID,
		Rows:           rows,
		TotalAvailable: a.TotalAvailable,
		TotalSeats:     a.TotalSeats,
		ReservedSeats:  a.ReservedSeats,
	})
}

func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	res, err := h.svc.SweepExpired(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"expired_reservations": res.Reservations,
		"expired_bookings":     res.Bookings,
	})
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	var req bookRequest
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ShowID == uuid.Nil {
		writeError(w, r, errors.Wrap(domain.ErrValidation, "show_id is required"))
		return
	}
	b, err := h.svc.BookSeats(r.Context(), user, service.BookRequest{
		ShowID:        req.ShowID,
		Seats:         req.Seats,
		PaymentMethod: req.PaymentMethod,
		Customer:      req.Customer,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBooking(b))
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.GetBooking(r.Context(), user, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBooking(b))
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := decode(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.svc.CancelBooking(r.Context(), user, id, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBooking(b))
}

func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var res payment.Result
	if err := decode(w, r, &res, false); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.svc.HandlePayment(r.Context(), res)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBooking(b))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failed := make(map[string]string)
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not ready", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
