package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/adapters/memory"
	"github.com/robertarktes/showtime-reservations/internal/booking"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/payment"
	"github.com/robertarktes/showtime-reservations/internal/reservation"
	"github.com/robertarktes/showtime-reservations/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

type env struct {
	svc   *service.ReservationService
	store *memory.Store
	audit *memory.AuditLog
	clock *clock.Fake
	show  domain.Show
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewFake(t0)
	log := observability.NewDiscardLogger()
	show := domain.Show{
		ID:       uuid.New(),
		Title:    "Opening night",
		StartsAt: t0.Add(72 * time.Hour),
		Status:   domain.ShowScheduled,
		Active:   true,
		Currency: "INR",
		Layout: []domain.RowLayout{{Label: "A", Seats: []domain.SeatLayout{
			{Number: "1", Class: domain.SeatPremium, Price: 200},
			{Number: "2", Class: domain.SeatPremium, Price: 200},
			{Number: "3", Class: domain.SeatPremium, Price: 200},
			{Number: "4", Class: domain.SeatPremium, Price: 200},
		}}},
	}
	audit := memory.NewAuditLog()
	ledger := booking.NewLedger(store, clk, log)
	svc := service.New(service.Deps{
		Catalog:      memory.NewCatalog(show),
		Store:        store,
		Reservations: reservation.NewStore(store, ledger, clk, log),
		Ledger:       ledger,
		Audit:        audit,
		Clock:        clk,
		Policy:       domain.DefaultPolicy(),
		Logger:       log,
	})
	return &env{svc: svc, store: store, audit: audit, clock: clk, show: show}
}

func user(name string) domain.User {
	return domain.User{ID: uuid.New(), Name: name, Email: name + "@example.com", Phone: "9000000000", Role: domain.RoleUser}
}

func seats(keys ...string) []domain.SeatKey {
	out := make([]domain.SeatKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, domain.SeatKey{Row: k[:1], Number: k[1:]})
	}
	return out
}

func TestHoldConvertScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u1, u2 := user("u1"), user("u2")

	r, err := e.svc.ReserveSeats(ctx, u1, e.show.ID, seats("A1", "A2"))
	require.NoError(t, err)
	assert.Equal(t, 400.0, r.TotalAmount)
	assert.Equal(t, domain.ReservationActive, r.Status)
	assert.Equal(t, 5*time.Minute, r.RemainingTime)

	_, err = e.svc.ReserveSeats(ctx, u2, e.show.ID, seats("A2", "A3"))
	assert.ErrorIs(t, err, domain.ErrSeatUnavailable)

	b, err := e.svc.ConvertReservation(ctx, u1, r.ID, service.ConvertRequest{PaymentMethod: domain.PaymentUPI})
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", b.Customer.Email)

	avail, err := e.svc.AvailableSeats(ctx, e.show.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, avail.TotalAvailable)

	_, err = e.svc.ReserveSeats(ctx, u2, e.show.ID, seats("A2", "A3"))
	assert.ErrorIs(t, err, domain.ErrSeatUnavailable)

	got, err := e.svc.GetReservation(ctx, u1, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConverted, got.Status)
	assert.Zero(t, got.RemainingTime)

	_, err = e.svc.CancelReservation(ctx, u1, r.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyConverted)

	cancelled, err := e.svc.CancelBooking(ctx, u1, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 320.0, cancelled.RefundAmount)

	_, err = e.svc.ReserveSeats(ctx, u2, e.show.ID, seats("A2", "A3"))
	assert.NoError(t, err)
}

func TestExpiryScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := user("late")
	admin := domain.User{ID: uuid.New(), Role: domain.RoleAdmin}

	r, err := e.svc.ReserveSeats(ctx, u, e.show.ID, seats("A1"))
	require.NoError(t, err)

	e.clock.Set(t0.Add(4 * time.Minute))
	res, err := e.svc.SweepExpired(ctx, admin)
	require.NoError(t, err)
	assert.Zero(t, res.Reservations)

	e.clock.Set(t0.Add(6 * time.Minute))
	res, err = e.svc.SweepExpired(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reservations)

	e.clock.Set(t0.Add(6*time.Minute + 30*time.Second))
	_, err = e.svc.ConvertReservation(ctx, u, r.ID, service.ConvertRequest{PaymentMethod: domain.PaymentCash})
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestSweepExpired_AdminOnly(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.SweepExpired(context.Background(), user("someone"))
	assert.ErrorIs(t, err, domain.ErrAdminOnly)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestConcurrentHoldsAreDisjoint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	requests := [][]domain.SeatKey{
		seats("A1", "A2"), seats("A2", "A3"), seats("A3", "A4"), seats("A4", "A1"),
		seats("A1"), seats("A2"), seats("A3"), seats("A4"),
	}
	var mu sync.Mutex
	var held []service.ReservationView
	var wg sync.WaitGroup
	for _, req := range requests {
		wg.Add(1)
		go func(req []domain.SeatKey) {
			defer wg.Done()
			r, err := e.svc.ReserveSeats(ctx, user("c"), e.show.ID, req)
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrConflict)
				return
			}
			mu.Lock()
			held = append(held, r)
			mu.Unlock()
		}(req)
	}
	wg.Wait()

	seen := map[domain.SeatKey]bool{}
	for _, r := range held {
		for _, k := range r.SeatKeys() {
			assert.False(t, seen[k], "seat %s held twice", k)
			seen[k] = true
		}
	}
	assert.NotEmpty(t, held)
}

func TestGetReservation_Access(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := user("owner")
	r, err := e.svc.ReserveSeats(ctx, owner, e.show.ID, seats("A1"))
	require.NoError(t, err)

	_, err = e.svc.GetReservation(ctx, user("other"), r.ID)
	assert.ErrorIs(t, err, domain.ErrNotOwner)
	_, err = e.svc.GetReservation(ctx, domain.User{ID: uuid.New(), Role: domain.RoleAdmin}, r.ID)
	assert.NoError(t, err)
	_, err = e.svc.ConvertReservation(ctx, user("other"), r.ID, service.ConvertRequest{PaymentMethod: domain.PaymentUPI})
	assert.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestReserveSeats_UnknownShow(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.ReserveSeats(context.Background(), user("x"), uuid.New(), seats("A1"))
	assert.ErrorIs(t, err, domain.ErrShowNotFound)
}

func TestBookSeats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	holder, buyer := user("holder"), user("buyer")

	_, err := e.svc.ReserveSeats(ctx, holder, e.show.ID, seats("A1"))
	require.NoError(t, err)

	_, err = e.svc.BookSeats(ctx, buyer, service.BookRequest{ShowID: e.show.ID, Seats: seats("A1", "A2"), PaymentMethod: domain.PaymentDebitCard})
	assert.ErrorIs(t, err, domain.ErrSeatUnavailable)

	b, err := e.svc.BookSeats(ctx, buyer, service.BookRequest{
		ShowID:        e.show.ID,
		Seats:         seats("A2", "A3"),
		PaymentMethod: domain.PaymentDebitCard,
		Customer:      domain.CustomerDetails{Name: "Gift", Email: "gift@example.com", Phone: "9222222222"},
	})
	require.NoError(t, err)
	assert.Equal(t, 400.0, b.TotalAmount)
	assert.Equal(t, "gift@example.com", b.Customer.Email)
	assert.Nil(t, b.ReservationID)

	_, err = e.svc.BookSeats(ctx, buyer, service.BookRequest{ShowID: e.show.ID, Seats: seats("A4"), PaymentMethod: "cheque"})
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentMethod)

	avail, err := e.svc.AvailableSeats(ctx, e.show.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, avail.TotalAvailable)
}

func TestHandlePayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := user("payer")

	paid, err := e.svc.BookSeats(ctx, u, service.BookRequest{ShowID: e.show.ID, Seats: seats("A1"), PaymentMethod: domain.PaymentUPI})
	require.NoError(t, err)
	got, err := e.svc.HandlePayment(ctx, payment.Result{BookingID: paid.ID, Status: payment.StatusCompleted, TransactionID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, got.Status)

	failed, err := e.svc.BookSeats(ctx, u, service.BookRequest{ShowID: e.show.ID, Seats: seats("A2"), PaymentMethod: domain.PaymentUPI})
	require.NoError(t, err)
	got, err = e.svc.HandlePayment(ctx, payment.Result{BookingID: failed.ID, Status: payment.StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, got.Status)
	assert.Equal(t, "payment failed", got.CancellationReason)

	_, err = e.svc.CancelBooking(ctx, u, paid.ID, "refund me")
	require.NoError(t, err)
	got, err = e.svc.HandlePayment(ctx, payment.Result{BookingID: paid.ID, Status: payment.StatusRefunded})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingRefunded, got.Status)

	_, err = e.svc.HandlePayment(ctx, payment.Result{BookingID: paid.ID, Status: "lost"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.svc.HandlePayment(ctx, payment.Result{BookingID: uuid.New(), Status: payment.StatusFailed})
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

type failingAudit struct{}

func (failingAudit) LogEvent(context.Context, string, uuid.UUID, map[string]interface{}) error {
	return errors.New("mongo down")
}

func TestAudit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := user("audited")
	_, err := e.svc.ReserveSeats(ctx, u, e.show.ID, seats("A1"))
	require.NoError(t, err)

	entries := e.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventReservationCreated, entries[0].Action)
	assert.Equal(t, u.ID, entries[0].UserID)

	store := memory.NewStore()
	log := observability.NewDiscardLogger()
	ledger := booking.NewLedger(store, e.clock, log)
	svc := service.New(service.Deps{
		Catalog:      memory.NewCatalog(e.show),
		Store:        store,
		Reservations: reservation.NewStore(store, ledger, e.clock, log),
		Ledger:       ledger,
		Audit:        failingAudit{},
		Clock:        e.clock,
		Policy:       domain.DefaultPolicy(),
		Logger:       log,
	})
	_, err = svc.ReserveSeats(ctx, u, e.show.ID, seats("A1"))
	assert.NoError(t, err, "audit failures do not fail the request")
}
