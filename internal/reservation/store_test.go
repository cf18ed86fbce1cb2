package reservation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/adapters/memory"
	"github.com/robertarktes/showtime-reservations/internal/booking"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/reservation"
	"github.com/robertarktes/showtime-reservations/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store        *memory.Store
	clock        *clock.Fake
	show         domain.Show
	reservations *reservation.Store
	ledger       *booking.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.NewStore()
	clk := clock.NewFake(t0)
	log := observability.NewDiscardLogger()
	ledger := booking.NewLedger(s, clk, log)
	return &fixture{
		store:        s,
		clock:        clk,
		show:         show(),
		reservations: reservation.NewStore(s, ledger, clk, log),
		ledger:       ledger,
	}
}

func show() domain.Show {
	return domain.Show{
		ID:       uuid.New(),
		Title:    "Evening",
		StartsAt: t0.Add(48 * time.Hour),
		Status:   domain.ShowScheduled,
		Active:   true,
		Currency: "INR",
		Layout: []domain.RowLayout{
			{Label: "A", Seats: []domain.SeatLayout{
				{Number: "1", Class: domain.SeatPremium, Price: 250},
				{Number: "2", Class: domain.SeatPremium, Price: 250},
				{Number: "3", Class: domain.SeatPremium, Price: 250},
			}},
			{Label: "B", Seats: []domain.SeatLayout{
				{Number: "1", Class: domain.SeatEconomy, Price: 120},
				{Number: "2", Class: domain.SeatEconomy, Price: 120, Blocked: true},
			}},
		},
	}
}

func seats(keys ...string) []domain.SeatKey {
	out := make([]domain.SeatKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, domain.SeatKey{Row: k[:1], Number: k[1:]})
	}
	return out
}

var convertInput = reservation.ConvertInput{
	PaymentMethod: domain.PaymentCreditCard,
	Customer:      domain.CustomerDetails{Name: "Meera", Email: "meera@example.com", Phone: "9000000001"},
}

func TestValidateSeatRequest(t *testing.T) {
	tests := []struct {
		name string
		keys []domain.SeatKey
		want error
	}{
		{"ok", seats("A1", "A2"), nil},
		{"empty", nil, domain.ErrNoSeatsRequested},
		{"duplicate", seats("A1", "A1"), domain.ErrDuplicateSeatInRequest},
		{"too many", seats("A1", "A2", "A3"), domain.ErrSeatLimitExceeded},
		{"blank row", []domain.SeatKey{{Row: " ", Number: "1"}}, domain.ErrInvalidSeat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reservation.ValidateSeatRequest(tt.keys, 2)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestReserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	r, err := f.reservations.Reserve(ctx, f.show, user, seats("A1", "B1"))
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationActive, r.Status)
	assert.Equal(t, 370.0, r.TotalAmount)
	assert.Equal(t, t0.Add(domain.DefaultHoldTTL), r.ExpiresAt)
	assert.Equal(t, domain.SeatPremium, r.Seats[0].Class)
	assert.Contains(t, r.Code, domain.ReservationCodePrefix)

	events, err := f.store.UnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventReservationCreated, events[0].EventType)
}

func TestReserve_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	_, err := f.reservations.Reserve(ctx, f.show, user, seats("A1"))
	require.NoError(t, err)

	_, err = f.reservations.Reserve(ctx, f.show, uuid.New(), seats("A1"))
	assert.ErrorIs(t, err, domain.ErrSeatUnavailable)

	_, err = f.reservations.Reserve(ctx, f.show, user, seats("A2"))
	assert.ErrorIs(t, err, domain.ErrActiveReservationExists)

	_, err = f.reservations.Reserve(ctx, f.show, uuid.New(), seats("B2"))
	assert.ErrorIs(t, err, domain.ErrSeatUnavailable)

	_, err = f.reservations.Reserve(ctx, f.show, uuid.New(), seats("Z9"))
	assert.ErrorIs(t, err, domain.ErrInvalidSeat)

	closed := f.show
	closed.Status = domain.ShowCancelled
	_, err = f.reservations.Reserve(ctx, closed, uuid.New(), seats("A3"))
	assert.ErrorIs(t, err, domain.ErrShowNotBookable)
}

func TestReserve_ConcurrentSameSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.reservations.Reserve(ctx, f.show, uuid.New(), seats("A1"))
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, ok)
}

func TestReserve_ExpiredHoldFreesSeatBeforeSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reservations.Reserve(ctx, f.show, uuid.New(), seats("A1"))
	require.NoError(t, err)

	f.clock.Advance(domain.DefaultHoldTTL)
	_, err = f.reservations.Reserve(ctx, f.show, uuid.New(), seats("A1"))
	assert.NoError(t, err)
}

func TestConvert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	r, err := f.reservations.Reserve(ctx, f.show, user, seats("A1", "A2"))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	b, err := f.reservations.Convert(ctx, f.show, r.ID, user, convertInput)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Equal(t, 500.0, b.TotalAmount)
	assert.Equal(t, "INR", b.Currency)
	assert.Equal(t, f.clock.Now().Add(domain.DefaultPaymentWindow), b.ExpiryDateTime)
	require.NotNil(t, b.ReservationID)
	assert.Equal(t, r.ID, *b.ReservationID)

	got, err := f.reservations.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConverted, got.Status)
	require.NotNil(t, got.ConvertedBookingID)
	assert.Equal(t, b.ID, *got.ConvertedBookingID)

	avail, err := f.reservations.Availability(ctx, f.show)
	require.NoError(t, err)
	assert.Equal(t, 2, avail.TotalAvailable)
	assert.Zero(t, avail.ReservedSeats)

	_, err = f.reservations.Convert(ctx, f.show, r.ID, user, convertInput)
	assert.ErrorIs(t, err, domain.ErrAlreadyConverted)
}

func TestConvert_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	r, err := f.reservations.Reserve(ctx, f.show, user, seats("A1"))
	require.NoError(t, err)

	_, err = f.reservations.Convert(ctx, f.show, r.ID, uuid.New(), convertInput)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	bad := convertInput
	bad.PaymentMethod = "iou"
	_, err = f.reservations.Convert(ctx, f.show, r.ID, user, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentMethod)

	_, err = f.reservations.Convert(ctx, f.show, uuid.New(), user, convertInput)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)

	got, err := f.reservations.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationActive, got.Status)
}

func TestConvert_ExpiredHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	r, err := f.reservations.Reserve(ctx, f.show, user, seats("A1"))
	require.NoError(t, err)

	f.clock.Advance(domain.DefaultHoldTTL + time.Second)
	_, err = f.reservations.Convert(ctx, f.show, r.ID, user, convertInput)
	assert.ErrorIs(t, err, domain.ErrReservationExpired)

	got, err := f.reservations.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, got.Status)
}

func TestConvert_SeatTakenRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	r, err := f.reservations.Reserve(ctx, f.show, user, seats("A1", "A2"))
	require.NoError(t, err)

	// Another writer books A2 directly, behind the hold's back.
	require.NoError(t, f.store.WithShowTx(ctx, f.show.ID, func(tx storage.Tx) error {
		m, err := storage.LoadSeatMap(ctx, tx, f.show)
		if err != nil {
			return err
		}
		if err := m.SetStatus(seats("A2"), domain.SeatBooked); err != nil {
			return err
		}
		return tx.SaveSeatMap(ctx, m)
	}))

	_, err = f.reservations.Convert(ctx, f.show, r.ID, user, convertInput)
	assert.ErrorIs(t, err, domain.ErrSeatConflict)

	got, err := f.reservations.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationActive, got.Status)
	require.NoError(t, f.store.WithShowTx(ctx, f.show.ID, func(tx storage.Tx) error {
		m, err := tx.SeatMap(ctx)
		require.NoError(t, err)
		a1, _ := m.FindSeat("A", "1")
		assert.Equal(t, domain.SeatAvailable, a1.Status)
		return nil
	}))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	r, err := f.reservations.Reserve(ctx, f.show, user, seats("A1"))
	require.NoError(t, err)

	_, err = f.reservations.Cancel(ctx, r.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	got, err := f.reservations.Cancel(ctx, r.ID, user)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, got.Status)

	again, err := f.reservations.Cancel(ctx, r.ID, user)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, again.Status)

	_, err = f.reservations.Reserve(ctx, f.show, uuid.New(), seats("A1"))
	assert.NoError(t, err)
}

func TestCancel_ConvertedHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	r, err := f.reservations.Reserve(ctx, f.show, user, seats("A1"))
	require.NoError(t, err)
	_, err = f.reservations.Convert(ctx, f.show, r.ID, user, convertInput)
	require.NoError(t, err)

	_, err = f.reservations.Cancel(ctx, r.ID, user)
	assert.ErrorIs(t, err, domain.ErrAlreadyConverted)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.reservations.Reserve(ctx, f.show, uuid.New(), seats("A1"))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)
	second, err := f.reservations.Reserve(ctx, f.show, uuid.New(), seats("A2"))
	require.NoError(t, err)

	n, err := f.reservations.SweepExpired(ctx, t0.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.reservations.SweepExpired(ctx, t0.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.Reservation(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, got.Status)
	got, err = f.store.Reservation(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationActive, got.Status)

	n, err = f.reservations.SweepExpired(ctx, t0.Add(6*time.Minute+30*time.Second))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.reservations.SweepExpired(ctx, t0.Add(7*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweepExpired_MoreThanOneBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reservations := reservation.NewStore(f.store, f.ledger, f.clock, observability.NewDiscardLogger(),
		reservation.WithSweepBatchSize(3))

	var ids []uuid.UUID
	for _, key := range []string{"A1", "A2", "A3", "B1"} {
		r, err := reservations.Reserve(ctx, f.show, uuid.New(), seats(key))
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	n, err := reservations.SweepExpired(ctx, t0.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	for _, id := range ids {
		got, err := f.store.Reservation(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationExpired, got.Status)
	}

	overdue, err := f.store.OverdueReservations(ctx, t0.Add(6*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestSweepExpired_SkipsConverted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	r, err := f.reservations.Reserve(ctx, f.show, user, seats("A1"))
	require.NoError(t, err)
	_, err = f.reservations.Convert(ctx, f.show, r.ID, user, convertInput)
	require.NoError(t, err)

	n, err := f.reservations.SweepExpired(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err := f.store.Reservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConverted, got.Status)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	avail, err := f.reservations.Availability(ctx, f.show)
	require.NoError(t, err)
	assert.Equal(t, 5, avail.TotalSeats)
	assert.Equal(t, 4, avail.TotalAvailable)

	_, err = f.reservations.Reserve(ctx, f.show, uuid.New(), seats("A1", "B1"))
	require.NoError(t, err)
	avail, err = f.reservations.Availability(ctx, f.show)
	require.NoError(t, err)
	assert.Equal(t, 2, avail.TotalAvailable)
	assert.Equal(t, 2, avail.ReservedSeats)
	require.Len(t, avail.Rows, 1)
	assert.Equal(t, "A", avail.Rows[0].Label)
	assert.Len(t, avail.Rows[0].Seats, 2)
}
