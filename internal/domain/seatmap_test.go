package domain_test

import (
	"slices"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func layoutShow() domain.Show {
	return domain.Show{
		ID:       uuid.New(),
		StartsAt: time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC),
		Status:   domain.ShowScheduled,
		Active:   true,
		Layout: []domain.RowLayout{
			{Label: "A", Seats: []domain.SeatLayout{
				{Number: "1", Class: domain.SeatPremium, Price: 300},
				{Number: "2", Class: domain.SeatPremium, Price: 300},
				{Number: "3", Class: domain.SeatPremium, Price: 300, Blocked: true},
			}},
			{Label: "B", Seats: []domain.SeatLayout{
				{Number: "1", Class: domain.SeatEconomy, Price: 150},
			}},
		},
	}
}

func key(row, number string) domain.SeatKey {
	return domain.SeatKey{Row: row, Number: number}
}

func TestNewSeatMap_Counts(t *testing.T) {
	m := domain.NewSeatMap(layoutShow())

	assert.Equal(t, domain.SeatCounts{Total: 4, Booked: 0, Available: 3}, m.Counts())
	seat, ok := m.FindSeat("A", "3")
	require.True(t, ok)
	assert.Equal(t, domain.SeatBlocked, seat.Status)

	_, ok = m.FindSeat("Z", "9")
	assert.False(t, ok)
}

func TestSeatMap_SetStatusKeepsCountersInStep(t *testing.T) {
	m := domain.NewSeatMap(layoutShow())

	require.NoError(t, m.SetStatus([]domain.SeatKey{key("A", "1"), key("B", "1")}, domain.SeatHeld))
	assert.Equal(t, m.Recount(), m.Counts())
	assert.Equal(t, 1, m.Counts().Available)

	require.NoError(t, m.SetStatus([]domain.SeatKey{key("A", "1")}, domain.SeatBooked))
	assert.Equal(t, m.Recount(), m.Counts())
	assert.Equal(t, 1, m.Counts().Booked)

	require.NoError(t, m.SetStatus([]domain.SeatKey{key("A", "1"), key("B", "1")}, domain.SeatAvailable))
	assert.Equal(t, m.Recount(), m.Counts())
	assert.Equal(t, domain.SeatCounts{Total: 4, Booked: 0, Available: 3}, m.Counts())
}

func TestSeatMap_SetStatusIsAllOrNothing(t *testing.T) {
	m := domain.NewSeatMap(layoutShow())
	require.NoError(t, m.SetStatus([]domain.SeatKey{key("A", "2")}, domain.SeatHeld))

	err := m.SetStatus([]domain.SeatKey{key("A", "1"), key("A", "2")}, domain.SeatHeld)
	assert.ErrorIs(t, err, domain.ErrSeatConflict)
	assert.ErrorIs(t, err, domain.ErrConflict)

	seat, _ := m.FindSeat("A", "1")
	assert.Equal(t, domain.SeatAvailable, seat.Status)
	assert.Equal(t, m.Recount(), m.Counts())

	err = m.SetStatus([]domain.SeatKey{key("A", "1"), key("Q", "1")}, domain.SeatHeld)
	assert.ErrorIs(t, err, domain.ErrSeatNotFound)
	seat, _ = m.FindSeat("A", "1")
	assert.Equal(t, domain.SeatAvailable, seat.Status)
}

func TestSeatMap_RejectsIllegalTransitions(t *testing.T) {
	m := domain.NewSeatMap(layoutShow())

	assert.ErrorIs(t, m.SetStatus([]domain.SeatKey{key("A", "3")}, domain.SeatHeld), domain.ErrSeatConflict)
	assert.ErrorIs(t, m.SetStatus([]domain.SeatKey{key("A", "1")}, domain.SeatStatus("melted")), domain.ErrInvalidTransition)

	require.NoError(t, m.SetStatus([]domain.SeatKey{key("A", "1")}, domain.SeatBooked))
	assert.ErrorIs(t, m.SetStatus([]domain.SeatKey{key("A", "1")}, domain.SeatHeld), domain.ErrSeatConflict)
}

func TestSeatMap_AvailableSeatsInLayoutOrder(t *testing.T) {
	m := domain.NewSeatMap(layoutShow())
	require.NoError(t, m.SetStatus([]domain.SeatKey{key("A", "2")}, domain.SeatHeld))

	var got []domain.SeatKey
	for s := range m.AvailableSeats() {
		got = append(got, s.Key())
	}
	assert.Equal(t, []domain.SeatKey{key("A", "1"), key("B", "1")}, got)
}

func TestSeatMap_CloneIsIndependent(t *testing.T) {
	m := domain.NewSeatMap(layoutShow())
	c := m.Clone()
	require.NoError(t, c.SetStatus([]domain.SeatKey{key("A", "1")}, domain.SeatBooked))

	seat, _ := m.FindSeat("A", "1")
	assert.Equal(t, domain.SeatAvailable, seat.Status)
	assert.Equal(t, 0, m.Counts().Booked)

	rows := m.Rows()
	rows[0].Seats[0].Status = domain.SeatBlocked
	seat, _ = m.FindSeat("A", "1")
	assert.Equal(t, domain.SeatAvailable, seat.Status)
}

func TestSeatStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.SeatStatus
		want     bool
	}{
		{domain.SeatAvailable, domain.SeatHeld, true},
		{domain.SeatAvailable, domain.SeatBooked, true},
		{domain.SeatHeld, domain.SeatBooked, true},
		{domain.SeatHeld, domain.SeatAvailable, true},
		{domain.SeatBooked, domain.SeatAvailable, true},
		{domain.SeatBlocked, domain.SeatAvailable, true},
		{domain.SeatHeld, domain.SeatHeld, false},
		{domain.SeatBooked, domain.SeatHeld, false},
		{domain.SeatBlocked, domain.SeatBooked, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestTotalOf_RoundsToCents(t *testing.T) {
	seats := []domain.ReservedSeat{{Price: 0.1}, {Price: 0.2}, {Price: 100}}
	assert.Equal(t, 100.3, domain.TotalOf(seats))
}

func TestShow_Bookable(t *testing.T) {
	show := layoutShow()
	before := show.StartsAt.Add(-time.Minute)

	assert.True(t, show.Bookable(before))
	assert.False(t, show.Bookable(show.StartsAt))

	inactive := show
	inactive.Active = false
	assert.False(t, inactive.Bookable(before))

	cancelled := show
	cancelled.Status = domain.ShowCancelled
	assert.False(t, cancelled.Bookable(before))
}

func TestKind(t *testing.T) {
	assert.Equal(t, domain.ErrConflict, domain.Kind(errors.Wrap(domain.ErrSeatConflict, "ctx")))
	assert.Equal(t, domain.ErrExpired, domain.Kind(domain.ErrReservationExpired))
	assert.Nil(t, domain.Kind(errors.New("plain")))
	assert.Nil(t, domain.Kind(nil))

	wrapped := domain.StorageFailure(errors.New("connection reset"), "query")
	assert.ErrorIs(t, wrapped, domain.ErrStorage)
	assert.Contains(t, wrapped.Error(), "connection reset")
	assert.Equal(t, domain.ErrReservationNotFound, domain.StorageFailure(domain.ErrReservationNotFound, "get"))

	// Sentinels of one kind stay distinct.
	assert.False(t, errors.Is(domain.ErrSeatConflict, domain.ErrAlreadyConverted))
}

func TestNewCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codes := make([]string, 0, 50)
	for range 50 {
		c := domain.NewCode(domain.BookingCodePrefix, now)
		assert.True(t, len(c) > len(domain.BookingCodePrefix)+8)
		assert.Equal(t, domain.BookingCodePrefix, c[:2])
		codes = append(codes, c)
	}
	slices.Sort(codes)
	assert.Len(t, slices.Compact(codes), 50)
}
