package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/storage"
)

// Store keeps inventory in process memory. Work on one show is serialized by
// that show's mutex; shows never wait on each other. Writes made through a Tx
// are staged and applied together when the callback succeeds.
type Store struct {
	locks sync.Map // uuid.UUID -> *sync.Mutex

	mu           sync.RWMutex
	seatMaps     map[uuid.UUID]*domain.SeatMap
	reservations map[uuid.UUID]domain.Reservation
	byShow       map[uuid.UUID][]uuid.UUID
	bookings     map[uuid.UUID]domain.Booking
	outbox       []storage.OutboxRecord
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Outbox = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		seatMaps:     make(map[uuid.UUID]*domain.SeatMap),
		reservations: make(map[uuid.UUID]domain.Reservation),
		byShow:       make(map[uuid.UUID][]uuid.UUID),
		bookings:     make(map[uuid.UUID]domain.Booking),
	}
}

func (s *Store) showLock(showID uuid.UUID) *sync.Mutex {
	l, _ := s.locks.LoadOrStore(showID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (s *Store) WithShowTx(ctx context.Context, showID uuid.UUID, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.showLock(showID)
	l.Lock()
	defer l.Unlock()

	tx := &tx{
		store:        s,
		showID:       showID,
		reservations: make(map[uuid.UUID]domain.Reservation),
		bookings:     make(map[uuid.UUID]domain.Booking),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.seatMap != nil {
		s.seatMaps[t.showID] = t.seatMap.Clone()
	}
	for id, r := range t.reservations {
		if _, ok := s.reservations[id]; !ok {
			s.byShow[r.ShowID] = append(s.byShow[r.ShowID], id)
		}
		s.reservations[id] = r
	}
	for id, b := range t.bookings {
		s.bookings[id] = b
	}
	s.outbox = append(s.outbox, t.outbox...)
}

func (s *Store) Reservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, errors.Wrapf(domain.ErrReservationNotFound, "id %s", id)
	}
	return copyReservation(r), nil
}

func (s *Store) Booking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, errors.Wrapf(domain.ErrBookingNotFound, "id %s", id)
	}
	return copyBooking(b), nil
}

func (s *Store) OverdueReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.Status == domain.ReservationActive && r.IsExpired(now) {
			out = append(out, copyReservation(r))
		}
	}
	slices.SortFunc(out, func(a, b domain.Reservation) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) OverduePendingBookings(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.PaymentOverdue(now) {
			out = append(out, copyBooking(b))
		}
	}
	slices.SortFunc(out, func(a, b domain.Booking) int { return a.ExpiryDateTime.Compare(b.ExpiryDateTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UnpublishedEvents(ctx context.Context, limit int) ([]storage.OutboxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.OutboxRecord
	for _, rec := range s.outbox {
		if rec.Status != storage.OutboxNew {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].Status = storage.OutboxPublished
			s.outbox[i].PublishedAt = &publishedAt
			return nil
		}
	}
	return errors.Wrapf(domain.ErrNotFound, "outbox record %s", id)
}

type tx struct {
	store        *Store
	showID       uuid.UUID
	seatMap      *domain.SeatMap
	reservations map[uuid.UUID]domain.Reservation
	bookings     map[uuid.UUID]domain.Booking
	outbox       []storage.OutboxRecord
}

func (t *tx) SeatMap(ctx context.Context) (*domain.SeatMap, error) {
	if t.seatMap != nil {
		return t.seatMap.Clone(), nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	m, ok := t.store.seatMaps[t.showID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrSeatMapNotFound, "show %s", t.showID)
	}
	return m.Clone(), nil
}

func (t *tx) SaveSeatMap(ctx context.Context, m *domain.SeatMap) error {
	if m.ShowID != t.showID {
		return errors.Wrapf(storage.ErrWrongShow, "seat map of show %s", m.ShowID)
	}
	t.seatMap = m.Clone()
	return nil
}

func (t *tx) ActiveReservations(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	t.store.mu.RLock()
	ids := slices.Clone(t.store.byShow[t.showID])
	current := make(map[uuid.UUID]domain.Reservation, len(ids))
	for _, id := range ids {
		current[id] = t.store.reservations[id]
	}
	t.store.mu.RUnlock()

	for id, r := range t.reservations {
		if _, ok := current[id]; !ok {
			ids = append(ids, id)
		}
		current[id] = r
	}
	var out []domain.Reservation
	for _, id := range ids {
		if r := current[id]; r.Holding(now) {
			out = append(out, copyReservation(r))
		}
	}
	return out, nil
}

func (t *tx) Reservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	if r, ok := t.reservations[id]; ok {
		return copyReservation(r), nil
	}
	return t.store.Reservation(ctx, id)
}

func (t *tx) SaveReservation(ctx context.Context, r domain.Reservation) error {
	if r.ShowID != t.showID {
		return errors.Wrapf(storage.ErrWrongShow, "reservation %s", r.ID)
	}
	t.reservations[r.ID] = copyReservation(r)
	return nil
}

func (t *tx) Booking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	if b, ok := t.bookings[id]; ok {
		return copyBooking(b), nil
	}
	return t.store.Booking(ctx, id)
}

func (t *tx) SaveBooking(ctx context.Context, b domain.Booking) error {
	if b.ShowID != t.showID {
		return errors.Wrapf(storage.ErrWrongShow, "booking %s", b.ID)
	}
	t.bookings[b.ID] = copyBooking(b)
	return nil
}

func (t *tx) AppendEvent(ctx context.Context, evt domain.Event) error {
	rec, err := storage.NewOutboxRecord(evt)
	if err != nil {
		return err
	}
	t.outbox = append(t.outbox, rec)
	return nil
}

func copyReservation(r domain.Reservation) domain.Reservation {
	r.Seats = slices.Clone(r.Seats)
	if r.ConvertedBookingID != nil {
		id := *r.ConvertedBookingID
		r.ConvertedBookingID = &id
	}
	return r
}

func copyBooking(b domain.Booking) domain.Booking {
	b.Seats = slices.Clone(b.Seats)
	if b.ReservationID != nil {
		id := *b.ReservationID
		b.ReservationID = &id
	}
	if b.CancellationDateTime != nil {
		at := *b.CancellationDateTime
		b.CancellationDateTime = &at
	}
	return b
}
