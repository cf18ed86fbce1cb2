package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/storage"
)

// tx is one show's view of a running transaction. known tracks the seat
// statuses already in the database so SaveSeatMap only writes changes.
type tx struct {
	tx     pgx.Tx
	showID uuid.UUID
	known  map[domain.SeatKey]domain.SeatStatus
}

func (t *tx) SeatMap(ctx context.Context) (*domain.SeatMap, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT row_label, seat_number, class, price, status
		FROM seats WHERE show_id = $1
		ORDER BY row_pos, seat_pos
	`, t.showID)
	if err != nil {
		return nil, domain.StorageFailure(err, "query seats")
	}
	defer rows.Close()

	var out []domain.SeatRow
	known := make(map[domain.SeatKey]domain.SeatStatus)
	for rows.Next() {
		var seat domain.Seat
		if err := rows.Scan(&seat.Row, &seat.Number, &seat.Class, &seat.Price, &seat.Status); err != nil {
			return nil, domain.StorageFailure(err, "scan seat")
		}
		if n := len(out); n == 0 || out[n-1].Label != seat.Row {
			out = append(out, domain.SeatRow{Label: seat.Row})
		}
		out[len(out)-1].Seats = append(out[len(out)-1].Seats, seat)
		known[seat.Key()] = seat.Status
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure(err, "iterate seats")
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(domain.ErrSeatMapNotFound, "show %s", t.showID)
	}
	t.known = known
	return domain.RestoreSeatMap(t.showID, out), nil
}

func (t *tx) SaveSeatMap(ctx context.Context, m *domain.SeatMap) error {
	if m.ShowID != t.showID {
		return errors.Wrapf(storage.ErrWrongShow, "seat map of show %s", m.ShowID)
	}
	if t.known == nil {
		t.known = make(map[domain.SeatKey]domain.SeatStatus)
	}
	batch := &pgx.Batch{}
	changed := make(map[domain.SeatKey]domain.SeatStatus)
	for i, row := range m.Rows() {
		for j, seat := range row.Seats {
			if st, ok := t.known[seat.Key()]; ok && st == seat.Status {
				continue
			}
			batch.Queue(`
				UPSERT INTO seats (show_id, row_label, seat_number, row_pos, seat_pos, class, price, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, t.showID, seat.Row, seat.Number, i, j, seat.Class, seat.Price, seat.Status)
			changed[seat.Key()] = seat.Status
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.StorageFailure(err, "save seats")
	}
	for k, st := range changed {
		t.known[k] = st
	}
	return nil
}

func (t *tx) ActiveReservations(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE show_id = $1 AND status = 'active' AND expires_at > $2
		ORDER BY created_at
	`, t.showID, now)
	if err != nil {
		return nil, domain.StorageFailure(err, "query active reservations")
	}
	return collectReservations(rows)
}

func (t *tx) Reservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	return getReservation(ctx, t.tx, id)
}

func (t *tx) SaveReservation(ctx context.Context, r domain.Reservation) error {
	if r.ShowID != t.showID {
		return errors.Wrapf(storage.ErrWrongShow, "reservation %s", r.ID)
	}
	_, err := t.tx.Exec(ctx, `
		UPSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, r.Code, r.ShowID, r.UserID, r.Seats, r.TotalAmount, r.Status,
		r.CreatedAt, r.ExpiresAt, r.UpdatedAt, r.ConvertedBookingID)
	if err != nil {
		return domain.StorageFailure(err, "save reservation")
	}
	return nil
}

func (t *tx) Booking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return getBooking(ctx, t.tx, id)
}

func (t *tx) SaveBooking(ctx context.Context, b domain.Booking) error {
	if b.ShowID != t.showID {
		return errors.Wrapf(storage.ErrWrongShow, "booking %s", b.ID)
	}
	_, err := t.tx.Exec(ctx, `
		UPSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, b.ID, b.Code, b.UserID, b.ShowID, b.ReservationID, b.Seats, b.TotalAmount, b.Currency, b.Status,
		b.PaymentStatus, b.PaymentMethod, b.TransactionID, b.Customer, b.ShowDateTime, b.CreatedAt, b.ExpiryDateTime,
		b.UpdatedAt, b.CancellationDateTime, b.CancellationReason, b.RefundAmount)
	if err != nil {
		return domain.StorageFailure(err, "save booking")
	}
	return nil
}

func (t *tx) AppendEvent(ctx context.Context, evt domain.Event) error {
	rec, err := storage.NewOutboxRecord(evt)
	if err != nil {
		return err
	}
	return insertOutbox(ctx, t.tx, rec)
}
