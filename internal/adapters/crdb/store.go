// Package crdb persists inventory, reservations, bookings and the outbox in
// CockroachDB through pgx.
package crdb

import (
	"context"
	_ "embed"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/storage"
)

const (
	SerializationFailureCode = "40001"
	maxTxAttempts            = 3
)

//go:embed schema.sql
var schema string

type Store struct {
	pool *pgxpool.Pool
	log  observability.Logger
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Outbox = (*Store)(nil)
)

func NewStore(pool *pgxpool.Pool, log observability.Logger) *Store {
	return &Store{pool: pool, log: log.WithField("component", "crdb_store")}
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithShowTx runs fn in a SERIALIZABLE transaction holding the show's lock
// row. Serialization failures are retried; the last one is surfaced as
// domain.ErrSerializationFailure.
func (s *Store) WithShowTx(ctx context.Context, showID uuid.UUID, fn func(tx storage.Tx) error) error {
	start := time.Now()
	defer func() { observability.ShowTxDuration.Observe(time.Since(start).Seconds()) }()

	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			observability.ShowTxRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt*25) * time.Millisecond):
			}
		}
		err = s.runShowTx(ctx, showID, fn)
		if !isSerializationFailure(err) {
			return err
		}
		s.log.WithError(err).WithFields(map[string]interface{}{"show_id": showID, "attempt": attempt + 1}).Debug("show transaction restarted")
	}
	return errors.Wrapf(domain.ErrSerializationFailure, "show %s after %d attempts: %v", showID, maxTxAttempts, err)
}

func (s *Store) runShowTx(ctx context.Context, showID uuid.UUID, fn func(tx storage.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return domain.StorageFailure(err, "begin show tx")
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if _, err := pgTx.Exec(ctx, `
		INSERT INTO show_locks (show_id) VALUES ($1)
		ON CONFLICT (show_id) DO NOTHING
	`, showID); err != nil {
		return domain.StorageFailure(err, "create show lock")
	}
	var touched time.Time
	if err := pgTx.QueryRow(ctx, `
		SELECT touched_at FROM show_locks WHERE show_id = $1 FOR UPDATE
	`, showID).Scan(&touched); err != nil {
		return domain.StorageFailure(err, "lock show")
	}

	if err := fn(&tx{tx: pgTx, showID: showID}); err != nil {
		return err
	}
	if _, err := pgTx.Exec(ctx, `UPDATE show_locks SET touched_at = now() WHERE show_id = $1`, showID); err != nil {
		return domain.StorageFailure(err, "touch show lock")
	}
	if err := pgTx.Commit(ctx); err != nil {
		return domain.StorageFailure(err, "commit show tx")
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return err != nil && errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode
}

func (s *Store) Reservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	return getReservation(ctx, s.pool, id)
}

func (s *Store) Booking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return getBooking(ctx, s.pool, id)
}

func (s *Store) OverdueReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at ASC LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, domain.StorageFailure(err, "query overdue reservations")
	}
	return collectReservations(rows)
}

func (s *Store) OverduePendingBookings(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings WHERE status = 'pending' AND expiry_at <= $1
		ORDER BY expiry_at ASC LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, domain.StorageFailure(err, "query overdue bookings")
	}
	return collectBookings(rows)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const reservationColumns = `id, code, show_id, user_id, seats, total_amount, status, created_at, expires_at, updated_at, converted_booking_id`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(&r.ID, &r.Code, &r.ShowID, &r.UserID, &r.Seats, &r.TotalAmount, &r.Status,
		&r.CreatedAt, &r.ExpiresAt, &r.UpdatedAt, &r.ConvertedBookingID)
	if err != nil {
		return domain.Reservation{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func getReservation(ctx context.Context, q querier, id uuid.UUID) (domain.Reservation, error) {
	r, err := scanReservation(q.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, errors.Wrapf(domain.ErrReservationNotFound, "id %s", id)
	}
	if err != nil {
		return domain.Reservation{}, domain.StorageFailure(err, "get reservation")
	}
	return r, nil
}

func collectReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()
	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, domain.StorageFailure(err, "scan reservation")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure(err, "iterate reservations")
	}
	return out, nil
}

const bookingColumns = `id, code, user_id, show_id, reservation_id, seats, total_amount, currency, status,
	payment_status, payment_method, transaction_id, customer, show_at, created_at, expiry_at, updated_at,
	cancelled_at, cancellation_reason, refund_amount`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.Code, &b.UserID, &b.ShowID, &b.ReservationID, &b.Seats, &b.TotalAmount, &b.Currency,
		&b.Status, &b.PaymentStatus, &b.PaymentMethod, &b.TransactionID, &b.Customer, &b.ShowDateTime,
		&b.CreatedAt, &b.ExpiryDateTime, &b.UpdatedAt, &b.CancellationDateTime, &b.CancellationReason, &b.RefundAmount)
	if err != nil {
		return domain.Booking{}, err
	}
	b.ShowDateTime = b.ShowDateTime.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.ExpiryDateTime = b.ExpiryDateTime.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	if b.CancellationDateTime != nil {
		at := b.CancellationDateTime.UTC()
		b.CancellationDateTime = &at
	}
	return b, nil
}

func getBooking(ctx context.Context, q querier, id uuid.UUID) (domain.Booking, error) {
	b, err := scanBooking(q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, errors.Wrapf(domain.ErrBookingNotFound, "id %s", id)
	}
	if err != nil {
		return domain.Booking{}, domain.StorageFailure(err, "get booking")
	}
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, domain.StorageFailure(err, "scan booking")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure(err, "iterate bookings")
	}
	return out, nil
}
