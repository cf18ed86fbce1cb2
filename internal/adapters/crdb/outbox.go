package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/storage"
)

func insertOutbox(ctx context.Context, q querier, rec storage.OutboxRecord) error {
	_, err := q.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, created_at, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.AggregateType, rec.AggregateID, rec.EventType, string(rec.Payload), rec.CreatedAt, rec.Status, rec.DedupeKey)
	if err != nil {
		return domain.StorageFailure(err, "insert outbox")
	}
	return nil
}

func (s *Store) UnpublishedEvents(ctx context.Context, limit int) ([]storage.OutboxRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json::STRING, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, domain.StorageFailure(err, "query outbox")
	}
	defer rows.Close()

	var records []storage.OutboxRecord
	for rows.Next() {
		var rec storage.OutboxRecord
		var payload string
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, domain.StorageFailure(err, "scan outbox")
		}
		rec.Payload = []byte(payload)
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure(err, "iterate outbox")
	}
	return records, nil
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	if err != nil {
		return domain.StorageFailure(err, "mark outbox published")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "outbox record %s", id)
	}
	return nil
}
