package storage

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/showtime-reservations/internal/domain"
)

var ErrWrongShow = errors.New("entity belongs to another show")

// LoadSeatMap returns the show's seat map, seeding it from the show layout on
// first use.
func LoadSeatMap(ctx context.Context, tx Tx, show domain.Show) (*domain.SeatMap, error) {
	m, err := tx.SeatMap(ctx)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrSeatMapNotFound) {
		return nil, err
	}
	m = domain.NewSeatMap(show)
	if err := tx.SaveSeatMap(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ClaimedSeats is the union of seats held by the show's active, unexpired
// reservations, keyed to the holding reservation.
func ClaimedSeats(active []domain.Reservation) map[domain.SeatKey]domain.Reservation {
	claimed := make(map[domain.SeatKey]domain.Reservation)
	for _, r := range active {
		for _, k := range r.SeatKeys() {
			claimed[k] = r
		}
	}
	return claimed
}

// NewOutboxRecord serializes evt for the outbox table.
func NewOutboxRecord(evt domain.Event) (OutboxRecord, error) {
	payload, err := json.Marshal(map[string]any{
		"id":          evt.ID,
		"type":        evt.Type,
		"occurred_at": evt.OccurredAt,
		"data":        evt.Payload,
	})
	if err != nil {
		return OutboxRecord{}, errors.Wrapf(err, "marshal event %s", evt.Type)
	}
	return OutboxRecord{
		ID:            evt.ID,
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.Type,
		Payload:       payload,
		CreatedAt:     evt.OccurredAt,
		Status:        OutboxNew,
		DedupeKey:     evt.ID.String(),
	}, nil
}
