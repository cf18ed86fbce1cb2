// Package payment carries payment-gateway outcomes into the booking ledger.
// The gateway itself is external; results arrive over RabbitMQ or the HTTP
// callback.
package payment

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/domain"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

type Result struct {
	BookingID     uuid.UUID `json:"booking_id"`
	Status        Status    `json:"status"`
	TransactionID string    `json:"transaction_id"`
	Reason        string    `json:"reason,omitempty"`
}

func (r Result) Validate() error {
	if r.BookingID == uuid.Nil {
		return errors.Wrap(domain.ErrValidation, "booking_id is required")
	}
	switch r.Status {
	case StatusCompleted:
		if r.TransactionID == "" {
			return errors.Wrap(domain.ErrValidation, "transaction_id is required for completed payments")
		}
	case StatusFailed, StatusRefunded:
	default:
		return errors.Wrapf(domain.ErrValidation, "unknown payment status %q", r.Status)
	}
	return nil
}

// Decode parses a gateway message body.
func Decode(body []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(body, &r); err != nil {
		return Result{}, errors.Mark(errors.Wrap(err, "decode payment result"), domain.ErrValidation)
	}
	return r, r.Validate()
}

type Handler interface {
	HandlePayment(ctx context.Context, r Result) (domain.Booking, error)
}
