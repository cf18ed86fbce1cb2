package payment_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	id := uuid.New()
	r, err := payment.Decode([]byte(`{"booking_id":"` + id.String() + `","status":"completed","transaction_id":"pg-1"}`))
	require.NoError(t, err)
	assert.Equal(t, id, r.BookingID)
	assert.Equal(t, payment.StatusCompleted, r.Status)
	assert.Equal(t, "pg-1", r.TransactionID)
}

func TestDecode_Invalid(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing booking", `{"status":"failed"}`},
		{"unknown status", `{"booking_id":"` + id + `","status":"pending"}`},
		{"completed without transaction", `{"booking_id":"` + id + `","status":"completed"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := payment.Decode([]byte(tt.body))
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestValidate_FailedAndRefunded(t *testing.T) {
	assert.NoError(t, payment.Result{BookingID: uuid.New(), Status: payment.StatusFailed}.Validate())
	assert.NoError(t, payment.Result{BookingID: uuid.New(), Status: payment.StatusRefunded}.Validate())
}
