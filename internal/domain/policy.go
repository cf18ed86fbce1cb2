package domain

import "time"

const (
	DefaultHoldTTL       = 5 * time.Minute
	DefaultPaymentWindow = 15 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
	MaxSeatsPerRequest   = 10

	FullRefundThreshold    = 24 * time.Hour
	FullRefundRate         = 0.8
	PartialRefundThreshold = 2 * time.Hour
	PartialRefundRate      = 0.5
	CancellationCutoff     = 2 * time.Hour

	ReservationCodePrefix = "RS"
	BookingCodePrefix     = "BK"
	DefaultCurrency       = "INR"
)

// Policy carries the business parameters that callers may override through
// configuration. The zero value is not usable; start from DefaultPolicy.
type Policy struct {
	HoldTTL            time.Duration
	PaymentWindow      time.Duration
	MaxSeatsPerRequest int
	Refund             RefundPolicy
}

type RefundPolicy struct {
	FullThreshold    time.Duration
	FullRate         float64
	PartialThreshold time.Duration
	PartialRate      float64
	Cutoff           time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		HoldTTL:            DefaultHoldTTL,
		PaymentWindow:      DefaultPaymentWindow,
		MaxSeatsPerRequest: MaxSeatsPerRequest,
		Refund: RefundPolicy{
			FullThreshold:    FullRefundThreshold,
			FullRate:         FullRefundRate,
			PartialThreshold: PartialRefundThreshold,
			PartialRate:      PartialRefundRate,
			Cutoff:           CancellationCutoff,
		},
	}
}

// Amount returns the refund for total when the show starts in untilShow.
// Below the partial threshold nothing is refunded.
func (p RefundPolicy) Amount(total float64, untilShow time.Duration) float64 {
	switch {
	case untilShow >= p.FullThreshold:
		return roundCents(total * p.FullRate)
	case untilShow >= p.PartialThreshold:
		return roundCents(total * p.PartialRate)
	default:
		return 0
	}
}
