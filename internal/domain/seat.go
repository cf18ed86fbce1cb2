package domain

import (
	"math"
	"slices"
	"strings"
)

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatHeld      SeatStatus = "held"
	SeatBooked    SeatStatus = "booked"
	SeatBlocked   SeatStatus = "blocked"
)

// seatTransitions lists, per target status, the statuses a seat may leave to
// reach it.
var seatTransitions = map[SeatStatus][]SeatStatus{
	SeatAvailable: {SeatHeld, SeatBooked, SeatBlocked},
	SeatHeld:      {SeatAvailable},
	SeatBooked:    {SeatAvailable, SeatHeld},
	SeatBlocked:   {SeatAvailable},
}

func (s SeatStatus) Valid() bool {
	_, ok := seatTransitions[s]
	return ok
}

// CanTransition reports whether a seat in status s may move to status to.
func (s SeatStatus) CanTransition(to SeatStatus) bool {
	return slices.Contains(seatTransitions[to], s)
}

type SeatClass string

const (
	SeatPremium   SeatClass = "premium"
	SeatExecutive SeatClass = "executive"
	SeatEconomy   SeatClass = "economy"
	SeatBalcony   SeatClass = "balcony"
	SeatBox       SeatClass = "box"
	SeatVIP       SeatClass = "vip"
)

func (c SeatClass) Valid() bool {
	switch c {
	case SeatPremium, SeatExecutive, SeatEconomy, SeatBalcony, SeatBox, SeatVIP:
		return true
	}
	return false
}

// SeatKey identifies a seat within one show.
type SeatKey struct {
	Row    string `json:"row"`
	Number string `json:"seat_number"`
}

func (k SeatKey) String() string {
	return k.Row + "-" + k.Number
}

func (k SeatKey) Valid() bool {
	return strings.TrimSpace(k.Row) != "" && strings.TrimSpace(k.Number) != ""
}

type Seat struct {
	Row    string     `json:"row"`
	Number string     `json:"seat_number"`
	Class  SeatClass  `json:"seat_type"`
	Price  float64    `json:"price"`
	Status SeatStatus `json:"status"`
}

func (s Seat) Key() SeatKey {
	return SeatKey{Row: s.Row, Number: s.Number}
}

// ReservedSeat is a seat as captured on a reservation or booking: class and
// price are frozen at hold time.
type ReservedSeat struct {
	Row    string    `json:"row"`
	Number string    `json:"seat_number"`
	Class  SeatClass `json:"seat_type"`
	Price  float64   `json:"price"`
}

func (s ReservedSeat) Key() SeatKey {
	return SeatKey{Row: s.Row, Number: s.Number}
}

func seatKeys(seats []ReservedSeat) []SeatKey {
	keys := make([]SeatKey, len(seats))
	for i, s := range seats {
		keys[i] = s.Key()
	}
	return keys
}

func TotalOf(seats []ReservedSeat) float64 {
	var total float64
	for _, s := range seats {
		total += s.Price
	}
	return roundCents(total)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
