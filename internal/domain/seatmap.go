package domain

import (
	"iter"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type SeatRow struct {
	Label string `json:"row"`
	Seats []Seat `json:"seats"`
}

type SeatCounts struct {
	Total     int `json:"total_seats"`
	Booked    int `json:"booked_seats"`
	Available int `json:"available_seats"`
}

// SeatMap is the per-show seat grid. Counts are maintained on every status
// change and must always equal Recount.
type SeatMap struct {
	ShowID uuid.UUID
	rows   []SeatRow
	index  map[SeatKey][2]int
	counts SeatCounts
}

// NewSeatMap builds the grid for a show from its layout. Seats flagged as
// blocked in the layout start blocked, everything else available.
func NewSeatMap(show Show) *SeatMap {
	rows := make([]SeatRow, 0, len(show.Layout))
	for _, rl := range show.Layout {
		row := SeatRow{Label: rl.Label, Seats: make([]Seat, 0, len(rl.Seats))}
		for _, sl := range rl.Seats {
			status := SeatAvailable
			if sl.Blocked {
				status = SeatBlocked
			}
			row.Seats = append(row.Seats, Seat{
				Row:    rl.Label,
				Number: sl.Number,
				Class:  sl.Class,
				Price:  sl.Price,
				Status: status,
			})
		}
		rows = append(rows, row)
	}
	return RestoreSeatMap(show.ID, rows)
}

// RestoreSeatMap rebuilds a seat map from persisted rows.
func RestoreSeatMap(showID uuid.UUID, rows []SeatRow) *SeatMap {
	m := &SeatMap{ShowID: showID, rows: rows, index: make(map[SeatKey][2]int)}
	for i, row := range rows {
		for j, seat := range row.Seats {
			m.index[seat.Key()] = [2]int{i, j}
		}
	}
	m.counts = m.Recount()
	return m
}

func (m *SeatMap) FindSeat(row, number string) (Seat, bool) {
	pos, ok := m.index[SeatKey{Row: row, Number: number}]
	if !ok {
		return Seat{}, false
	}
	return m.rows[pos[0]].Seats[pos[1]], true
}

// SetStatus moves every seat in keys to status to. Either all seats move or
// none do.
func (m *SeatMap) SetStatus(keys []SeatKey, to SeatStatus) error {
	if !to.Valid() {
		return errors.Wrapf(ErrInvalidTransition, "unknown seat status %q", to)
	}
	for _, k := range keys {
		pos, ok := m.index[k]
		if !ok {
			return errors.Wrapf(ErrSeatNotFound, "seat %s", k)
		}
		current := m.rows[pos[0]].Seats[pos[1]].Status
		if !current.CanTransition(to) {
			return errors.Wrapf(ErrSeatConflict, "seat %s is %s, cannot become %s", k, current, to)
		}
	}
	for _, k := range keys {
		pos := m.index[k]
		seat := &m.rows[pos[0]].Seats[pos[1]]
		m.adjust(seat.Status, -1)
		seat.Status = to
		m.adjust(to, 1)
	}
	return nil
}

func (m *SeatMap) adjust(status SeatStatus, delta int) {
	switch status {
	case SeatAvailable:
		m.counts.Available += delta
	case SeatBooked:
		m.counts.Booked += delta
	}
}

// AvailableSeats yields seats currently available, row by row.
func (m *SeatMap) AvailableSeats() iter.Seq[Seat] {
	return func(yield func(Seat) bool) {
		for _, row := range m.rows {
			for _, seat := range row.Seats {
				if seat.Status != SeatAvailable {
					continue
				}
				if !yield(seat) {
					return
				}
			}
		}
	}
}

func (m *SeatMap) Counts() SeatCounts {
	return m.counts
}

// Recount derives the counters from seat statuses.
func (m *SeatMap) Recount() SeatCounts {
	var c SeatCounts
	for _, row := range m.rows {
		for _, seat := range row.Seats {
			c.Total++
			switch seat.Status {
			case SeatAvailable:
				c.Available++
			case SeatBooked:
				c.Booked++
			}
		}
	}
	return c
}

// Rows returns a deep copy of the grid.
func (m *SeatMap) Rows() []SeatRow {
	rows := make([]SeatRow, len(m.rows))
	for i, row := range m.rows {
		rows[i] = SeatRow{Label: row.Label, Seats: append([]Seat(nil), row.Seats...)}
	}
	return rows
}

func (m *SeatMap) Clone() *SeatMap {
	return RestoreSeatMap(m.ShowID, m.Rows())
}
