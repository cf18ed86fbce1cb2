// Package catalog loads show definitions from a JSON file. cmd/seed uses it to
// populate MongoDB and the memory driver uses it as its whole catalog.
package catalog

import (
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/domain"
)

type ShowFile struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Venue    string    `json:"venue"`
	Screen   string    `json:"screen"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Status   string    `json:"status"`
	Active   *bool     `json:"active"`
	Currency string    `json:"currency"`
	Layout   []RowFile `json:"layout"`
}

type RowFile struct {
	Row   string     `json:"row"`
	Seats []SeatFile `json:"seats"`
}

type SeatFile struct {
	Number  string  `json:"number"`
	Class   string  `json:"class"`
	Price   float64 `json:"price"`
	Blocked bool    `json:"blocked"`
}

// ToDomain validates the definition. Missing status defaults to scheduled and
// missing active flag to true.
func (f ShowFile) ToDomain() (domain.Show, error) {
	if f.ID == uuid.Nil {
		return domain.Show{}, errors.Wrapf(domain.ErrValidation, "show %q has no id", f.Title)
	}
	if f.StartsAt.IsZero() {
		return domain.Show{}, errors.Wrapf(domain.ErrValidation, "show %s has no start time", f.ID)
	}
	show := domain.Show{
		ID:       f.ID,
		Title:    f.Title,
		Venue:    f.Venue,
		Screen:   f.Screen,
		StartsAt: f.StartsAt.UTC(),
		EndsAt:   f.EndsAt.UTC(),
		Status:   domain.ShowScheduled,
		Active:   true,
		Currency: f.Currency,
	}
	if f.Status != "" {
		show.Status = domain.ShowStatus(f.Status)
	}
	if f.Active != nil {
		show.Active = *f.Active
	}
	if show.Currency == "" {
		show.Currency = domain.DefaultCurrency
	}
	seen := make(map[domain.SeatKey]struct{})
	for _, r := range f.Layout {
		row := domain.RowLayout{Label: r.Row}
		for _, s := range r.Seats {
			key := domain.SeatKey{Row: r.Row, Number: s.Number}
			if !key.Valid() {
				return domain.Show{}, errors.Wrapf(domain.ErrInvalidSeat, "show %s seat %q", f.ID, key)
			}
			if _, dup := seen[key]; dup {
				return domain.Show{}, errors.Wrapf(domain.ErrInvalidSeat, "show %s lists seat %s twice", f.ID, key)
			}
			seen[key] = struct{}{}
			class := domain.SeatClass(s.Class)
			if !class.Valid() {
				return domain.Show{}, errors.Wrapf(domain.ErrInvalidSeat, "show %s seat %s has class %q", f.ID, key, s.Class)
			}
			if s.Price < 0 {
				return domain.Show{}, errors.Wrapf(domain.ErrInvalidSeat, "show %s seat %s has negative price", f.ID, key)
			}
			row.Seats = append(row.Seats, domain.SeatLayout{Number: s.Number, Class: class, Price: s.Price, Blocked: s.Blocked})
		}
		show.Layout = append(show.Layout, row)
	}
	return show, nil
}

func Decode(data []byte) ([]domain.Show, error) {
	var files []ShowFile
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode shows"), domain.ErrValidation)
	}
	shows := make([]domain.Show, 0, len(files))
	for _, f := range files {
		s, err := f.ToDomain()
		if err != nil {
			return nil, err
		}
		shows = append(shows, s)
	}
	return shows, nil
}

func LoadFile(path string) ([]domain.Show, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shows file %s", path)
	}
	return Decode(data)
}
