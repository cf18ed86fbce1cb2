package domain

import (
	"time"

	"github.com/google/uuid"
)

type ShowStatus string

const (
	ShowScheduled ShowStatus = "scheduled"
	ShowOngoing   ShowStatus = "ongoing"
	ShowCompleted ShowStatus = "completed"
	ShowCancelled ShowStatus = "cancelled"
)

type Show struct {
	ID       uuid.UUID
	Title    string
	Venue    string
	Screen   string
	StartsAt time.Time
	EndsAt   time.Time
	Status   ShowStatus
	Active   bool
	Currency string
	Layout   []RowLayout
}

type RowLayout struct {
	Label string
	Seats []SeatLayout
}

type SeatLayout struct {
	Number  string
	Class   SeatClass
	Price   float64
	Blocked bool
}

// Bookable reports whether seats of the show may still be held or sold at now.
func (s Show) Bookable(now time.Time) bool {
	return s.Active && s.Status == ShowScheduled && now.Before(s.StartsAt)
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the caller identity supplied by the upstream gateway.
type User struct {
	ID    uuid.UUID
	Name  string
	Email string
	Phone string
	Role  Role
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
