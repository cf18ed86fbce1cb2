package memory

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/domain"
)

// Catalog is an in-process show catalog used by tests and the memory driver.
type Catalog struct {
	mu    sync.RWMutex
	shows map[uuid.UUID]domain.Show
}

func NewCatalog(shows ...domain.Show) *Catalog {
	c := &Catalog{shows: make(map[uuid.UUID]domain.Show)}
	for _, s := range shows {
		c.shows[s.ID] = s
	}
	return c
}

func (c *Catalog) Put(show domain.Show) {
	c.mu.Lock()
	c.shows[show.ID] = show
	c.mu.Unlock()
}

func (c *Catalog) GetShow(ctx context.Context, id uuid.UUID) (domain.Show, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	show, ok := c.shows[id]
	if !ok {
		return domain.Show{}, errors.Wrapf(domain.ErrShowNotFound, "id %s", id)
	}
	return show, nil
}
