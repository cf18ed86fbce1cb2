package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository reads shows and their seat layouts from the "shows"
// collection.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("shows"),
		logger: logger.WithField("component", "mongo_catalog"),
	}
}

type ShowDoc struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Venue     string    `bson:"venue"`
	Screen    string    `bson:"screen"`
	StartsAt  time.Time `bson:"starts_at"`
	EndsAt    time.Time `bson:"ends_at"`
	Status    string    `bson:"status"`
	Active    bool      `bson:"active"`
	Currency  string    `bson:"currency"`
	Layout    []RowDoc  `bson:"layout"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type RowDoc struct {
	Label string    `bson:"label"`
	Seats []SeatDoc `bson:"seats"`
}

type SeatDoc struct {
	Number  string  `bson:"number"`
	Class   string  `bson:"class"`
	Price   float64 `bson:"price"`
	Blocked bool    `bson:"blocked"`
}

func (d ShowDoc) toDomain() (domain.Show, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Show{}, errors.Wrapf(err, "show id %q", d.ID)
	}
	show := domain.Show{
		ID:       id,
		Title:    d.Title,
		Venue:    d.Venue,
		Screen:   d.Screen,
		StartsAt: d.StartsAt.UTC(),
		EndsAt:   d.EndsAt.UTC(),
		Status:   domain.ShowStatus(d.Status),
		Active:   d.Active,
		Currency: d.Currency,
		Layout:   make([]domain.RowLayout, 0, len(d.Layout)),
	}
	for _, r := range d.Layout {
		row := domain.RowLayout{Label: r.Label, Seats: make([]domain.SeatLayout, 0, len(r.Seats))}
		for _, s := range r.Seats {
			row.Seats = append(row.Seats, domain.SeatLayout{
				Number:  s.Number,
				Class:   domain.SeatClass(s.Class),
				Price:   s.Price,
				Blocked: s.Blocked,
			})
		}
		show.Layout = append(show.Layout, row)
	}
	return show, nil
}

func showDoc(s domain.Show) ShowDoc {
	doc := ShowDoc{
		ID:       s.ID.String(),
		Title:    s.Title,
		Venue:    s.Venue,
		Screen:   s.Screen,
		StartsAt: s.StartsAt,
		EndsAt:   s.EndsAt,
		Status:   string(s.Status),
		Active:   s.Active,
		Currency: s.Currency,
	}
	for _, r := range s.Layout {
		row := RowDoc{Label: r.Label}
		for _, seat := range r.Seats {
			row.Seats = append(row.Seats, SeatDoc{
				Number:  seat.Number,
				Class:   string(seat.Class),
				Price:   seat.Price,
				Blocked: seat.Blocked,
			})
		}
		doc.Layout = append(doc.Layout, row)
	}
	return doc
}

func (c *CatalogRepository) GetShow(ctx context.Context, id uuid.UUID) (domain.Show, error) {
	var doc ShowDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Show{}, errors.Wrapf(domain.ErrShowNotFound, "id %s", id)
	}
	if err != nil {
		c.logger.WithError(err).WithField("show_id", id).Error("failed to get show")
		return domain.Show{}, domain.StorageFailure(err, "get show")
	}
	return doc.toDomain()
}

// CreateShow inserts or replaces a show document.
func (c *CatalogRepository) CreateShow(ctx context.Context, show domain.Show) error {
	doc := showDoc(show)
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.WithError(err).WithField("show_id", show.ID).Error("failed to create show")
		return domain.StorageFailure(err, "create show")
	}
	return nil
}

func (c *CatalogRepository) Ping(ctx context.Context) error {
	return c.coll.Database().Client().Ping(ctx, nil)
}
