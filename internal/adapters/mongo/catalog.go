package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/maclarenscott/ticket-nova/internal/domain"
	"github.com/maclarenscott/ticket-nova/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository holds the read-mostly event and venue documents.
// Capacity truth never lives here; performance counters are in the
// transactional store.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type EventDoc struct {
	ID           uuid.UUID        `bson:"_id"`
	Title        string           `bson:"title"`
	Description  string           `bson:"description"`
	Venue        VenueDoc         `bson:"venue"`
	Performances []PerformanceRef `bson:"performances"`
	Active       bool             `bson:"active"`
	CreatedAt    time.Time        `bson:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at"`
}

type VenueDoc struct {
	Name     string       `bson:"name"`
	Address  string       `bson:"address"`
	City     string       `bson:"city"`
	Sections []SectionDoc `bson:"sections"`
}

type SectionDoc struct {
	Name        string `bson:"name"`
	Rows        int    `bson:"rows"`
	SeatsPerRow int    `bson:"seats_per_row"`
}

// PerformanceRef is a browse-path summary; the authoritative record is the
// performances row in the transactional store.
type PerformanceRef struct {
	PerformanceID uuid.UUID           `bson:"performance_id"`
	StartsAt      time.Time           `bson:"starts_at"`
	TicketTypes   []domain.TicketType `bson:"ticket_types"`
}

func (c *CatalogRepository) GetEvent(ctx context.Context, id uuid.UUID) (*EventDoc, error) {
	var event EventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&event)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to get event")
		return nil, err
	}
	return &event, nil
}

func (c *CatalogRepository) CreateEvent(ctx context.Context, event EventDoc) error {
	event.CreatedAt = time.Now()
	event.UpdatedAt = time.Now()
	event.Active = true
	_, err := c.coll.InsertOne(ctx, event)
	if err != nil {
		c.logger.WithError(err).Error("failed to create event")
		return err
	}
	return nil
}

func (c *CatalogRepository) ListUpcoming(ctx context.Context, after time.Time, limit int64) ([]EventDoc, error) {
	cur, err := c.coll.Find(ctx,
		bson.M{"active": true, "performances.starts_at": bson.M{"$gte": after}},
		options.Find().SetSort(bson.D{{Key: "performances.starts_at", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var events []EventDoc
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// AttachPerformance appends a performance summary to the event document.
func (c *CatalogRepository) AttachPerformance(ctx context.Context, eventID uuid.UUID, ref PerformanceRef) error {
	result, err := c.coll.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{
			"$push": bson.M{"performances": ref},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		c.logger.WithError(err).Error("failed to attach performance")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (c *CatalogRepository) DeactivateEvent(ctx context.Context, id uuid.UUID) error {
	result, err := c.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"active": false, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
