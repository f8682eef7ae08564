package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var (
	ErrTripNotFound = apperr.NotFound("trip not found")
	ErrTripConflict = apperr.Conflict("trip was changed by another request, reload and try again")
)

// TripQuery selects trips for ledger views and settlements.
type TripQuery struct {
	Driver   *primitive.ObjectID
	Owner    *primitive.ObjectID
	Vehicle  *primitive.ObjectID
	Client   *primitive.ObjectID
	SelfOnly bool
	From     *time.Time
	To       *time.Time
	Statuses []models.TripStatus
}

// Filter builds the Mongo filter for q.
func (q TripQuery) Filter() bson.M {
	filter := bson.M{}
	if q.Driver != nil {
		filter["driver"] = *q.Driver
	}
	if q.Owner != nil {
		filter["vehicle_owner.owner"] = *q.Owner
	}
	if q.Vehicle != nil {
		filter["vehicle"] = *q.Vehicle
	}
	if q.Client != nil {
		filter["clients.client"] = *q.Client
	}
	if q.SelfOnly {
		filter["vehicle_owner.type"] = models.OwnershipSelf
	}
	if q.From != nil || q.To != nil {
		date := bson.M{}
		if q.From != nil {
			date["$gte"] = *q.From
		}
		if q.To != nil {
			date["$lte"] = *q.To
		}
		filter["scheduled_date"] = date
	}
	if len(q.Statuses) > 0 {
		filter["status"] = bson.M{"$in": q.Statuses}
	}
	return filter
}

// MongoTripCollection implements TripCollection for MongoDB.
type MongoTripCollection struct {
	Collection *mongo.Collection
}

func (c *MongoTripCollection) repo() repository[models.Trip] {
	return repository[models.Trip]{coll: c.Collection, notFound: ErrTripNotFound}
}

// InsertTrip recalculates and inserts a new trip.
func (c *MongoTripCollection) InsertTrip(ctx context.Context, trip *models.Trip) error {
	now := time.Now()
	trip.CreatedAt = now
	trip.UpdatedAt = now
	trip.Version = 0
	trip.Recalculate()
	id, err := c.repo().insert(ctx, trip)
	if err != nil {
		return err
	}
	trip.ID = id
	return nil
}

// FindTripByID finds a trip by its ID.
func (c *MongoTripCollection) FindTripByID(ctx context.Context, id string) (*models.Trip, error) {
	return c.repo().findByID(ctx, id)
}

// ListTrips lists trips page by page.
func (c *MongoTripCollection) ListTrips(ctx context.Context, q ListQuery) ([]models.Trip, int64, error) {
	if len(q.Sort) == 0 {
		q.Sort = bson.D{{Key: "scheduled_date", Value: -1}, {Key: "_id", Value: -1}}
	}
	return c.repo().list(ctx, q)
}

// SaveTrip recalculates derived amounts and replaces the stored trip if
// nobody saved it since it was loaded. A stale copy gets ErrTripConflict.
func (c *MongoTripCollection) SaveTrip(ctx context.Context, trip *models.Trip) error {
	trip.Recalculate()
	trip.UpdatedAt = time.Now()

	expected := trip.Version
	filter := bson.M{"_id": trip.ID, "version": expected}
	if expected == 0 {
		// trips stored before versioning have no version field
		filter["version"] = bson.M{"$in": bson.A{0, nil}}
	}
	trip.Version = expected + 1
	res, err := c.Collection.ReplaceOne(ctx, filter, trip)
	if err != nil {
		trip.Version = expected
		return err
	}
	if res.MatchedCount == 0 {
		trip.Version = expected
		n, err := c.Collection.CountDocuments(ctx, bson.M{"_id": trip.ID}, options.Count().SetLimit(1))
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrTripNotFound
		}
		return ErrTripConflict
	}
	return nil
}

// DeleteTrip deletes a trip by its ID.
func (c *MongoTripCollection) DeleteTrip(ctx context.Context, id string) error {
	return c.repo().delete(ctx, id)
}

// HasActiveTrip reports whether the vehicle is on a booked or running trip.
func (c *MongoTripCollection) HasActiveTrip(ctx context.Context, vehicleID primitive.ObjectID) (bool, error) {
	n, err := c.Collection.CountDocuments(ctx, bson.M{
		"vehicle": vehicleID,
		"status":  bson.M{"$in": bson.A{models.TripBooked, models.TripInProgress}},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindTrips returns every trip matching q, oldest first.
func (c *MongoTripCollection) FindTrips(ctx context.Context, q TripQuery) ([]models.Trip, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_date", Value: 1}})
	return c.repo().findAll(ctx, q.Filter(), opts)
}
