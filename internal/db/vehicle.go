package db

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var (
	ErrVehicleNotFound  = apperr.NotFound("vehicle not found")
	ErrDuplicateVehicle = apperr.Conflict("a vehicle with this registration number already exists")
)

// MongoVehicleCollection implements VehicleCollection for MongoDB.
type MongoVehicleCollection struct {
	Collection *mongo.Collection
}

func (c *MongoVehicleCollection) repo() repository[models.Vehicle] {
	return repository[models.Vehicle]{coll: c.Collection, notFound: ErrVehicleNotFound}
}

// InsertVehicle inserts a vehicle record into the collection.
func (c *MongoVehicleCollection) InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	now := time.Now()
	vehicle.RegistrationNumber = normalizeRegistration(vehicle.RegistrationNumber)
	vehicle.CreatedAt = now
	vehicle.UpdatedAt = now
	if vehicle.Status == "" {
		vehicle.Status = models.VehicleAvailable
	}
	id, err := c.repo().insert(ctx, vehicle)
	if err != nil {
		if IsDuplicate(err) {
			return ErrDuplicateVehicle
		}
		return err
	}
	vehicle.ID = id
	return nil
}

// FindVehicleByID finds a vehicle by its ID.
func (c *MongoVehicleCollection) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	return c.repo().findByID(ctx, id)
}

// ListVehicles queries vehicle records from the collection.
func (c *MongoVehicleCollection) ListVehicles(ctx context.Context, q ListQuery) ([]models.Vehicle, int64, error) {
	return c.repo().list(ctx, q)
}

// UpdateVehicle replaces a vehicle by its ID.
func (c *MongoVehicleCollection) UpdateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	vehicle.RegistrationNumber = normalizeRegistration(vehicle.RegistrationNumber)
	vehicle.UpdatedAt = time.Now()
	err := c.repo().replace(ctx, vehicle.ID, vehicle)
	if IsDuplicate(err) {
		return ErrDuplicateVehicle
	}
	return err
}

// SetVehicleStatus changes only the booking status.
func (c *MongoVehicleCollection) SetVehicleStatus(ctx context.Context, id primitive.ObjectID, status models.VehicleStatus) error {
	return c.repo().update(ctx, id, bson.M{"status": status, "updated_at": time.Now()})
}

// DeleteVehicle deletes a vehicle by its ID.
func (c *MongoVehicleCollection) DeleteVehicle(ctx context.Context, id string) error {
	return c.repo().delete(ctx, id)
}

// FindExpiringVehicles returns active vehicles with a document expiring
// before the given time.
func (c *MongoVehicleCollection) FindExpiringVehicles(ctx context.Context, before time.Time) ([]models.Vehicle, error) {
	filter := bson.M{
		"status": bson.M{"$ne": models.VehicleInactive},
		"$or": bson.A{
			bson.M{"insurance_expiry": bson.M{"$lte": before}},
			bson.M{"fitness_expiry": bson.M{"$lte": before}},
			bson.M{"permit_expiry": bson.M{"$lte": before}},
		},
	}
	return c.repo().findAll(ctx, filter)
}

func normalizeRegistration(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
