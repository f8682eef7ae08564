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
	ErrMaintenanceNotFound       = apperr.NotFound("maintenance record not found")
	ErrCityNotFound              = apperr.NotFound("city not found")
	ErrDuplicateCity             = apperr.Conflict("city already exists")
	ErrExpenseNotFound           = apperr.NotFound("expense not found")
	ErrAdvanceNotFound           = apperr.NotFound("advance not found")
	ErrDriverCalculationNotFound = apperr.NotFound("driver calculation not found")
)

// MongoMaintenanceCollection implements MaintenanceCollection for MongoDB.
type MongoMaintenanceCollection struct {
	Collection *mongo.Collection
}

func (c *MongoMaintenanceCollection) repo() repository[models.Maintenance] {
	return repository[models.Maintenance]{coll: c.Collection, notFound: ErrMaintenanceNotFound}
}

// InsertMaintenance inserts a maintenance record into the collection.
func (c *MongoMaintenanceCollection) InsertMaintenance(ctx context.Context, m *models.Maintenance) error {
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	id, err := c.repo().insert(ctx, m)
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// FindMaintenanceByID finds a maintenance record by its ID.
func (c *MongoMaintenanceCollection) FindMaintenanceByID(ctx context.Context, id string) (*models.Maintenance, error) {
	return c.repo().findByID(ctx, id)
}

// ListMaintenance queries maintenance records from the collection.
func (c *MongoMaintenanceCollection) ListMaintenance(ctx context.Context, q ListQuery) ([]models.Maintenance, int64, error) {
	if len(q.Sort) == 0 {
		q.Sort = bson.D{{Key: "service_date", Value: -1}}
	}
	return c.repo().list(ctx, q)
}

// UpdateMaintenance replaces a maintenance record by its ID.
func (c *MongoMaintenanceCollection) UpdateMaintenance(ctx context.Context, m *models.Maintenance) error {
	m.UpdatedAt = time.Now()
	return c.repo().replace(ctx, m.ID, m)
}

// DeleteMaintenance deletes a maintenance record by its ID.
func (c *MongoMaintenanceCollection) DeleteMaintenance(ctx context.Context, id string) error {
	return c.repo().delete(ctx, id)
}

// MongoActivityCollection implements ActivityCollection for MongoDB.
type MongoActivityCollection struct {
	Collection *mongo.Collection
}

// InsertActivity stores one audit row.
func (c *MongoActivityCollection) InsertActivity(ctx context.Context, entry *models.ActivityLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	id, err := repository[models.ActivityLog]{coll: c.Collection}.insert(ctx, entry)
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

// ListActivity lists audit rows, newest first.
func (c *MongoActivityCollection) ListActivity(ctx context.Context, q ListQuery) ([]models.ActivityLog, int64, error) {
	return repository[models.ActivityLog]{coll: c.Collection}.list(ctx, q)
}

// MongoCityCollection implements CityCollection for MongoDB.
type MongoCityCollection struct {
	Collection *mongo.Collection
}

func (c *MongoCityCollection) repo() repository[models.City] {
	return repository[models.City]{coll: c.Collection, notFound: ErrCityNotFound}
}

func (c *MongoCityCollection) InsertCity(ctx context.Context, city *models.City) error {
	city.CreatedAt = time.Now()
	city.UpdatedAt = city.CreatedAt
	id, err := c.repo().insert(ctx, city)
	if IsDuplicate(err) {
		return ErrDuplicateCity
	}
	if err != nil {
		return err
	}
	city.ID = id
	return nil
}

func (c *MongoCityCollection) FindCityByID(ctx context.Context, id string) (*models.City, error) {
	return c.repo().findByID(ctx, id)
}

func (c *MongoCityCollection) ListCities(ctx context.Context, q ListQuery) ([]models.City, int64, error) {
	if len(q.Sort) == 0 {
		q.Sort = bson.D{{Key: "name", Value: 1}}
	}
	return c.repo().list(ctx, q)
}

func (c *MongoCityCollection) UpdateCity(ctx context.Context, city *models.City) error {
	city.UpdatedAt = time.Now()
	err := c.repo().replace(ctx, city.ID, city)
	if IsDuplicate(err) {
		return ErrDuplicateCity
	}
	return err
}

func (c *MongoCityCollection) DeleteCity(ctx context.Context, id string) error {
	return c.repo().delete(ctx, id)
}

// MongoExpenseCollection implements ExpenseCollection for MongoDB.
type MongoExpenseCollection struct {
	Collection *mongo.Collection
}

func (c *MongoExpenseCollection) repo() repository[models.Expense] {
	return repository[models.Expense]{coll: c.Collection, notFound: ErrExpenseNotFound}
}

func (c *MongoExpenseCollection) InsertExpense(ctx context.Context, expense *models.Expense) error {
	expense.CreatedAt = time.Now()
	expense.UpdatedAt = expense.CreatedAt
	id, err := c.repo().insert(ctx, expense)
	if err != nil {
		return err
	}
	expense.ID = id
	return nil
}

func (c *MongoExpenseCollection) FindExpenseByID(ctx context.Context, id string) (*models.Expense, error) {
	return c.repo().findByID(ctx, id)
}

func (c *MongoExpenseCollection) ListExpenses(ctx context.Context, q ListQuery) ([]models.Expense, int64, error) {
	if len(q.Sort) == 0 {
		q.Sort = bson.D{{Key: "date", Value: -1}}
	}
	return c.repo().list(ctx, q)
}

func (c *MongoExpenseCollection) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now()
	return c.repo().replace(ctx, expense.ID, expense)
}

func (c *MongoExpenseCollection) DeleteExpense(ctx context.Context, id string) error {
	return c.repo().delete(ctx, id)
}

// MongoAdvanceCollection implements AdvanceCollection for MongoDB.
type MongoAdvanceCollection struct {
	Collection *mongo.Collection
}

func (c *MongoAdvanceCollection) repo() repository[models.Advance] {
	return repository[models.Advance]{coll: c.Collection, notFound: ErrAdvanceNotFound}
}

func (c *MongoAdvanceCollection) InsertAdvance(ctx context.Context, advance *models.Advance) error {
	advance.CreatedAt = time.Now()
	advance.UpdatedAt = advance.CreatedAt
	id, err := c.repo().insert(ctx, advance)
	if err != nil {
		return err
	}
	advance.ID = id
	return nil
}

func (c *MongoAdvanceCollection) FindAdvanceByID(ctx context.Context, id string) (*models.Advance, error) {
	return c.repo().findByID(ctx, id)
}

func (c *MongoAdvanceCollection) ListAdvances(ctx context.Context, q ListQuery) ([]models.Advance, int64, error) {
	if len(q.Sort) == 0 {
		q.Sort = bson.D{{Key: "date", Value: -1}}
	}
	return c.repo().list(ctx, q)
}

func (c *MongoAdvanceCollection) UpdateAdvance(ctx context.Context, advance *models.Advance) error {
	advance.UpdatedAt = time.Now()
	return c.repo().replace(ctx, advance.ID, advance)
}

func (c *MongoAdvanceCollection) DeleteAdvance(ctx context.Context, id string) error {
	return c.repo().delete(ctx, id)
}

// FindUnsettledAdvances returns the open advances paid to recipient in the period.
func (c *MongoAdvanceCollection) FindUnsettledAdvances(ctx context.Context, recipient primitive.ObjectID, from, to time.Time) ([]models.Advance, error) {
	filter := bson.M{
		"recipient": recipient,
		"settled":   false,
		"date":      bson.M{"$gte": from, "$lte": to},
	}
	return c.repo().findAll(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
}

// MarkSettled flags advances as covered by a driver calculation.
func (c *MongoAdvanceCollection) MarkSettled(ctx context.Context, ids []primitive.ObjectID, calculation primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.Collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"settled": true, "settled_in": calculation, "updated_at": time.Now()}},
	)
	return err
}

// ReleaseSettled reopens the advances a deleted calculation had covered.
func (c *MongoAdvanceCollection) ReleaseSettled(ctx context.Context, calculation primitive.ObjectID) error {
	_, err := c.Collection.UpdateMany(ctx,
		bson.M{"settled_in": calculation},
		bson.M{"$set": bson.M{"settled": false, "updated_at": time.Now()}, "$unset": bson.M{"settled_in": ""}},
	)
	return err
}

// MongoDriverCalculationCollection implements DriverCalculationCollection for MongoDB.
type MongoDriverCalculationCollection struct {
	Collection *mongo.Collection
}

func (c *MongoDriverCalculationCollection) repo() repository[models.DriverCalculation] {
	return repository[models.DriverCalculation]{coll: c.Collection, notFound: ErrDriverCalculationNotFound}
}

func (c *MongoDriverCalculationCollection) InsertDriverCalculation(ctx context.Context, calc *models.DriverCalculation) error {
	calc.CreatedAt = time.Now()
	id, err := c.repo().insert(ctx, calc)
	if err != nil {
		return err
	}
	calc.ID = id
	return nil
}

func (c *MongoDriverCalculationCollection) FindDriverCalculationByID(ctx context.Context, id string) (*models.DriverCalculation, error) {
	return c.repo().findByID(ctx, id)
}

func (c *MongoDriverCalculationCollection) ListDriverCalculations(ctx context.Context, q ListQuery) ([]models.DriverCalculation, int64, error) {
	return c.repo().list(ctx, q)
}

func (c *MongoDriverCalculationCollection) DeleteDriverCalculation(ctx context.Context, id string) error {
	return c.repo().delete(ctx, id)
}
