package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
)

// Collection names.
const (
	UsersCollection              = "users"
	VehiclesCollection           = "vehicles"
	TripsCollection              = "trips"
	PaymentsCollection           = "payments"
	MaintenanceCollectionName    = "maintenances"
	ActivityLogsCollection       = "activitylogs"
	CountersCollection           = "counters"
	CitiesCollection             = "cities"
	ExpensesCollection           = "expenses"
	AdvancesCollection           = "advances"
	DriverCalculationsCollection = "drivercalculations"
)

// ErrInvalidID is returned when a path id is not an ObjectID.
var ErrInvalidID = apperr.BadRequest("invalid id")

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// Store bundles every collection of one database.
type Store struct {
	Client       *mongo.Client
	Database     *mongo.Database
	transactions bool

	Users              *MongoUserCollection
	Vehicles           *MongoVehicleCollection
	Trips              *MongoTripCollection
	Payments           *MongoPaymentCollection
	Maintenance        *MongoMaintenanceCollection
	Activity           *MongoActivityCollection
	Counters           *MongoCounterCollection
	Cities             *MongoCityCollection
	Expenses           *MongoExpenseCollection
	Advances           *MongoAdvanceCollection
	DriverCalculations *MongoDriverCalculationCollection
}

// NewStore wires the collections of database name. Multi-document writes use
// session transactions when transactions is true.
func NewStore(client *mongo.Client, name string, transactions bool) *Store {
	database := client.Database(name)
	return &Store{
		Client:             client,
		Database:           database,
		transactions:       transactions,
		Users:              &MongoUserCollection{Collection: database.Collection(UsersCollection)},
		Vehicles:           &MongoVehicleCollection{Collection: database.Collection(VehiclesCollection)},
		Trips:              &MongoTripCollection{Collection: database.Collection(TripsCollection)},
		Payments:           &MongoPaymentCollection{Collection: database.Collection(PaymentsCollection)},
		Maintenance:        &MongoMaintenanceCollection{Collection: database.Collection(MaintenanceCollectionName)},
		Activity:           &MongoActivityCollection{Collection: database.Collection(ActivityLogsCollection)},
		Counters:           &MongoCounterCollection{Collection: database.Collection(CountersCollection)},
		Cities:             &MongoCityCollection{Collection: database.Collection(CitiesCollection)},
		Expenses:           &MongoExpenseCollection{Collection: database.Collection(ExpensesCollection)},
		Advances:           &MongoAdvanceCollection{Collection: database.Collection(AdvancesCollection)},
		DriverCalculations: &MongoDriverCalculationCollection{Collection: database.Collection(DriverCalculationsCollection)},
	}
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, nil)
}

// WithTransaction runs fn inside a session transaction. fn must pass the
// context it receives to every collection call so they join the session.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	session, err := s.Client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// EnsureIndexes creates the unique and lookup indexes the API relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}}},
		},
		VehiclesCollection: {
			{Keys: bson.D{{Key: "registration_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
		TripsCollection: {
			{Keys: bson.D{{Key: "trip_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "vehicle", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "driver", Value: 1}, {Key: "scheduled_date", Value: -1}}},
			{Keys: bson.D{{Key: "vehicle_owner.owner", Value: 1}}},
			{Keys: bson.D{{Key: "clients.client", Value: 1}}},
		},
		PaymentsCollection: {
			{Keys: bson.D{{Key: "payment_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "trip", Value: 1}}},
		},
		ActivityLogsCollection: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		CitiesCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}, {Key: "state", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		AdvancesCollection: {
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "settled", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.Database.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

// ParseID converts a hex path id into an ObjectID.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

// IsDuplicate reports whether err is a unique index violation.
func IsDuplicate(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

func notFound(err error, nf *apperr.Error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nf
	}
	return err
}
