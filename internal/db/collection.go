package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/models"
)

// Transactor runs a function inside one database transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserCollection defines the interface for user database operations
type UserCollection interface {
	InsertUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByToken(ctx context.Context, field TokenField, hashed string) (*models.User, error)
	ListUsers(ctx context.Context, q ListQuery) ([]models.User, int64, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error
}

// VehicleCollection defines the interface for vehicle data operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, q ListQuery) ([]models.Vehicle, int64, error)
	UpdateVehicle(ctx context.Context, vehicle *models.Vehicle) error
	SetVehicleStatus(ctx context.Context, id primitive.ObjectID, status models.VehicleStatus) error
	DeleteVehicle(ctx context.Context, id string) error
	FindExpiringVehicles(ctx context.Context, before time.Time) ([]models.Vehicle, error)
}

// TripCollection defines the interface for trip data operations.
type TripCollection interface {
	InsertTrip(ctx context.Context, trip *models.Trip) error
	FindTripByID(ctx context.Context, id string) (*models.Trip, error)
	ListTrips(ctx context.Context, q ListQuery) ([]models.Trip, int64, error)
	SaveTrip(ctx context.Context, trip *models.Trip) error
	DeleteTrip(ctx context.Context, id string) error
	HasActiveTrip(ctx context.Context, vehicleID primitive.ObjectID) (bool, error)
	FindTrips(ctx context.Context, q TripQuery) ([]models.Trip, error)
}

// CounterCollection hands out sequence numbers.
type CounterCollection interface {
	GetNext(ctx context.Context, name string, opts CounterOptions) (Sequence, error)
}

// PaymentCollection defines the interface for payment data operations.
type PaymentCollection interface {
	InsertPayment(ctx context.Context, payment *models.Payment) error
	FindPaymentByID(ctx context.Context, id string) (*models.Payment, error)
	ListPayments(ctx context.Context, q ListQuery) ([]models.Payment, int64, error)
	DeletePayment(ctx context.Context, id string) error
}

// MaintenanceCollection defines the interface for maintenance data operations.
type MaintenanceCollection interface {
	InsertMaintenance(ctx context.Context, m *models.Maintenance) error
	FindMaintenanceByID(ctx context.Context, id string) (*models.Maintenance, error)
	ListMaintenance(ctx context.Context, q ListQuery) ([]models.Maintenance, int64, error)
	UpdateMaintenance(ctx context.Context, m *models.Maintenance) error
	DeleteMaintenance(ctx context.Context, id string) error
}

// ActivityCollection stores audit rows.
type ActivityCollection interface {
	InsertActivity(ctx context.Context, entry *models.ActivityLog) error
	ListActivity(ctx context.Context, q ListQuery) ([]models.ActivityLog, int64, error)
}

// CityCollection defines the interface for city master data.
type CityCollection interface {
	InsertCity(ctx context.Context, city *models.City) error
	FindCityByID(ctx context.Context, id string) (*models.City, error)
	ListCities(ctx context.Context, q ListQuery) ([]models.City, int64, error)
	UpdateCity(ctx context.Context, city *models.City) error
	DeleteCity(ctx context.Context, id string) error
}

// ExpenseCollection defines the interface for general expense operations.
type ExpenseCollection interface {
	InsertExpense(ctx context.Context, expense *models.Expense) error
	FindExpenseByID(ctx context.Context, id string) (*models.Expense, error)
	ListExpenses(ctx context.Context, q ListQuery) ([]models.Expense, int64, error)
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, id string) error
}

// AdvanceCollection defines the interface for stand-alone advances.
type AdvanceCollection interface {
	InsertAdvance(ctx context.Context, advance *models.Advance) error
	FindAdvanceByID(ctx context.Context, id string) (*models.Advance, error)
	ListAdvances(ctx context.Context, q ListQuery) ([]models.Advance, int64, error)
	UpdateAdvance(ctx context.Context, advance *models.Advance) error
	DeleteAdvance(ctx context.Context, id string) error
	FindUnsettledAdvances(ctx context.Context, recipient primitive.ObjectID, from, to time.Time) ([]models.Advance, error)
	MarkSettled(ctx context.Context, ids []primitive.ObjectID, calculation primitive.ObjectID) error
	ReleaseSettled(ctx context.Context, calculation primitive.ObjectID) error
}

// DriverCalculationCollection stores driver settlements.
type DriverCalculationCollection interface {
	InsertDriverCalculation(ctx context.Context, calc *models.DriverCalculation) error
	FindDriverCalculationByID(ctx context.Context, id string) (*models.DriverCalculation, error)
	ListDriverCalculations(ctx context.Context, q ListQuery) ([]models.DriverCalculation, int64, error)
	DeleteDriverCalculation(ctx context.Context, id string) error
}
