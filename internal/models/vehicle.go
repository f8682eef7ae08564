package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ownership says who owns a vehicle.
type Ownership string

const (
	OwnershipSelf       Ownership = "self"
	OwnershipFleetOwner Ownership = "fleet_owner"
)

// IsValid checks if the ownership is known
func (o Ownership) IsValid() bool {
	return o == OwnershipSelf || o == OwnershipFleetOwner
}

// VehicleStatus is the booking availability of a vehicle.
type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "available"
	VehicleBooked      VehicleStatus = "booked"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleInactive    VehicleStatus = "inactive"
)

// IsValid checks if the vehicle status is known
func (s VehicleStatus) IsValid() bool {
	switch s {
	case VehicleAvailable, VehicleBooked, VehicleMaintenance, VehicleInactive:
		return true
	}
	return false
}

// Vehicle represents a fleet vehicle.
type Vehicle struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RegistrationNumber string              `bson:"registration_number" json:"registration_number"`
	Type               string              `bson:"type" json:"type"` // "truck", "trailer", "container", "tanker"
	Make               string              `bson:"make,omitempty" json:"make,omitempty"`
	Model              string              `bson:"model,omitempty" json:"model,omitempty"`
	Year               int                 `bson:"year,omitempty" json:"year,omitempty"`
	Capacity           float64             `bson:"capacity" json:"capacity"` // in tons
	Ownership          Ownership           `bson:"ownership" json:"ownership"`
	Owner              *primitive.ObjectID `bson:"owner,omitempty" json:"owner,omitempty"`
	OwnerName          string              `bson:"owner_name,omitempty" json:"owner_name,omitempty"`
	CommissionRate     float64             `bson:"commission_rate" json:"commission_rate"` // percent
	Driver             *primitive.ObjectID `bson:"driver,omitempty" json:"driver,omitempty"`
	Status             VehicleStatus       `bson:"status" json:"status"`
	InsuranceExpiry    *time.Time          `bson:"insurance_expiry,omitempty" json:"insurance_expiry,omitempty"`
	FitnessExpiry      *time.Time          `bson:"fitness_expiry,omitempty" json:"fitness_expiry,omitempty"`
	PermitExpiry       *time.Time          `bson:"permit_expiry,omitempty" json:"permit_expiry,omitempty"`
	Notes              string              `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt          time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `bson:"updated_at" json:"updated_at"`
}

// OwnerSnapshot captures the ownership terms to freeze on a new trip.
func (v *Vehicle) OwnerSnapshot() VehicleOwnerSnapshot {
	snap := VehicleOwnerSnapshot{
		Type:           v.Ownership,
		Name:           v.OwnerName,
		CommissionRate: v.CommissionRate,
	}
	if v.Owner != nil {
		snap.Owner = *v.Owner
	}
	if v.Ownership == OwnershipSelf {
		snap.CommissionRate = 0
	}
	return snap
}

// Bookable reports whether a new trip may be booked on the vehicle.
func (v *Vehicle) Bookable() bool {
	return v.Status == VehicleAvailable
}
