package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/finance"
)

// MaintenanceStatus is the state of a service job.
type MaintenanceStatus string

const (
	MaintenanceScheduled  MaintenanceStatus = "scheduled"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
	MaintenanceCancelled  MaintenanceStatus = "cancelled"
)

// IsValid checks if the status is a known MaintenanceStatus
func (s MaintenanceStatus) IsValid() bool {
	switch s {
	case MaintenanceScheduled, MaintenanceInProgress, MaintenanceCompleted, MaintenanceCancelled:
		return true
	}
	return false
}

// VehicleStatus returns the status the serviced vehicle moves to when a job
// enters s, and false when the vehicle is left alone.
func (s MaintenanceStatus) VehicleStatus() (VehicleStatus, bool) {
	switch s {
	case MaintenanceInProgress:
		return VehicleMaintenance, true
	case MaintenanceCompleted, MaintenanceCancelled:
		return VehicleAvailable, true
	}
	return "", false
}

// Maintenance represents a vehicle maintenance record.
type Maintenance struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Vehicle         primitive.ObjectID `json:"vehicle" bson:"vehicle"`
	VehicleNumber   string             `json:"vehicle_number" bson:"vehicle_number"`
	ServiceType     string             `json:"service_type" bson:"service_type"` // "oil_change", "tyre", "brake_service", "engine", "inspection"
	Description     string             `json:"description" bson:"description"`
	ServiceDate     time.Time          `json:"service_date" bson:"service_date"`
	NextServiceDate *time.Time         `json:"next_service_date,omitempty" bson:"next_service_date,omitempty"`
	Odometer        float64            `json:"odometer" bson:"odometer"` // in kilometers
	Cost            float64            `json:"cost" bson:"cost"`
	LaborCost       float64            `json:"labor_cost" bson:"labor_cost"`
	PartsCost       float64            `json:"parts_cost" bson:"parts_cost"`
	Vendor          string             `json:"vendor" bson:"vendor"`
	Status          MaintenanceStatus  `json:"status" bson:"status"`
	ReceiptURL      string             `json:"receipt_url,omitempty" bson:"receipt_url,omitempty"`
	Notes           string             `json:"notes" bson:"notes"`
	CreatedBy       primitive.ObjectID `json:"created_by,omitempty" bson:"created_by,omitempty"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}

// Total fills Cost from labor and parts when they are given.
func (m *Maintenance) Total() {
	if m.LaborCost != 0 || m.PartsCost != 0 {
		m.Cost = finance.Sum(m.LaborCost, m.PartsCost)
	}
	if m.Status == "" {
		m.Status = MaintenanceScheduled
	}
}
