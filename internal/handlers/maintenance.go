package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var errMaintenanceStatus = apperr.BadRequest("invalid maintenance status")

// MaintenanceHandler keeps vehicle service records and moves the vehicle
// in and out of the maintenance status.
type MaintenanceHandler struct {
	*Deps
}

func NewMaintenanceHandler(d *Deps) *MaintenanceHandler {
	return &MaintenanceHandler{Deps: d}
}

type maintenanceRequest struct {
	Vehicle         *string                   `json:"vehicle"`
	ServiceType     *string                   `json:"service_type" validate:"omitempty,oneof=oil_change tyre brake_service engine inspection other"`
	Description     *string                   `json:"description" validate:"omitempty,max=1000"`
	ServiceDate     *time.Time                `json:"service_date"`
	NextServiceDate *time.Time                `json:"next_service_date"`
	Odometer        *float64                  `json:"odometer" validate:"omitempty,gte=0"`
	Cost            *float64                  `json:"cost" validate:"omitempty,gte=0"`
	LaborCost       *float64                  `json:"labor_cost" validate:"omitempty,gte=0"`
	PartsCost       *float64                  `json:"parts_cost" validate:"omitempty,gte=0"`
	Vendor          *string                   `json:"vendor"`
	Status          *models.MaintenanceStatus `json:"status"`
	Notes           *string                   `json:"notes"`
}

// List supports ?vehicle=, ?status=, ?from= and ?to= on the service date.
func (h *MaintenanceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r, "service_date", "cost", "created_at")
	if err := queryID(r, &q, "vehicle", "vehicle"); err != nil {
		h.fail(w, r, err)
		return
	}
	if s := r.URL.Query().Get("status"); s != "" {
		q.Filter["status"] = s
	}
	from, err := queryDate(r, "from")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if from != nil || to != nil {
		q.Filter["service_date"] = dateRange(from, endOfDay(to))
	}

	records, total, err := h.Maintenance.ListMaintenance(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, records, len(records), total, q)
}

func (h *MaintenanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.Maintenance.FindMaintenanceByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"maintenance": m})
}

func (h *MaintenanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req maintenanceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Vehicle == nil || req.ServiceType == nil {
		h.fail(w, r, errFieldsRequired("vehicle", "service_type"))
		return
	}

	m := models.Maintenance{CreatedBy: actor.ID, ServiceDate: h.now()}
	vehicle, err := h.apply(r, &m, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status, sync := h.vehicleStatus(vehicle, "", m.Status)
	if sync && vehicle.Status == models.VehicleBooked {
		h.fail(w, r, models.ErrVehicleBusy)
		return
	}

	err = h.Tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := h.Maintenance.InsertMaintenance(ctx, &m); err != nil {
			return err
		}
		if !sync {
			return nil
		}
		return h.Vehicles.SetVehicleStatus(ctx, vehicle.ID, status)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "create_maintenance",
		Category:    activity.CategoryMaintenance,
		Description: m.ServiceType + " for " + m.VehicleNumber,
		EntityType:  "maintenance",
		EntityID:    m.ID.Hex(),
		Details:     map[string]interface{}{"cost": m.Cost, "status": m.Status},
	})
	respond(w, http.StatusCreated, map[string]interface{}{"maintenance": m})
}

func (h *MaintenanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req maintenanceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.Maintenance.FindMaintenanceByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Vehicle != nil && *req.Vehicle != m.Vehicle.Hex() {
		h.fail(w, r, apperr.BadRequest("the vehicle of a maintenance record cannot change"))
		return
	}

	before := m.Status
	vehicle, err := h.apply(r, m, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status, sync := h.vehicleStatus(vehicle, before, m.Status)
	if sync && status == models.VehicleMaintenance && vehicle.Status == models.VehicleBooked {
		h.fail(w, r, models.ErrVehicleBusy)
		return
	}

	err = h.Tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := h.Maintenance.UpdateMaintenance(ctx, m); err != nil {
			return err
		}
		if !sync {
			return nil
		}
		return h.Vehicles.SetVehicleStatus(ctx, vehicle.ID, status)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "update_maintenance",
		Category:    activity.CategoryMaintenance,
		Description: m.ServiceType + " for " + m.VehicleNumber + " is " + string(m.Status),
		EntityType:  "maintenance",
		EntityID:    m.ID.Hex(),
	})
	respond(w, http.StatusOK, map[string]interface{}{"maintenance": m})
}

// Delete removes a record; deleting one in progress frees the vehicle.
func (h *MaintenanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.Maintenance.FindMaintenanceByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	err = h.Tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := h.Maintenance.DeleteMaintenance(ctx, m.ID.Hex()); err != nil {
			return err
		}
		if m.Status != models.MaintenanceInProgress {
			return nil
		}
		vehicle, err := h.Vehicles.FindVehicleByID(ctx, m.Vehicle.Hex())
		if err != nil || vehicle.Status != models.VehicleMaintenance {
			return ignoreMissingVehicle(err)
		}
		return h.Vehicles.SetVehicleStatus(ctx, m.Vehicle, models.VehicleAvailable)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "delete_maintenance",
		Category:    activity.CategoryMaintenance,
		Description: "deleted " + m.ServiceType + " for " + m.VehicleNumber,
		EntityType:  "maintenance",
		EntityID:    m.ID.Hex(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// apply copies set fields onto m and returns the record's vehicle.
func (h *MaintenanceHandler) apply(r *http.Request, m *models.Maintenance, req *maintenanceRequest) (*models.Vehicle, error) {
	if req.Vehicle != nil && m.Vehicle.IsZero() {
		id, err := db.ParseID(*req.Vehicle)
		if err != nil {
			return nil, err
		}
		m.Vehicle = id
	}
	vehicle, err := h.Vehicles.FindVehicleByID(r.Context(), m.Vehicle.Hex())
	if err != nil {
		return nil, err
	}
	m.VehicleNumber = vehicle.RegistrationNumber

	if req.ServiceType != nil {
		m.ServiceType = *req.ServiceType
	}
	if req.Description != nil {
		m.Description = *req.Description
	}
	if req.ServiceDate != nil {
		m.ServiceDate = *req.ServiceDate
	}
	if req.NextServiceDate != nil {
		m.NextServiceDate = req.NextServiceDate
	}
	if req.Odometer != nil {
		m.Odometer = *req.Odometer
	}
	if req.Cost != nil {
		m.Cost = *req.Cost
	}
	if req.LaborCost != nil {
		m.LaborCost = *req.LaborCost
	}
	if req.PartsCost != nil {
		m.PartsCost = *req.PartsCost
	}
	if req.Vendor != nil {
		m.Vendor = *req.Vendor
	}
	if req.Notes != nil {
		m.Notes = *req.Notes
	}
	if req.Status != nil {
		if !req.Status.IsValid() {
			return nil, errMaintenanceStatus
		}
		m.Status = *req.Status
	}
	m.Total()
	return vehicle, nil
}

// vehicleStatus decides whether a maintenance status change should move
// the vehicle. Only a vehicle in maintenance is handed back as available.
func (h *MaintenanceHandler) vehicleStatus(v *models.Vehicle, from, to models.MaintenanceStatus) (models.VehicleStatus, bool) {
	if from == to {
		return "", false
	}
	status, ok := to.VehicleStatus()
	if !ok {
		return "", false
	}
	if status == models.VehicleAvailable && v.Status != models.VehicleMaintenance {
		return "", false
	}
	return status, true
}

func ignoreMissingVehicle(err error) error {
	if err == nil || apperr.StatusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}
