package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/middleware"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var (
	errOwnerRequired  = apperr.BadRequest("fleet owner vehicles need an owner")
	errBookedManually = apperr.BadRequest("vehicles are booked by creating a trip")
	errInvalidStatus  = apperr.BadRequest("invalid vehicle status")
)

// VehicleHandler serves the vehicle registry.
type VehicleHandler struct {
	*Deps
}

func NewVehicleHandler(d *Deps) *VehicleHandler {
	return &VehicleHandler{Deps: d}
}

type vehicleRequest struct {
	RegistrationNumber *string               `json:"registration_number" validate:"omitempty,min=4,max=20"`
	Type               *string               `json:"type" validate:"omitempty,oneof=truck trailer container tanker"`
	Make               *string               `json:"make"`
	Model              *string               `json:"model"`
	Year               *int                  `json:"year" validate:"omitempty,gte=1950,lte=2100"`
	Capacity           *float64              `json:"capacity" validate:"omitempty,gte=0"`
	Ownership          *models.Ownership     `json:"ownership"`
	Owner              *string               `json:"owner"`
	CommissionRate     *float64              `json:"commission_rate" validate:"omitempty,gte=0,lte=100"`
	Driver             *string               `json:"driver"`
	Status             *models.VehicleStatus `json:"status"`
	InsuranceExpiry    *time.Time            `json:"insurance_expiry"`
	FitnessExpiry      *time.Time            `json:"fitness_expiry"`
	PermitExpiry       *time.Time            `json:"permit_expiry"`
	Notes              *string               `json:"notes"`
}

// List supports ?status=, ?ownership=, ?owner= and ?search= on the
// registration number. Fleet owners only see their own vehicles.
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := listQuery(r, "registration_number", "status", "created_at", "capacity")
	if s := r.URL.Query().Get("status"); s != "" {
		q.Filter["status"] = s
	}
	if o := r.URL.Query().Get("ownership"); o != "" {
		q.Filter["ownership"] = o
	}
	if err := queryID(r, &q, "owner", "owner"); err != nil {
		h.fail(w, r, err)
		return
	}
	if s := strings.TrimSpace(r.URL.Query().Get("search")); s != "" {
		q.Filter["registration_number"] = containsPattern(strings.ToUpper(strings.ReplaceAll(s, " ", "")))
	}
	if actor.Role == models.RoleFleetOwner {
		q.Filter["owner"] = actor.ID
	}

	vehicles, total, err := h.Vehicles.ListVehicles(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, vehicles, len(vehicles), total, q)
}

func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	vehicle, err := h.loadVehicle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if actor.Role == models.RoleFleetOwner && (vehicle.Owner == nil || *vehicle.Owner != actor.ID) {
		h.fail(w, r, db.ErrVehicleNotFound)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"vehicle": vehicle})
}

func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req vehicleRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.RegistrationNumber == nil || req.Type == nil || req.Ownership == nil {
		h.fail(w, r, errFieldsRequired("registration_number", "type", "ownership"))
		return
	}

	vehicle := models.Vehicle{Status: models.VehicleAvailable}
	if err := h.apply(r, &vehicle, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Vehicles.InsertVehicle(r.Context(), &vehicle); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "create_vehicle",
		Category:    activity.CategoryVehicle,
		Description: "added vehicle " + vehicle.RegistrationNumber,
		EntityType:  "vehicle",
		EntityID:    vehicle.ID.Hex(),
	})
	respond(w, http.StatusCreated, map[string]interface{}{"vehicle": vehicle})
}

func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req vehicleRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	vehicle, err := h.loadVehicle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.apply(r, vehicle, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Vehicles.UpdateVehicle(r.Context(), vehicle); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "update_vehicle",
		Category:    activity.CategoryVehicle,
		Description: "updated vehicle " + vehicle.RegistrationNumber,
		EntityType:  "vehicle",
		EntityID:    vehicle.ID.Hex(),
	})
	respond(w, http.StatusOK, map[string]interface{}{"vehicle": vehicle})
}

// Delete refuses while the vehicle is booked or on an active trip.
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	vehicle, err := h.loadVehicle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if vehicle.Status == models.VehicleBooked {
		h.fail(w, r, models.ErrVehicleBusy)
		return
	}
	busy, err := h.Trips.HasActiveTrip(r.Context(), vehicle.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if busy {
		h.fail(w, r, models.ErrVehicleBusy)
		return
	}
	if err := h.Vehicles.DeleteVehicle(r.Context(), vehicle.ID.Hex()); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "delete_vehicle",
		Category:    activity.CategoryVehicle,
		Description: "deleted vehicle " + vehicle.RegistrationNumber,
		EntityType:  "vehicle",
		EntityID:    vehicle.ID.Hex(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// Ledger derives the owner ledger across every trip of one vehicle.
func (h *VehicleHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	vehicle, err := h.loadVehicle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if actor.Role != models.RoleAdmin && (vehicle.Owner == nil || *vehicle.Owner != actor.ID) {
		h.fail(w, r, middleware.ErrForbidden)
		return
	}

	tq := db.TripQuery{Vehicle: &vehicle.ID}
	if tq.From, err = queryDate(r, "from"); err != nil {
		h.fail(w, r, err)
		return
	}
	if tq.To, err = queryDate(r, "to"); err != nil {
		h.fail(w, r, err)
		return
	}
	tq.To = endOfDay(tq.To)

	trips, err := h.Trips.FindTrips(r.Context(), tq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"vehicle": vehicle,
		"ledger":  models.BuildLedger(trips),
	})
}

func (h *VehicleHandler) loadVehicle(r *http.Request) (*models.Vehicle, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return h.Vehicles.FindVehicleByID(r.Context(), id.Hex())
}

// apply copies the set fields of req onto v and resolves owner and driver.
func (h *VehicleHandler) apply(r *http.Request, v *models.Vehicle, req *vehicleRequest) error {
	if req.RegistrationNumber != nil {
		v.RegistrationNumber = *req.RegistrationNumber
	}
	if req.Type != nil {
		v.Type = *req.Type
	}
	if req.Make != nil {
		v.Make = *req.Make
	}
	if req.Model != nil {
		v.Model = *req.Model
	}
	if req.Year != nil {
		v.Year = *req.Year
	}
	if req.Capacity != nil {
		v.Capacity = *req.Capacity
	}
	if req.InsuranceExpiry != nil {
		v.InsuranceExpiry = req.InsuranceExpiry
	}
	if req.FitnessExpiry != nil {
		v.FitnessExpiry = req.FitnessExpiry
	}
	if req.PermitExpiry != nil {
		v.PermitExpiry = req.PermitExpiry
	}
	if req.Notes != nil {
		v.Notes = *req.Notes
	}
	if req.Status != nil {
		switch {
		case !req.Status.IsValid():
			return errInvalidStatus
		case *req.Status == models.VehicleBooked, v.Status == models.VehicleBooked && *req.Status != v.Status:
			return errBookedManually
		}
		v.Status = *req.Status
	}

	if req.Ownership != nil {
		if !req.Ownership.IsValid() {
			return models.ErrInvalidOwnership
		}
		v.Ownership = *req.Ownership
	}
	if req.Owner != nil {
		if *req.Owner == "" {
			v.Owner, v.OwnerName = nil, ""
		} else {
			id, err := db.ParseID(*req.Owner)
			if err != nil {
				return err
			}
			owner, err := h.findParty(r, id, models.RoleFleetOwner)
			if err != nil {
				return err
			}
			v.Owner, v.OwnerName = &owner.ID, ownerLabel(owner)
			if req.CommissionRate == nil && v.CommissionRate == 0 {
				v.CommissionRate = owner.CommissionRate
			}
		}
	}
	if req.CommissionRate != nil {
		v.CommissionRate = *req.CommissionRate
	}
	switch v.Ownership {
	case models.OwnershipFleetOwner:
		if v.Owner == nil {
			return errOwnerRequired
		}
	case models.OwnershipSelf:
		v.Owner, v.OwnerName, v.CommissionRate = nil, "", 0
	}

	if req.Driver != nil {
		if *req.Driver == "" {
			v.Driver = nil
		} else {
			id, err := db.ParseID(*req.Driver)
			if err != nil {
				return err
			}
			driver, err := h.findParty(r, id, models.RoleDriver)
			if err != nil {
				return err
			}
			v.Driver = &driver.ID
		}
	}
	return nil
}

func ownerLabel(u *models.User) string {
	if u.Company != "" {
		return u.Company
	}
	return u.Name
}
