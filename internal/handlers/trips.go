package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var (
	errBookForOthers  = apperr.Forbidden("clients can only book trips for themselves")
	errEditOthers     = apperr.Forbidden("clients can only edit their own consignment")
	errClientTripEdit = apperr.Forbidden("only an admin can change the driver, schedule or rates")
)

// TripHandler serves trips, their ledgers and proof of delivery.
type TripHandler struct {
	*Deps
}

func NewTripHandler(d *Deps) *TripHandler {
	return &TripHandler{Deps: d}
}

type tripClientRequest struct {
	Client        string  `json:"client" validate:"required"`
	Origin        string  `json:"origin" validate:"required"`
	Destination   string  `json:"destination" validate:"required"`
	Goods         string  `json:"goods"`
	Weight        float64 `json:"weight" validate:"gte=0"`
	Rate          float64 `json:"rate" validate:"gte=0"`
	TruckHireCost float64 `json:"truck_hire_cost" validate:"gte=0"`
}

type createTripRequest struct {
	Vehicle       string              `json:"vehicle" validate:"required"`
	Driver        string              `json:"driver"`
	ScheduledDate time.Time           `json:"scheduled_date" validate:"required"`
	Clients       []tripClientRequest `json:"clients" validate:"required,min=1,dive"`
	Notes         string              `json:"notes"`
}

type clientPatch struct {
	Index         int      `json:"index" validate:"gte=0"`
	Origin        *string  `json:"origin" validate:"omitempty,min=1"`
	Destination   *string  `json:"destination" validate:"omitempty,min=1"`
	Goods         *string  `json:"goods"`
	Weight        *float64 `json:"weight" validate:"omitempty,gte=0"`
	Rate          *float64 `json:"rate" validate:"omitempty,gte=0"`
	TruckHireCost *float64 `json:"truck_hire_cost" validate:"omitempty,gte=0"`
}

type updateTripRequest struct {
	ScheduledDate *time.Time    `json:"scheduled_date"`
	Driver        *string       `json:"driver"`
	Notes         *string       `json:"notes"`
	Clients       []clientPatch `json:"clients" validate:"dive"`
}

type statusRequest struct {
	Status models.TripStatus `json:"status" validate:"required"`
	Note   string            `json:"note" validate:"max=500"`
}

// List returns the trips visible to the caller. Admins may filter by
// ?status= (comma separated), ?vehicle=, ?driver=, ?client=, ?owner=,
// ?from=, ?to= and ?search= on the trip number.
func (h *TripHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := listQuery(r, "scheduled_date", "trip_number", "status", "created_at", "total_client_amount")
	if err := tripFilter(r, &q); err != nil {
		h.fail(w, r, err)
		return
	}
	scopeTrips(q.Filter, actor)

	trips, total, err := h.Trips.ListTrips(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, trips, len(trips), total, q)
}

func tripFilter(r *http.Request, q *db.ListQuery) error {
	if s := r.URL.Query().Get("status"); s != "" {
		statuses := bson.A{}
		for _, st := range strings.Split(s, ",") {
			status := models.TripStatus(strings.TrimSpace(st))
			if !status.IsValid() {
				return apperr.BadRequest("invalid trip status " + string(status))
			}
			statuses = append(statuses, status)
		}
		q.Filter["status"] = bson.M{"$in": statuses}
	}
	for param, key := range map[string]string{
		"vehicle": "vehicle",
		"driver":  "driver",
		"client":  "clients.client",
		"owner":   "vehicle_owner.owner",
	} {
		if err := queryID(r, q, param, key); err != nil {
			return err
		}
	}
	from, err := queryDate(r, "from")
	if err != nil {
		return err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return err
	}
	if from != nil || to != nil {
		q.Filter["scheduled_date"] = dateRange(from, endOfDay(to))
	}
	if s := strings.TrimSpace(r.URL.Query().Get("search")); s != "" {
		q.Filter["trip_number"] = containsPattern(s)
	}
	return nil
}

// scopeTrips narrows a trip filter to what actor may see.
func scopeTrips(filter bson.M, actor models.Actor) {
	switch actor.Role {
	case models.RoleDriver:
		filter["driver"] = actor.ID
	case models.RoleFleetOwner:
		filter["vehicle_owner.type"] = models.OwnershipFleetOwner
		filter["vehicle_owner.owner"] = actor.ID
	case models.RoleClient:
		filter["clients.client"] = actor.ID
	}
}

func (h *TripHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	trip, err := h.loadTrip(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"trip": trip})
}

// Create books a vehicle for one or more clients. The vehicle must be
// available; it is marked booked in the same transaction.
func (h *TripHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createTripRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	vehicleID, err := db.ParseID(req.Vehicle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	vehicle, err := h.Vehicles.FindVehicleByID(r.Context(), vehicleID.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !vehicle.Bookable() {
		h.fail(w, r, models.ErrVehicleUnavailable)
		return
	}

	trip := models.Trip{
		Vehicle:       vehicle.ID,
		VehicleNumber: vehicle.RegistrationNumber,
		VehicleOwner:  vehicle.OwnerSnapshot(),
		ScheduledDate: req.ScheduledDate,
		Status:        models.TripBooked,
		Notes:         req.Notes,
		CreatedBy:     actor.ID,
	}

	driverID := vehicle.Driver
	if req.Driver != "" {
		id, err := db.ParseID(req.Driver)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		driverID = &id
	}
	var driver *models.User
	if driverID != nil {
		if driver, err = h.findParty(r, *driverID, models.RoleDriver); err != nil {
			h.fail(w, r, err)
			return
		}
		trip.Driver, trip.DriverName = &driver.ID, driver.Name
	}
	if trip.SelfOwned() && trip.Driver == nil {
		h.fail(w, r, models.ErrDriverRequired)
		return
	}

	for _, c := range req.Clients {
		tc, err := h.tripClient(r, actor, c)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if err := trip.AddClient(tc); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	seq, err := h.Counters.GetNext(r.Context(), "trip", db.CounterOptions{
		Prefix:  "TRP-" + h.now().Format("0601") + "-",
		Padding: 4,
		Reset:   models.ResetMonthly,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	trip.TripNumber = seq.Value

	err = h.Tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		busy, err := h.Trips.HasActiveTrip(ctx, vehicle.ID)
		if err != nil {
			return err
		}
		if busy {
			return models.ErrVehicleBusy
		}
		if err := h.Trips.InsertTrip(ctx, &trip); err != nil {
			return err
		}
		return h.Vehicles.SetVehicleStatus(ctx, vehicle.ID, models.VehicleBooked)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if driver != nil {
		h.Notifier.TripAssigned(r.Context(), driver, &trip)
	}
	h.emit(r, actor, activity.Event{
		Action:      "create_trip",
		Category:    activity.CategoryTrip,
		Description: "booked trip " + trip.TripNumber + " on " + trip.VehicleNumber,
		EntityType:  "trip",
		EntityID:    trip.ID.Hex(),
		Details:     map[string]interface{}{"clients": len(trip.Clients), "total": trip.TotalClientAmount},
	})
	respond(w, http.StatusCreated, map[string]interface{}{"trip": trip})
}

func (h *TripHandler) tripClient(r *http.Request, actor models.Actor, c tripClientRequest) (models.TripClient, error) {
	id, err := db.ParseID(c.Client)
	if err != nil {
		return models.TripClient{}, err
	}
	if actor.Role == models.RoleClient && id != actor.ID {
		return models.TripClient{}, errBookForOthers
	}
	client, err := h.findParty(r, id, models.RoleClient)
	if err != nil {
		return models.TripClient{}, err
	}
	name := client.Name
	if client.Company != "" {
		name = client.Company
	}
	return models.TripClient{
		Client:        client.ID,
		ClientName:    name,
		Origin:        strings.TrimSpace(c.Origin),
		Destination:   strings.TrimSpace(c.Destination),
		Goods:         c.Goods,
		Weight:        c.Weight,
		Rate:          c.Rate,
		TruckHireCost: c.TruckHireCost,
	}, nil
}

// Update edits a booked trip.
func (h *TripHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateTripRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	trip, err := h.loadTrip(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !trip.Editable() {
		h.fail(w, r, models.ErrTripNotEditable)
		return
	}
	if actor.Role == models.RoleClient {
		if err := checkClientEdit(trip, &req, actor.ID); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	if req.ScheduledDate != nil {
		trip.ScheduledDate = *req.ScheduledDate
	}
	if req.Notes != nil {
		trip.Notes = *req.Notes
	}
	if req.Driver != nil {
		if *req.Driver == "" {
			trip.Driver, trip.DriverName = nil, ""
		} else {
			id, err := db.ParseID(*req.Driver)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			driver, err := h.findParty(r, id, models.RoleDriver)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			trip.Driver, trip.DriverName = &driver.ID, driver.Name
		}
	}
	if trip.SelfOwned() && trip.Driver == nil {
		h.fail(w, r, models.ErrDriverRequired)
		return
	}
	if err := patchClients(trip, req.Clients); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.Trips.SaveTrip(r.Context(), trip); err != nil {
		h.fail(w, r, err)
		return
	}
	h.emit(r, actor, activity.Event{
		Action:      "update_trip",
		Category:    activity.CategoryTrip,
		Description: "updated trip " + trip.TripNumber,
		EntityType:  "trip",
		EntityID:    trip.ID.Hex(),
	})
	respond(w, http.StatusOK, map[string]interface{}{"trip": trip})
}

// checkClientEdit limits a client to the cargo details of its own rows.
// Rates are fixed at booking.
func checkClientEdit(trip *models.Trip, req *updateTripRequest, clientID primitive.ObjectID) error {
	if req.Driver != nil || req.ScheduledDate != nil {
		return errClientTripEdit
	}
	for _, p := range req.Clients {
		if p.Index >= len(trip.Clients) {
			return models.ErrClientIndex
		}
		if trip.Clients[p.Index].Client != clientID {
			return errEditOthers
		}
		if p.Rate != nil || p.TruckHireCost != nil {
			return errClientTripEdit
		}
	}
	return nil
}

func patchClients(trip *models.Trip, patches []clientPatch) error {
	for _, p := range patches {
		if p.Index >= len(trip.Clients) {
			return models.ErrClientIndex
		}
		c := &trip.Clients[p.Index]
		if p.Origin != nil {
			c.Origin = strings.TrimSpace(*p.Origin)
		}
		if p.Destination != nil {
			c.Destination = strings.TrimSpace(*p.Destination)
		}
		if p.Goods != nil {
			c.Goods = *p.Goods
		}
		if p.Weight != nil {
			c.Weight = *p.Weight
		}
		if p.Rate != nil {
			c.Rate = *p.Rate
		}
		if p.TruckHireCost != nil {
			c.TruckHireCost = *p.TruckHireCost
		}
	}
	trip.Recalculate()
	for _, c := range trip.Clients {
		if c.DueAmount < 0 {
			return models.ErrOverpayment
		}
	}
	return nil
}

// Delete removes a booked trip and frees its vehicle.
func (h *TripHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	trip, err := h.loadTrip(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !trip.Deletable() {
		h.fail(w, r, models.ErrTripNotDeletable)
		return
	}

	err = h.Tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := h.Trips.DeleteTrip(ctx, trip.ID.Hex()); err != nil {
			return err
		}
		return h.Vehicles.SetVehicleStatus(ctx, trip.Vehicle, models.VehicleAvailable)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "delete_trip",
		Category:    activity.CategoryTrip,
		Description: "deleted trip " + trip.TripNumber,
		EntityType:  "trip",
		EntityID:    trip.ID.Hex(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// ChangeStatus moves a trip along its lifecycle. Completing or cancelling
// frees the vehicle in the same transaction.
func (h *TripHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req statusRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	trip, err := h.loadTrip(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	from := trip.Status
	if err := trip.ChangeStatus(req.Status, actor, req.Note, h.now()); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.saveWithVehicle(r.Context(), trip, req.Status.ReleasesVehicle()); err != nil {
		h.fail(w, r, err)
		return
	}

	if trip.Status == models.TripCompleted {
		h.notifyCompleted(r.Context(), trip)
	}
	h.emit(r, actor, activity.Event{
		Action:      "change_trip_status",
		Category:    activity.CategoryTrip,
		Description: "trip " + trip.TripNumber + " " + string(from) + " -> " + string(trip.Status),
		EntityType:  "trip",
		EntityID:    trip.ID.Hex(),
		Details:     map[string]interface{}{"from": from, "to": trip.Status, "note": req.Note},
	})
	respond(w, http.StatusOK, map[string]interface{}{"trip": trip})
}

// loadTrip fetches the {id} trip. Trips the caller may not see are
// reported as missing.
func (h *TripHandler) loadTrip(r *http.Request, actor models.Actor) (*models.Trip, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	trip, err := h.Trips.FindTripByID(r.Context(), id.Hex())
	if err != nil {
		return nil, err
	}
	if !trip.VisibleTo(actor.ID, actor.Role) {
		return nil, db.ErrTripNotFound
	}
	return trip, nil
}

// saveWithVehicle stores trip and, when release is set, marks its vehicle
// available again.
func (h *TripHandler) saveWithVehicle(ctx context.Context, trip *models.Trip, release bool) error {
	if !release {
		return h.Trips.SaveTrip(ctx, trip)
	}
	return h.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := h.Trips.SaveTrip(ctx, trip); err != nil {
			return err
		}
		return h.Vehicles.SetVehicleStatus(ctx, trip.Vehicle, models.VehicleAvailable)
	})
}

// notifyCompleted mails every client of trip. Lookup failures are logged
// and skipped.
func (h *TripHandler) notifyCompleted(ctx context.Context, trip *models.Trip) {
	seen := make(map[primitive.ObjectID]bool, len(trip.Clients))
	var clients []models.User
	for _, c := range trip.Clients {
		if seen[c.Client] {
			continue
		}
		seen[c.Client] = true
		u, err := h.Users.FindUserByID(ctx, c.Client.Hex())
		if err != nil {
			h.Logger.WithError(err).WithField("client", c.Client.Hex()).Warn("failed to load trip client for notification")
			continue
		}
		clients = append(clients, *u)
	}
	if len(clients) > 0 {
		h.Notifier.TripCompleted(ctx, clients, trip)
	}
}
