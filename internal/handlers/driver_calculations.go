package handlers

import (
	"context"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var (
	errPeriod        = apperr.BadRequest("from must not be after to")
	errPeriodOverlap = apperr.Conflict("a calculation already covers part of this period for the driver")
)

// settledStatuses are the trip states a driver calculation counts.
var settledStatuses = []models.TripStatus{models.TripCompleted, models.TripBilled, models.TripPaid}

// DriverCalculationHandler settles a driver's cash over a period.
type DriverCalculationHandler struct {
	*Deps
}

func NewDriverCalculationHandler(d *Deps) *DriverCalculationHandler {
	return &DriverCalculationHandler{Deps: d}
}

type driverCalculationRequest struct {
	Driver     string    `json:"driver" validate:"required"`
	From       time.Time `json:"from" validate:"required"`
	To         time.Time `json:"to" validate:"required"`
	Salary     float64   `json:"salary" validate:"gte=0"`
	Allowances float64   `json:"allowances" validate:"gte=0"`
	Deductions float64   `json:"deductions" validate:"gte=0"`
	Notes      string    `json:"notes" validate:"max=1000"`
}

// List shows every calculation to admins and a driver's own to drivers.
func (h *DriverCalculationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := listQuery(r, "from", "to", "net_payable", "created_at")
	if err := queryID(r, &q, "driver", "driver"); err != nil {
		h.fail(w, r, err)
		return
	}
	if actor.Role != models.RoleAdmin {
		q.Filter["driver"] = actor.ID
	}

	calcs, total, err := h.DriverCalculations.ListDriverCalculations(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, calcs, len(calcs), total, q)
}

func (h *DriverCalculationHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	calc, err := h.DriverCalculations.FindDriverCalculationByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if actor.Role != models.RoleAdmin && calc.Driver != actor.ID {
		h.fail(w, r, db.ErrDriverCalculationNotFound)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"calculation": calc})
}

// Create settles the driver's self-owned trips finished in the period and
// their open stand-alone advances. The advances are marked settled in the
// same transaction.
func (h *DriverCalculationHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req driverCalculationRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	to := *endOfDay(&req.To)
	if req.From.After(to) {
		h.fail(w, r, errPeriod)
		return
	}
	driverID, err := db.ParseID(req.Driver)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	driver, err := h.findParty(r, driverID, models.RoleDriver)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.checkOverlap(r.Context(), driver.ID, req.From, to); err != nil {
		h.fail(w, r, err)
		return
	}

	trips, err := h.Trips.FindTrips(r.Context(), db.TripQuery{
		Driver:   &driver.ID,
		SelfOnly: true,
		From:     &req.From,
		To:       &to,
		Statuses: settledStatuses,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	advances, err := h.Advances.FindUnsettledAdvances(r.Context(), driver.ID, req.From, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	calc := models.DriverCalculation{
		ID:         primitive.NewObjectID(),
		Driver:     driver.ID,
		DriverName: driver.Name,
		From:       req.From,
		To:         to,
		Salary:     req.Salary,
		Allowances: req.Allowances,
		Deductions: req.Deductions,
		Notes:      req.Notes,
		CreatedBy:  actor.ID,
	}
	calc.Settle(trips, advances)

	err = h.Tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := h.DriverCalculations.InsertDriverCalculation(ctx, &calc); err != nil {
			return err
		}
		return h.Advances.MarkSettled(ctx, calc.Advances, calc.ID)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "create_driver_calculation",
		Category:    activity.CategoryFinance,
		Description: "settled " + driver.Name + ": net payable " + formatAmount(calc.NetPayable),
		EntityType:  "driver_calculation",
		EntityID:    calc.ID.Hex(),
		Details: map[string]interface{}{
			"trips":          len(calc.Trips),
			"advances":       len(calc.Advances),
			"driver_balance": calc.DriverBalance,
		},
	})
	respond(w, http.StatusCreated, map[string]interface{}{"calculation": calc})
}

// Delete removes a calculation and reopens the advances it settled.
func (h *DriverCalculationHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	calc, err := h.DriverCalculations.FindDriverCalculationByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	err = h.Tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := h.Advances.ReleaseSettled(ctx, calc.ID); err != nil {
			return err
		}
		return h.DriverCalculations.DeleteDriverCalculation(ctx, calc.ID.Hex())
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "delete_driver_calculation",
		Category:    activity.CategoryFinance,
		Description: "deleted settlement for " + calc.DriverName,
		EntityType:  "driver_calculation",
		EntityID:    calc.ID.Hex(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// checkOverlap refuses a period that intersects an existing calculation
// for the same driver, so no trip is settled twice.
func (h *DriverCalculationHandler) checkOverlap(ctx context.Context, driver primitive.ObjectID, from, to time.Time) error {
	q := db.ListQuery{
		Filter: bson.M{
			"driver": driver,
			"from":   bson.M{"$lte": to},
			"to":     bson.M{"$gte": from},
		},
		Page:  1,
		Limit: 1,
	}
	_, total, err := h.DriverCalculations.ListDriverCalculations(ctx, q)
	if err != nil {
		return err
	}
	if total > 0 {
		return errPeriodOverlap
	}
	return nil
}
