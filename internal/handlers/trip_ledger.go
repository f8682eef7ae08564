package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var errLinkedEntry = apperr.BadRequest("this entry was recorded by a payment; delete the payment instead")

type entryRequest struct {
	Amount        float64   `json:"amount" validate:"gt=0"`
	Reason        string    `json:"reason" validate:"required,max=200"`
	Description   string    `json:"description" validate:"max=1000"`
	PaymentMethod string    `json:"payment_method" validate:"omitempty,oneof=cash bank_transfer upi cheque"`
	Date          time.Time `json:"date"`
}

func (e entryRequest) entry(actor models.Actor, now time.Time) models.LedgerEntry {
	entry := models.NewLedgerEntry(e.Amount, e.Reason, e.Date, actor, now)
	entry.Description = e.Description
	entry.PaymentMethod = e.PaymentMethod
	return entry
}

type argestmentRequest struct {
	Amount *float64 `json:"amount" validate:"required"`
}

type clientPODRequest struct {
	Status models.PODStatus `json:"status" validate:"required"`
}

// tripMutation edits a loaded trip in memory and names the change for the
// activity log.
type tripMutation func(trip *models.Trip, actor models.Actor, now time.Time) (description string, err error)

// mutate loads the {id} trip, applies fn, saves the trip and answers with it.
func (h *TripHandler) mutate(w http.ResponseWriter, r *http.Request, category, action string, fn tripMutation) {
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
	desc, err := fn(trip, actor, h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Trips.SaveTrip(r.Context(), trip); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      action,
		Category:    category,
		Description: "trip " + trip.TripNumber + ": " + desc,
		EntityType:  "trip",
		EntityID:    trip.ID.Hex(),
	})
	respond(w, http.StatusOK, map[string]interface{}{"trip": trip})
}

func (h *TripHandler) AddClient(w http.ResponseWriter, r *http.Request) {
	var req tripClientRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, activity.CategoryTrip, "add_trip_client", func(trip *models.Trip, actor models.Actor, _ time.Time) (string, error) {
		tc, err := h.tripClient(r, actor, req)
		if err != nil {
			return "", err
		}
		return "added client " + tc.ClientName, trip.AddClient(tc)
	})
}

func (h *TripHandler) RemoveClient(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, activity.CategoryTrip, "remove_trip_client", func(trip *models.Trip, _ models.Actor, _ time.Time) (string, error) {
		if index >= len(trip.Clients) {
			return "", models.ErrClientIndex
		}
		name := trip.Clients[index].ClientName
		return "removed client " + name, trip.RemoveClient(index)
	})
}

func (h *TripHandler) AddClientAdvance(w http.ResponseWriter, r *http.Request) {
	index, req, ok := h.indexedEntry(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, activity.CategoryFinance, "add_client_advance", func(trip *models.Trip, actor models.Actor, now time.Time) (string, error) {
		return "client advance " + formatAmount(req.Amount), trip.AddClientAdvance(index, req.entry(actor, now))
	})
}

func (h *TripHandler) RemoveClientAdvance(w http.ResponseWriter, r *http.Request) {
	index, entryID, ok := h.indexedEntryID(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, activity.CategoryFinance, "remove_client_advance", func(trip *models.Trip, _ models.Actor, _ time.Time) (string, error) {
		if err := refuseLinked(trip.Clients, index, entryID); err != nil {
			return "", err
		}
		e, err := trip.RemoveClientAdvance(index, entryID)
		return "removed client advance " + formatAmount(e.Amount), err
	})
}

func (h *TripHandler) AddClientExpense(w http.ResponseWriter, r *http.Request) {
	index, req, ok := h.indexedEntry(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, activity.CategoryFinance, "add_client_expense", func(trip *models.Trip, actor models.Actor, now time.Time) (string, error) {
		return "client expense " + formatAmount(req.Amount), trip.AddClientExpense(index, req.entry(actor, now))
	})
}

func (h *TripHandler) RemoveClientExpense(w http.ResponseWriter, r *http.Request) {
	index, entryID, ok := h.indexedEntryID(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, activity.CategoryFinance, "remove_client_expense", func(trip *models.Trip, _ models.Actor, _ time.Time) (string, error) {
		e, err := trip.RemoveClientExpense(index, entryID)
		return "removed client expense " + formatAmount(e.Amount), err
	})
}

// SetArgestment sets the signed adjustment on one client's total.
func (h *TripHandler) SetArgestment(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req argestmentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, activity.CategoryFinance, "set_argestment", func(trip *models.Trip, _ models.Actor, _ time.Time) (string, error) {
		return "argestment " + formatAmount(*req.Amount), trip.SetArgestment(index, *req.Amount)
	})
}

// SetClientPOD moves one client's delivery paperwork forward.
func (h *TripHandler) SetClientPOD(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req clientPODRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if !req.Status.IsValid() {
		h.fail(w, r, apperr.BadRequest("invalid POD status"))
		return
	}
	h.mutate(w, r, activity.CategoryFinance, "set_client_pod", func(trip *models.Trip, _ models.Actor, now time.Time) (string, error) {
		return "client POD " + string(req.Status), trip.AdvanceClientPOD(index, req.Status, now)
	})
}

func (h *TripHandler) AddOwnerAdvance(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, activity.CategoryFinance, "add_owner_advance", func(trip *models.Trip, actor models.Actor, now time.Time) (string, error) {
		return "owner advance " + formatAmount(req.Amount), trip.AddOwnerAdvance(req.entry(actor, now))
	})
}

func (h *TripHandler) RemoveOwnerAdvance(w http.ResponseWriter, r *http.Request) {
	entryID, err := db.ParseID(chi.URLParam(r, "entryID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, activity.CategoryFinance, "remove_owner_advance", func(trip *models.Trip, _ models.Actor, _ time.Time) (string, error) {
		for _, e := range append(append([]models.LedgerEntry{}, trip.FleetAdvances...), trip.SelfAdvances...) {
			if e.ID == entryID && e.Payment != nil {
				return "", errLinkedEntry
			}
		}
		e, err := trip.RemoveOwnerAdvance(entryID)
		return "removed owner advance " + formatAmount(e.Amount), err
	})
}

func (h *TripHandler) AddOwnerExpense(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, activity.CategoryFinance, "add_owner_expense", func(trip *models.Trip, actor models.Actor, now time.Time) (string, error) {
		return "owner expense " + formatAmount(req.Amount), trip.AddOwnerExpense(req.entry(actor, now))
	})
}

func (h *TripHandler) RemoveOwnerExpense(w http.ResponseWriter, r *http.Request) {
	entryID, err := db.ParseID(chi.URLParam(r, "entryID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, activity.CategoryFinance, "remove_owner_expense", func(trip *models.Trip, _ models.Actor, _ time.Time) (string, error) {
		e, err := trip.RemoveOwnerExpense(entryID)
		return "removed owner expense " + formatAmount(e.Amount), err
	})
}

func (h *TripHandler) indexedEntry(w http.ResponseWriter, r *http.Request) (int, entryRequest, bool) {
	var req entryRequest
	index, err := pathIndex(r)
	if err == nil {
		err = h.decode(r, &req)
	}
	if err != nil {
		h.fail(w, r, err)
		return 0, req, false
	}
	return index, req, true
}

func (h *TripHandler) indexedEntryID(w http.ResponseWriter, r *http.Request) (int, primitive.ObjectID, bool) {
	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return 0, primitive.NilObjectID, false
	}
	entryID, err := db.ParseID(chi.URLParam(r, "entryID"))
	if err != nil {
		h.fail(w, r, err)
		return 0, primitive.NilObjectID, false
	}
	return index, entryID, true
}

// refuseLinked rejects removing a client advance created by a payment.
func refuseLinked(clients []models.TripClient, index int, entryID primitive.ObjectID) error {
	if index < 0 || index >= len(clients) {
		return models.ErrClientIndex
	}
	for _, e := range clients[index].Advances {
		if e.ID == entryID && e.Payment != nil {
			return errLinkedEntry
		}
	}
	return nil
}
