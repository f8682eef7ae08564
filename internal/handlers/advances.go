package handlers

import (
	"net/http"
	"time"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var errAdvanceSettled = apperr.BadRequest("advance is already settled in a driver calculation")

// AdvanceHandler manages cash handed to drivers and fleet owners outside a
// trip ledger.
type AdvanceHandler struct {
	*Deps
}

func NewAdvanceHandler(d *Deps) *AdvanceHandler {
	return &AdvanceHandler{Deps: d}
}

type advanceRequest struct {
	Recipient     *string    `json:"recipient"`
	Amount        *float64   `json:"amount" validate:"omitempty,gt=0"`
	Reason        *string    `json:"reason" validate:"omitempty,max=200"`
	PaymentMethod *string    `json:"payment_method" validate:"omitempty,oneof=cash bank_transfer upi cheque"`
	Date          *time.Time `json:"date"`
	Notes         *string    `json:"notes" validate:"omitempty,max=1000"`
}

// List supports ?recipient=, ?settled=, ?from= and ?to=. Drivers and fleet
// owners only see their own advances.
func (h *AdvanceHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := listQuery(r, "date", "amount", "created_at")
	if err := queryID(r, &q, "recipient", "recipient"); err != nil {
		h.fail(w, r, err)
		return
	}
	switch r.URL.Query().Get("settled") {
	case "true":
		q.Filter["settled"] = true
	case "false":
		q.Filter["settled"] = false
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
		q.Filter["date"] = dateRange(from, endOfDay(to))
	}
	if actor.Role != models.RoleAdmin {
		q.Filter["recipient"] = actor.ID
	}

	advances, total, err := h.Advances.ListAdvances(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, advances, len(advances), total, q)
}

func (h *AdvanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	advance, err := h.load(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if actor.Role != models.RoleAdmin && advance.Recipient != actor.ID {
		h.fail(w, r, db.ErrAdvanceNotFound)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"advance": advance})
}

func (h *AdvanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req advanceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Recipient == nil || req.Amount == nil || req.Reason == nil {
		h.fail(w, r, errFieldsRequired("recipient", "amount", "reason"))
		return
	}

	advance := models.Advance{Date: h.now(), CreatedBy: actor.ID}
	if err := h.apply(r, &advance, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Advances.InsertAdvance(r.Context(), &advance); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "create_advance",
		Category:    activity.CategoryFinance,
		Description: "advance of " + formatAmount(advance.Amount) + " to " + advance.RecipientName,
		EntityType:  "advance",
		EntityID:    advance.ID.Hex(),
		Details:     map[string]interface{}{"reason": advance.Reason},
	})
	respond(w, http.StatusCreated, map[string]interface{}{"advance": advance})
}

// Update edits an open advance. Settled advances are frozen until their
// driver calculation is deleted.
func (h *AdvanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req advanceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	advance, err := h.load(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if advance.Settled {
		h.fail(w, r, errAdvanceSettled)
		return
	}
	if err := h.apply(r, advance, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Advances.UpdateAdvance(r.Context(), advance); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "update_advance",
		Category:    activity.CategoryFinance,
		Description: "updated advance to " + advance.RecipientName,
		EntityType:  "advance",
		EntityID:    advance.ID.Hex(),
	})
	respond(w, http.StatusOK, map[string]interface{}{"advance": advance})
}

func (h *AdvanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	advance, err := h.load(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if advance.Settled {
		h.fail(w, r, errAdvanceSettled)
		return
	}
	if err := h.Advances.DeleteAdvance(r.Context(), advance.ID.Hex()); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "delete_advance",
		Category:    activity.CategoryFinance,
		Description: "deleted advance of " + formatAmount(advance.Amount) + " to " + advance.RecipientName,
		EntityType:  "advance",
		EntityID:    advance.ID.Hex(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdvanceHandler) load(r *http.Request) (*models.Advance, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return h.Advances.FindAdvanceByID(r.Context(), id.Hex())
}

func (h *AdvanceHandler) apply(r *http.Request, a *models.Advance, req *advanceRequest) error {
	if req.Recipient != nil {
		id, err := db.ParseID(*req.Recipient)
		if err != nil {
			return err
		}
		if id != a.Recipient {
			u, err := h.findParty(r, id, models.RoleDriver, models.RoleFleetOwner)
			if err != nil {
				return err
			}
			a.Recipient, a.RecipientName, a.RecipientRole = u.ID, u.Name, u.Role
		}
	}
	if req.Amount != nil {
		a.Amount = *req.Amount
	}
	if req.Reason != nil {
		a.Reason = *req.Reason
	}
	if req.PaymentMethod != nil {
		a.PaymentMethod = *req.PaymentMethod
	}
	if req.Date != nil {
		a.Date = *req.Date
	}
	if req.Notes != nil {
		a.Notes = *req.Notes
	}
	return nil
}
