package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var (
	errInvalidPaymentType = apperr.BadRequest("invalid payment type")
	errClientIndexNeeded  = apperr.BadRequest("client_index is required for client receipts")
	errPartyNeeded        = apperr.BadRequest("party is required for payments without a trip")
	errOwnerPayoutSelf    = apperr.BadRequest("owner payouts only apply to fleet owner trips")
	errDriverPayoutFleet  = apperr.BadRequest("driver payouts only apply to self-owned trips")
)

// PaymentHandler records money moving between the company and its
// clients, fleet owners and drivers.
type PaymentHandler struct {
	*Deps
}

func NewPaymentHandler(d *Deps) *PaymentHandler {
	return &PaymentHandler{Deps: d}
}

type createPaymentRequest struct {
	Type        models.PaymentType `json:"type" validate:"required"`
	Trip        string             `json:"trip"`
	ClientIndex *int               `json:"client_index" validate:"omitempty,gte=0"`
	Party       string             `json:"party"`
	Amount      float64            `json:"amount" validate:"gt=0"`
	Method      string             `json:"method" validate:"required,oneof=cash bank_transfer upi cheque"`
	Reference   string             `json:"reference" validate:"max=100"`
	PaidBy      string             `json:"paid_by" validate:"max=100"`
	Purpose     string             `json:"purpose" validate:"max=200"`
	Notes       string             `json:"notes" validate:"max=1000"`
	PaidAt      time.Time          `json:"paid_at"`
}

// List shows every payment to admins and a party's own payments to
// clients and fleet owners. Filters: ?type=, ?trip=, ?party=, ?from=, ?to=.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := listQuery(r, "paid_at", "amount", "payment_number", "created_at")
	if t := r.URL.Query().Get("type"); t != "" {
		q.Filter["type"] = t
	}
	if err := queryID(r, &q, "trip", "trip"); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := queryID(r, &q, "party", "party"); err != nil {
		h.fail(w, r, err)
		return
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
		q.Filter["paid_at"] = dateRange(from, endOfDay(to))
	}
	if actor.Role != models.RoleAdmin {
		q.Filter["party"] = actor.ID
	}

	payments, total, err := h.Payments.ListPayments(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, payments, len(payments), total, q)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	payment, err := h.Payments.FindPaymentByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if actor.Role != models.RoleAdmin && payment.Party != actor.ID {
		h.fail(w, r, db.ErrPaymentNotFound)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"payment": payment})
}

// Create records a payment. A payment against a trip also adds a linked
// ledger entry to that trip, atomically: client receipts become client
// advances, owner and driver payouts become owner advances.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createPaymentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if !req.Type.IsValid() {
		h.fail(w, r, errInvalidPaymentType)
		return
	}

	now := h.now()
	payment := models.Payment{
		Type:      req.Type,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
		PaidBy:    req.PaidBy,
		Purpose:   req.Purpose,
		Notes:     req.Notes,
		PaidAt:    req.PaidAt,
		CreatedBy: actor.ID,
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}

	var trip *models.Trip
	if req.Trip != "" {
		tripID, err := db.ParseID(req.Trip)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if trip, err = h.Trips.FindTripByID(r.Context(), tripID.Hex()); err != nil {
			h.fail(w, r, err)
			return
		}
		if err := h.bindTrip(&payment, trip, req.ClientIndex); err != nil {
			h.fail(w, r, err)
			return
		}
	} else {
		if req.Party == "" {
			h.fail(w, r, errPartyNeeded)
			return
		}
		partyID, err := db.ParseID(req.Party)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		party, err := h.findParty(r, partyID, partyRole(req.Type))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		payment.Party, payment.PartyName = party.ID, ownerLabel(party)
	}

	seq, err := h.Counters.GetNext(r.Context(), "payment", db.CounterOptions{
		Prefix:  "PAY-" + now.Format("2006") + "-",
		Padding: 5,
		Reset:   models.ResetYearly,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payment.PaymentNumber = seq.Value

	if trip != nil {
		payment.ID = primitive.NewObjectID()
		entry := models.NewLedgerEntry(payment.Amount, payment.LedgerReason(), payment.PaidAt, actor, now)
		entry.PaymentMethod = payment.Method
		entry.Description = payment.Notes
		entry.Payment = &payment.ID
		payment.LedgerEntry = &entry.ID
		if payment.Type == models.PaymentClientReceipt {
			err = trip.AddClientAdvance(*payment.ClientIndex, entry)
		} else {
			err = trip.AddOwnerAdvance(entry)
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}

	err = h.Tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if trip != nil {
			if err := h.Trips.SaveTrip(ctx, trip); err != nil {
				return err
			}
		}
		return h.Payments.InsertPayment(ctx, &payment)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "create_payment",
		Category:    activity.CategoryPayment,
		Description: string(payment.Type) + " " + payment.PaymentNumber + " of " + formatAmount(payment.Amount) + " for " + payment.PartyName,
		EntityType:  "payment",
		EntityID:    payment.ID.Hex(),
		Details:     map[string]interface{}{"trip": payment.TripNumber, "method": payment.Method},
	})
	respond(w, http.StatusCreated, map[string]interface{}{"payment": payment})
}

// bindTrip fills the trip and party fields of p from trip.
func (h *PaymentHandler) bindTrip(p *models.Payment, trip *models.Trip, clientIndex *int) error {
	p.Trip, p.TripNumber = &trip.ID, trip.TripNumber
	switch p.Type {
	case models.PaymentClientReceipt:
		if clientIndex == nil {
			return errClientIndexNeeded
		}
		if *clientIndex >= len(trip.Clients) {
			return models.ErrClientIndex
		}
		c := trip.Clients[*clientIndex]
		p.ClientIndex = clientIndex
		p.Party, p.PartyName = c.Client, c.ClientName
	case models.PaymentOwnerPayout:
		if trip.SelfOwned() {
			return errOwnerPayoutSelf
		}
		p.Party, p.PartyName = trip.VehicleOwner.Owner, trip.VehicleOwner.Name
	case models.PaymentDriverPayout:
		if !trip.SelfOwned() {
			return errDriverPayoutFleet
		}
		if trip.Driver == nil {
			return models.ErrDriverRequired
		}
		p.Party, p.PartyName = *trip.Driver, trip.DriverName
	}
	return nil
}

func partyRole(t models.PaymentType) models.Role {
	switch t {
	case models.PaymentOwnerPayout:
		return models.RoleFleetOwner
	case models.PaymentDriverPayout:
		return models.RoleDriver
	}
	return models.RoleClient
}

// clientHolding returns the index of the client whose advances contain
// entry, or -1. Indexes shift when clients are removed, so the index stored
// on the payment is not trusted.
func clientHolding(trip *models.Trip, entry primitive.ObjectID) int {
	for i, c := range trip.Clients {
		for _, e := range c.Advances {
			if e.ID == entry {
				return i
			}
		}
	}
	return -1
}

// Delete removes a payment and the ledger entry it created, atomically.
// An entry already removed from the trip does not block the delete.
func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	payment, err := h.Payments.FindPaymentByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var trip *models.Trip
	if payment.Trip != nil && payment.LedgerEntry != nil {
		trip, err = h.Trips.FindTripByID(r.Context(), payment.Trip.Hex())
		switch {
		case errors.Is(err, db.ErrTripNotFound):
			trip = nil
		case err != nil:
			h.fail(w, r, err)
			return
		default:
			if payment.Type == models.PaymentClientReceipt {
				_, err = trip.RemoveClientAdvance(clientHolding(trip, *payment.LedgerEntry), *payment.LedgerEntry)
			} else {
				_, err = trip.RemoveOwnerAdvance(*payment.LedgerEntry)
			}
			if errors.Is(err, models.ErrEntryNotFound) || errors.Is(err, models.ErrClientIndex) {
				trip = nil
			} else if err != nil {
				h.fail(w, r, err)
				return
			}
		}
	}

	err = h.Tx.WithTransaction(r.Context(), func(ctx context.Context) error {
		if trip != nil {
			if err := h.Trips.SaveTrip(ctx, trip); err != nil {
				return err
			}
		}
		return h.Payments.DeletePayment(ctx, payment.ID.Hex())
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "delete_payment",
		Category:    activity.CategoryPayment,
		Description: "deleted payment " + payment.PaymentNumber,
		EntityType:  "payment",
		EntityID:    payment.ID.Hex(),
	})
	w.WriteHeader(http.StatusNoContent)
}
