package handlers

import (
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/models"
	"github.com/ukydev/fleet-backoffice/internal/storage"
)

// ExpenseHandler manages office and vehicle costs that sit outside any
// trip ledger.
type ExpenseHandler struct {
	*Deps
}

func NewExpenseHandler(d *Deps) *ExpenseHandler {
	return &ExpenseHandler{Deps: d}
}

type expenseRequest struct {
	Category      *string    `json:"category" validate:"omitempty,oneof=fuel maintenance insurance tolls salary office other"`
	Description   *string    `json:"description" validate:"omitempty,max=500"`
	Amount        *float64   `json:"amount" validate:"omitempty,gt=0"`
	Date          *time.Time `json:"date"`
	Vehicle       *string    `json:"vehicle"`
	Trip          *string    `json:"trip"`
	Vendor        *string    `json:"vendor" validate:"omitempty,max=200"`
	PaymentMethod *string    `json:"payment_method" validate:"omitempty,oneof=cash bank_transfer upi cheque"`
	PaidBy        *string    `json:"paid_by" validate:"omitempty,max=100"`
	Notes         *string    `json:"notes" validate:"omitempty,max=1000"`
}

// List supports ?category=, ?vehicle=, ?trip=, ?from= and ?to= on the
// expense date.
func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r, "date", "amount", "created_at")
	if c := r.URL.Query().Get("category"); c != "" {
		q.Filter["category"] = c
	}
	if err := queryID(r, &q, "vehicle", "vehicle"); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := queryID(r, &q, "trip", "trip"); err != nil {
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
		q.Filter["date"] = dateRange(from, endOfDay(to))
	}

	expenses, total, err := h.Expenses.ListExpenses(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, expenses, len(expenses), total, q)
}

func (h *ExpenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	expense, err := h.load(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"expense": expense})
}

func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req expenseRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Category == nil || req.Amount == nil || req.PaymentMethod == nil {
		h.fail(w, r, errFieldsRequired("category", "amount", "payment_method"))
		return
	}

	expense := models.Expense{Date: h.now(), CreatedBy: actor.ID}
	if err := h.apply(r, &expense, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Expenses.InsertExpense(r.Context(), &expense); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "create_expense",
		Category:    activity.CategoryFinance,
		Description: expense.Category + " expense of " + formatAmount(expense.Amount),
		EntityType:  "expense",
		EntityID:    expense.ID.Hex(),
	})
	respond(w, http.StatusCreated, map[string]interface{}{"expense": expense})
}

func (h *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req expenseRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	expense, err := h.load(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.apply(r, expense, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Expenses.UpdateExpense(r.Context(), expense); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "update_expense",
		Category:    activity.CategoryFinance,
		Description: "updated " + expense.Category + " expense",
		EntityType:  "expense",
		EntityID:    expense.ID.Hex(),
	})
	respond(w, http.StatusOK, map[string]interface{}{"expense": expense})
}

// Delete removes the expense and its stored receipt.
func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	expense, err := h.load(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Expenses.DeleteExpense(r.Context(), expense.ID.Hex()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.discard(r.Context(), expense.ReceiptKey)

	h.emit(r, actor, activity.Event{
		Action:      "delete_expense",
		Category:    activity.CategoryFinance,
		Description: "deleted " + expense.Category + " expense of " + formatAmount(expense.Amount),
		EntityType:  "expense",
		EntityID:    expense.ID.Hex(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// UploadReceipt stores a bill or receipt scan against the expense,
// replacing any earlier one.
func (h *ExpenseHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	expense, err := h.load(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	file, err := h.readUpload(w, r, "receipt")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	key := storage.NewKey("receipts/"+expense.ID.Hex(), file.ContentType, h.now())
	url, err := h.put(r.Context(), key, file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	prev := expense.ReceiptKey
	expense.ReceiptURL, expense.ReceiptKey = url, key
	if err := h.Expenses.UpdateExpense(r.Context(), expense); err != nil {
		h.discard(r.Context(), key)
		h.fail(w, r, err)
		return
	}
	h.discard(r.Context(), prev)

	h.emit(r, actor, activity.Event{
		Action:      "upload_receipt",
		Category:    activity.CategoryFinance,
		Description: "uploaded receipt for " + expense.Category + " expense",
		EntityType:  "expense",
		EntityID:    expense.ID.Hex(),
		Details:     map[string]interface{}{"file": file.Name, "size": len(file.Data)},
	})
	respond(w, http.StatusOK, map[string]interface{}{"expense": expense})
}

func (h *ExpenseHandler) load(r *http.Request) (*models.Expense, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return h.Expenses.FindExpenseByID(r.Context(), id.Hex())
}

func (h *ExpenseHandler) apply(r *http.Request, e *models.Expense, req *expenseRequest) error {
	if req.Category != nil {
		e.Category = *req.Category
	}
	if req.Description != nil {
		e.Description = *req.Description
	}
	if req.Amount != nil {
		e.Amount = *req.Amount
	}
	if req.Date != nil {
		e.Date = *req.Date
	}
	if req.Vendor != nil {
		e.Vendor = *req.Vendor
	}
	if req.PaymentMethod != nil {
		e.PaymentMethod = *req.PaymentMethod
	}
	if req.PaidBy != nil {
		e.PaidBy = *req.PaidBy
	}
	if req.Notes != nil {
		e.Notes = *req.Notes
	}
	if req.Vehicle != nil {
		id, err := optionalRef(*req.Vehicle, func(id string) error {
			_, err := h.Vehicles.FindVehicleByID(r.Context(), id)
			return err
		})
		if err != nil {
			return err
		}
		e.Vehicle = id
	}
	if req.Trip != nil {
		id, err := optionalRef(*req.Trip, func(id string) error {
			_, err := h.Trips.FindTripByID(r.Context(), id)
			return err
		})
		if err != nil {
			return err
		}
		e.Trip = id
	}
	return nil
}

// optionalRef parses a reference that may be cleared with "". exists
// confirms the referenced document is there.
func optionalRef(raw string, exists func(id string) error) (*primitive.ObjectID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := db.ParseID(raw)
	if err != nil {
		return nil, err
	}
	if err := exists(id.Hex()); err != nil {
		return nil, err
	}
	return &id, nil
}
