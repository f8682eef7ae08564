package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/middleware"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var (
	errInvalidRole    = apperr.BadRequest("invalid role")
	errDeleteSelf     = apperr.BadRequest("you cannot delete your own account")
	errLedgerRole     = apperr.BadRequest("ledgers exist only for drivers and fleet owners")
	errDeactivateSelf = apperr.BadRequest("you cannot deactivate your own account")
)

// UserHandler serves admin user management.
type UserHandler struct {
	*Deps
}

func NewUserHandler(d *Deps) *UserHandler {
	return &UserHandler{Deps: d}
}

type createUserRequest struct {
	Name           string      `json:"name" validate:"required,min=2,max=100"`
	Email          string      `json:"email" validate:"required,email"`
	Password       string      `json:"password" validate:"required,min=8"`
	Role           models.Role `json:"role" validate:"required"`
	Phone          string      `json:"phone"`
	Company        string      `json:"company"`
	Address        string      `json:"address"`
	LicenseNumber  string      `json:"license_number"`
	CommissionRate float64     `json:"commission_rate" validate:"gte=0,lte=100"`
}

type updateUserRequest struct {
	Name           *string      `json:"name" validate:"omitempty,min=2,max=100"`
	Email          *string      `json:"email" validate:"omitempty,email"`
	Role           *models.Role `json:"role"`
	Phone          *string      `json:"phone"`
	Company        *string      `json:"company"`
	Address        *string      `json:"address"`
	LicenseNumber  *string      `json:"license_number"`
	CommissionRate *float64     `json:"commission_rate" validate:"omitempty,gte=0,lte=100"`
	IsActive       *bool        `json:"is_active"`
}

// List supports ?role=, ?active= and ?search= on name, email and company.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r, "name", "email", "role", "created_at", "last_login")
	if role := models.Role(r.URL.Query().Get("role")); role != "" {
		if !models.IsValidRole(role) {
			h.fail(w, r, errInvalidRole)
			return
		}
		q.Filter["role"] = role
	}
	switch r.URL.Query().Get("active") {
	case "true":
		q.Filter["is_active"] = true
	case "false":
		q.Filter["is_active"] = false
	}
	if s := strings.TrimSpace(r.URL.Query().Get("search")); s != "" {
		pattern := containsPattern(s)
		q.Filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"email": pattern},
			bson.M{"company": pattern},
		}
	}

	users, total, err := h.Users.ListUsers(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, users, len(users), total, q)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.Users.FindUserByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"user": user})
}

// Create adds a user of any role. Admin-created accounts start verified.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createUserRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if !models.IsValidRole(req.Role) {
		h.fail(w, r, errInvalidRole)
		return
	}
	hash, err := h.Auth.HashPassword(req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	user := models.User{
		Name:           strings.TrimSpace(req.Name),
		Email:          req.Email,
		PasswordHash:   hash,
		Role:           req.Role,
		Phone:          req.Phone,
		Company:        req.Company,
		Address:        req.Address,
		LicenseNumber:  req.LicenseNumber,
		CommissionRate: req.CommissionRate,
		IsVerified:     true,
	}
	if err := h.Users.InsertUser(r.Context(), &user); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "create_user",
		Category:    activity.CategoryUser,
		Description: "created " + string(user.Role) + " " + user.Name,
		EntityType:  "user",
		EntityID:    user.ID.Hex(),
	})
	respond(w, http.StatusCreated, map[string]interface{}{"user": user})
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req updateUserRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.Users.FindUserByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	deactivated := false
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Role != nil {
		if !models.IsValidRole(*req.Role) {
			h.fail(w, r, errInvalidRole)
			return
		}
		user.Role = *req.Role
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Company != nil {
		user.Company = *req.Company
	}
	if req.Address != nil {
		user.Address = *req.Address
	}
	if req.LicenseNumber != nil {
		user.LicenseNumber = *req.LicenseNumber
	}
	if req.CommissionRate != nil {
		user.CommissionRate = *req.CommissionRate
	}
	if req.IsActive != nil {
		if !*req.IsActive && user.ID == actor.ID {
			h.fail(w, r, errDeactivateSelf)
			return
		}
		deactivated = user.IsActive && !*req.IsActive
		user.IsActive = *req.IsActive
	}

	if err := h.Users.UpdateUser(r.Context(), user); err != nil {
		h.fail(w, r, err)
		return
	}
	if deactivated {
		if err := h.Denylist.RevokeUser(r.Context(), user.ID.Hex(), h.Auth.TokenTTL()); err != nil {
			h.Logger.WithError(err).WithField("user_id", user.ID.Hex()).Warn("failed to revoke sessions of deactivated user")
		}
	}

	h.emit(r, actor, activity.Event{
		Action:      "update_user",
		Category:    activity.CategoryUser,
		Description: "updated user " + user.Name,
		EntityType:  "user",
		EntityID:    user.ID.Hex(),
	})
	respond(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if id == actor.ID {
		h.fail(w, r, errDeleteSelf)
		return
	}
	if err := h.Users.DeleteUser(r.Context(), id.Hex()); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Denylist.RevokeUser(r.Context(), id.Hex(), h.Auth.TokenTTL()); err != nil {
		h.Logger.WithError(err).WithField("user_id", id.Hex()).Warn("failed to revoke sessions of deleted user")
	}

	h.emit(r, actor, activity.Event{
		Action:      "delete_user",
		Category:    activity.CategoryUser,
		Description: "deleted user",
		EntityType:  "user",
		EntityID:    id.Hex(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// Ledger derives a driver's or fleet owner's advance and expense ledger
// from their trips. Admins may view anyone; others only themselves.
func (h *UserHandler) Ledger(w http.ResponseWriter, r *http.Request) {
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
	if actor.Role != models.RoleAdmin && actor.ID != id {
		h.fail(w, r, middleware.ErrForbidden)
		return
	}
	user, err := h.Users.FindUserByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	tq := db.TripQuery{}
	switch user.Role {
	case models.RoleDriver:
		tq.Driver, tq.SelfOnly = &user.ID, true
	case models.RoleFleetOwner:
		tq.Owner = &user.ID
	default:
		h.fail(w, r, errLedgerRole)
		return
	}
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
		"user":   user,
		"ledger": models.BuildLedger(trips),
	})
}

// containsPattern is a case-insensitive literal match on s.
func containsPattern(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}
