package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleFleetOwner Role = "fleet_owner"
	RoleDriver     Role = "driver"
	RoleClient     Role = "client"
)

// User represents a user in the system. Drivers, fleet owners and clients
// are all users; their trip ledgers are derived from trips, not stored here.
type User struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                string             `bson:"name" json:"name"`
	Email               string             `bson:"email" json:"email"`
	Phone               string             `bson:"phone,omitempty" json:"phone,omitempty"`
	PasswordHash        string             `bson:"password_hash" json:"-"`
	Role                Role               `bson:"role" json:"role"`
	Company             string             `bson:"company,omitempty" json:"company,omitempty"`
	Address             string             `bson:"address,omitempty" json:"address,omitempty"`
	LicenseNumber       string             `bson:"license_number,omitempty" json:"license_number,omitempty"`
	CommissionRate      float64            `bson:"commission_rate,omitempty" json:"commission_rate,omitempty"`
	IsActive            bool               `bson:"is_active" json:"is_active"`
	IsVerified          bool               `bson:"is_verified" json:"is_verified"`
	VerificationToken   string             `bson:"verification_token,omitempty" json:"-"`
	ResetPasswordToken  string             `bson:"reset_password_token,omitempty" json:"-"`
	ResetPasswordExpiry *time.Time         `bson:"reset_password_expiry,omitempty" json:"-"`
	LastLogin           *time.Time         `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
	Role     Role   `json:"role"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	User   User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	TokenID  string `json:"jti"`
	IssuedAt int64  `json:"iat"`
	// IssuedAtMs is iat in milliseconds; zero on tokens minted before it existed.
	IssuedAtMs int64 `json:"iat_ms,omitempty"`
	Exp        int64 `json:"exp"`
}

// Issued returns when the token was minted, to the millisecond when known.
func (c *Claims) Issued() time.Time {
	if c.IssuedAtMs > 0 {
		return time.UnixMilli(c.IssuedAtMs)
	}
	return time.Unix(c.IssuedAt, 0)
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleFleetOwner, RoleDriver, RoleClient:
		return true
	default:
		return false
	}
}

// SelfRegistrable reports whether a role may be chosen at public sign-up.
func SelfRegistrable(role Role) bool {
	return role == RoleClient || role == RoleFleetOwner
}

// Actions checked by HasPermission.
const (
	ActionManageUsers       = "manage_users"
	ActionManageVehicles    = "manage_vehicles"
	ActionViewVehicles      = "view_vehicles"
	ActionCreateTrip        = "create_trip"
	ActionUpdateTrip        = "update_trip"
	ActionViewTrips         = "view_trips"
	ActionManageLedger      = "manage_ledger"
	ActionUploadPOD         = "upload_pod"
	ActionVerifyPOD         = "verify_pod"
	ActionManagePayments    = "manage_payments"
	ActionViewPayments      = "view_payments"
	ActionManageMaintenance = "manage_maintenance"
	ActionManageExpenses    = "manage_expenses"
	ActionViewReports       = "view_reports"
	ActionManageMasterData  = "manage_master_data"
	ActionViewMasterData    = "view_master_data"
)

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	return RoleAllows(u.Role, action)
}

// RoleAllows checks if a role has permission for a specific action
func RoleAllows(role Role, action string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleFleetOwner:
		return action == ActionViewVehicles || action == ActionViewTrips ||
			action == ActionUpdateTrip || action == ActionUploadPOD ||
			action == ActionViewPayments || action == ActionViewMasterData
	case RoleDriver:
		return action == ActionViewTrips || action == ActionUpdateTrip ||
			action == ActionUploadPOD || action == ActionViewMasterData
	case RoleClient:
		return action == ActionCreateTrip || action == ActionViewTrips ||
			action == ActionUpdateTrip || action == ActionViewPayments ||
			action == ActionViewMasterData
	default:
		return false
	}
}
