package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentType says which side of the ledger a payment settles.
type PaymentType string

const (
	PaymentClientReceipt PaymentType = "client_receipt"
	PaymentOwnerPayout   PaymentType = "owner_payout"
	PaymentDriverPayout  PaymentType = "driver_payout"
)

// IsValid checks if the payment type is known
func (p PaymentType) IsValid() bool {
	switch p {
	case PaymentClientReceipt, PaymentOwnerPayout, PaymentDriverPayout:
		return true
	}
	return false
}

// Payment is a recorded money movement. Payments against a trip create a
// linked ledger entry on that trip; LedgerEntry holds its ID.
type Payment struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	PaymentNumber string              `bson:"payment_number" json:"payment_number"`
	Type          PaymentType         `bson:"type" json:"type"`
	Trip          *primitive.ObjectID `bson:"trip,omitempty" json:"trip,omitempty"`
	TripNumber    string              `bson:"trip_number,omitempty" json:"trip_number,omitempty"`
	ClientIndex   *int                `bson:"client_index,omitempty" json:"client_index,omitempty"`
	Party         primitive.ObjectID  `bson:"party" json:"party"`
	PartyName     string              `bson:"party_name" json:"party_name"`
	Amount        float64             `bson:"amount" json:"amount"`
	Method        string              `bson:"method" json:"method"` // "cash", "bank_transfer", "upi", "cheque"
	Reference     string              `bson:"reference,omitempty" json:"reference,omitempty"`
	PaidBy        string              `bson:"paid_by,omitempty" json:"paid_by,omitempty"`
	Purpose       string              `bson:"purpose,omitempty" json:"purpose,omitempty"`
	Notes         string              `bson:"notes,omitempty" json:"notes,omitempty"`
	PaidAt        time.Time           `bson:"paid_at" json:"paid_at"`
	LedgerEntry   *primitive.ObjectID `bson:"ledger_entry,omitempty" json:"ledger_entry,omitempty"`
	CreatedBy     primitive.ObjectID  `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `bson:"updated_at" json:"updated_at"`
}

// LedgerReason is the reason written on the trip entry a payment creates.
func (p *Payment) LedgerReason() string {
	if p.Purpose != "" {
		return p.Purpose
	}
	return "payment " + p.PaymentNumber
}

// ActivityLog is one audit row.
type ActivityLog struct {
	ID          primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Actor       primitive.ObjectID     `bson:"actor,omitempty" json:"actor,omitempty"`
	ActorName   string                 `bson:"actor_name" json:"actor_name"`
	ActorRole   Role                   `bson:"actor_role" json:"actor_role"`
	Action      string                 `bson:"action" json:"action"`
	Category    string                 `bson:"category" json:"category"` // "auth", "trip", "vehicle", "payment", "user", "maintenance", "master"
	Description string                 `bson:"description" json:"description"`
	EntityType  string                 `bson:"entity_type,omitempty" json:"entity_type,omitempty"`
	EntityID    string                 `bson:"entity_id,omitempty" json:"entity_id,omitempty"`
	Details     map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
	IP          string                 `bson:"ip,omitempty" json:"ip,omitempty"`
	UserAgent   string                 `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	CreatedAt   time.Time              `bson:"created_at" json:"created_at"`
}

// ResetPeriod controls when a counter starts over at 1.
type ResetPeriod string

const (
	ResetNever   ResetPeriod = ""
	ResetDaily   ResetPeriod = "daily"
	ResetMonthly ResetPeriod = "monthly"
	ResetYearly  ResetPeriod = "yearly"
)

// Counter is a named sequence document.
type Counter struct {
	Name      string    `bson:"_id" json:"name"`
	Seq       int64     `bson:"seq" json:"seq"`
	LastReset time.Time `bson:"last_reset" json:"last_reset"`
}
