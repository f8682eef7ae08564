package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Expense is an office or vehicle cost outside any trip ledger.
type Expense struct {
	ID            primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	Category      string              `json:"category" bson:"category"` // "fuel", "maintenance", "insurance", "tolls", "salary", "office", "other"
	Description   string              `json:"description" bson:"description"`
	Amount        float64             `json:"amount" bson:"amount"`
	Date          time.Time           `json:"date" bson:"date"`
	Vehicle       *primitive.ObjectID `json:"vehicle,omitempty" bson:"vehicle,omitempty"`
	Trip          *primitive.ObjectID `json:"trip,omitempty" bson:"trip,omitempty"`
	Vendor        string              `json:"vendor,omitempty" bson:"vendor,omitempty"`
	PaymentMethod string              `json:"payment_method" bson:"payment_method"` // "cash", "bank_transfer", "upi", "cheque"
	PaidBy        string              `json:"paid_by,omitempty" bson:"paid_by,omitempty"`
	ReceiptURL    string              `json:"receipt_url,omitempty" bson:"receipt_url,omitempty"`
	ReceiptKey    string              `json:"-" bson:"receipt_key,omitempty"`
	Notes         string              `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedBy     primitive.ObjectID  `json:"created_by,omitempty" bson:"created_by,omitempty"`
	CreatedAt     time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" bson:"updated_at"`
}

// Advance is money handed to a driver or fleet owner outside a trip, settled
// later against a driver calculation.
type Advance struct {
	ID            primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	Recipient     primitive.ObjectID  `json:"recipient" bson:"recipient"`
	RecipientName string              `json:"recipient_name" bson:"recipient_name"`
	RecipientRole Role                `json:"recipient_role" bson:"recipient_role"`
	Amount        float64             `json:"amount" bson:"amount"`
	Reason        string              `json:"reason" bson:"reason"`
	PaymentMethod string              `json:"payment_method,omitempty" bson:"payment_method,omitempty"`
	Date          time.Time           `json:"date" bson:"date"`
	Settled       bool                `json:"settled" bson:"settled"`
	SettledIn     *primitive.ObjectID `json:"settled_in,omitempty" bson:"settled_in,omitempty"`
	Notes         string              `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedBy     primitive.ObjectID  `json:"created_by,omitempty" bson:"created_by,omitempty"`
	CreatedAt     time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" bson:"updated_at"`
}
