package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/finance"
)

// DriverCalculation settles a driver's cash position over a period.
type DriverCalculation struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Driver        primitive.ObjectID   `bson:"driver" json:"driver"`
	DriverName    string               `bson:"driver_name" json:"driver_name"`
	From          time.Time            `bson:"from" json:"from"`
	To            time.Time            `bson:"to" json:"to"`
	Trips         []primitive.ObjectID `bson:"trips" json:"trips"`
	Advances      []primitive.ObjectID `bson:"advances" json:"advances"`
	TripAdvances  float64              `bson:"trip_advances" json:"trip_advances"`
	OtherAdvances float64              `bson:"other_advances" json:"other_advances"`
	TotalAdvances float64              `bson:"total_advances" json:"total_advances"`
	TotalExpenses float64              `bson:"total_expenses" json:"total_expenses"`
	Salary        float64              `bson:"salary" json:"salary"`
	Allowances    float64              `bson:"allowances" json:"allowances"`
	Deductions    float64              `bson:"deductions" json:"deductions"`
	DriverBalance float64              `bson:"driver_balance" json:"driver_balance"`
	NetPayable    float64              `bson:"net_payable" json:"net_payable"`
	Notes         string               `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedBy     primitive.ObjectID   `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt     time.Time            `bson:"created_at" json:"created_at"`
}

// Settle fills the totals from the driver's self-owned trips and any
// stand-alone advances in the period. DriverBalance is the cash the driver
// still holds; NetPayable is what the brokerage owes after netting it off.
func (d *DriverCalculation) Settle(trips []Trip, advances []Advance) {
	d.Trips = make([]primitive.ObjectID, 0, len(trips))
	var tripAdv, exp []float64
	for i := range trips {
		t := &trips[i]
		if !t.SelfOwned() {
			continue
		}
		t.Recalculate()
		d.Trips = append(d.Trips, t.ID)
		tripAdv = append(tripAdv, t.OwnerAdvanceTotal)
		exp = append(exp, t.OwnerExpenseTotal)
	}
	d.Advances = make([]primitive.ObjectID, 0, len(advances))
	var other []float64
	for _, a := range advances {
		if a.Settled {
			continue
		}
		d.Advances = append(d.Advances, a.ID)
		other = append(other, a.Amount)
	}

	d.TripAdvances = finance.Sum(tripAdv...)
	d.OtherAdvances = finance.Sum(other...)
	d.TotalAdvances = finance.Sum(d.TripAdvances, d.OtherAdvances)
	d.TotalExpenses = finance.Sum(exp...)
	d.DriverBalance = finance.Sub(d.TotalAdvances, d.TotalExpenses)
	d.NetPayable = finance.Sub(finance.Sum(d.Salary, d.Allowances), finance.Sum(d.Deductions, d.DriverBalance))
}
