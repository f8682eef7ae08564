package models

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/finance"
)

// LedgerKind labels a line of a derived party ledger.
type LedgerKind string

const (
	LedgerAdvance LedgerKind = "advance"
	LedgerExpense LedgerKind = "expense"
)

// LedgerLine is one owner-side entry read back from a trip.
type LedgerLine struct {
	Trip       primitive.ObjectID `json:"trip"`
	TripNumber string             `json:"trip_number"`
	Ownership  Ownership          `json:"ownership"`
	Kind       LedgerKind         `json:"kind"`
	Entry      LedgerEntry        `json:"entry"`
}

// Ledger is the read view of a driver's, fleet owner's or vehicle's money
// across trips. Trips remain the only stored copy of every entry.
type Ledger struct {
	Lines         []LedgerLine `json:"lines"`
	TotalAdvances float64      `json:"total_advances"`
	TotalExpenses float64      `json:"total_expenses"`
	OwnerAmount   float64      `json:"owner_amount"`
	Balance       float64      `json:"balance"`
	Trips         int          `json:"trips"`
}

// BuildLedger flattens the owner-side ledgers of trips, oldest entry first.
// OwnerAmount sums what fleet-owned trips earn the owner; Balance is that
// amount less advances and expenses, or the cash held for self-owned trips.
func BuildLedger(trips []Trip) Ledger {
	ledger := Ledger{Lines: []LedgerLine{}, Trips: len(trips)}
	var adv, exp, owed []float64
	for i := range trips {
		t := &trips[i]
		t.Recalculate()
		advances, expenses := t.ownerLedgers()
		for _, e := range *advances {
			ledger.Lines = append(ledger.Lines, LedgerLine{t.ID, t.TripNumber, t.VehicleOwner.Type, LedgerAdvance, e})
			adv = append(adv, e.Amount)
		}
		for _, e := range *expenses {
			ledger.Lines = append(ledger.Lines, LedgerLine{t.ID, t.TripNumber, t.VehicleOwner.Type, LedgerExpense, e})
			exp = append(exp, e.Amount)
		}
		if !t.SelfOwned() {
			owed = append(owed, t.VehicleOwnerAmount)
		}
	}
	sort.SliceStable(ledger.Lines, func(i, j int) bool {
		return ledger.Lines[i].Entry.Date.Before(ledger.Lines[j].Entry.Date)
	})

	ledger.TotalAdvances = finance.Sum(adv...)
	ledger.TotalExpenses = finance.Sum(exp...)
	ledger.OwnerAmount = finance.Sum(owed...)
	if ledger.OwnerAmount > 0 {
		ledger.Balance = finance.Sub(ledger.OwnerAmount, finance.Sum(ledger.TotalAdvances, ledger.TotalExpenses))
	} else {
		ledger.Balance = finance.Sub(ledger.TotalAdvances, ledger.TotalExpenses)
	}
	return ledger
}
