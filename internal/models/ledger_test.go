package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLedger(t *testing.T) {
	first := newFleetTrip(1000)
	first.TripNumber = "TRP-0001"
	late := NewLedgerEntry(300, "balance", testNow.Add(48*time.Hour), adminUser, testNow)
	early := NewLedgerEntry(200, "advance", testNow, adminUser, testNow)
	require.NoError(t, first.AddOwnerAdvance(late))
	require.NoError(t, first.AddOwnerExpense(NewLedgerEntry(50, "toll", testNow.Add(time.Hour), adminUser, testNow)))

	second := newFleetTrip(500)
	second.TripNumber = "TRP-0002"
	require.NoError(t, second.AddOwnerAdvance(early))

	ledger := BuildLedger([]Trip{*first, *second})

	require.Len(t, ledger.Lines, 3)
	assert.Equal(t, "TRP-0002", ledger.Lines[0].TripNumber)
	assert.Equal(t, LedgerExpense, ledger.Lines[1].Kind)
	assert.Equal(t, late.ID, ledger.Lines[2].Entry.ID)
	assert.Equal(t, 500.0, ledger.TotalAdvances)
	assert.Equal(t, 50.0, ledger.TotalExpenses)
	assert.Equal(t, 1350.0, ledger.OwnerAmount)
	assert.Equal(t, 800.0, ledger.Balance)
	assert.Equal(t, 2, ledger.Trips)
}

func TestBuildLedger_SelfOwned(t *testing.T) {
	trip := newSelfTrip(1000)
	require.NoError(t, trip.AddOwnerAdvance(entry(1500)))
	require.NoError(t, trip.AddOwnerExpense(entry(900)))

	ledger := BuildLedger([]Trip{*trip})
	assert.Equal(t, 0.0, ledger.OwnerAmount)
	assert.Equal(t, 600.0, ledger.Balance)
	assert.Empty(t, BuildLedger(nil).Lines)
}
