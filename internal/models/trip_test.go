package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	testNow   = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	adminUser = Actor{ID: primitive.NewObjectID(), Name: "Admin", Role: RoleAdmin}
	driverUsr = Actor{ID: primitive.NewObjectID(), Name: "Ravi", Role: RoleDriver}
	clientUsr = Actor{ID: primitive.NewObjectID(), Name: "Acme", Role: RoleClient}
)

func newFleetTrip(rates ...float64) *Trip {
	trip := &Trip{
		Status: TripBooked,
		VehicleOwner: VehicleOwnerSnapshot{
			Type:           OwnershipFleetOwner,
			Owner:          primitive.NewObjectID(),
			CommissionRate: 10,
		},
	}
	for _, r := range rates {
		trip.Clients = append(trip.Clients, TripClient{Client: primitive.NewObjectID(), Rate: r})
	}
	trip.Recalculate()
	return trip
}

func newSelfTrip(rates ...float64) *Trip {
	trip := newFleetTrip(rates...)
	trip.VehicleOwner = VehicleOwnerSnapshot{Type: OwnershipSelf, CommissionRate: 25}
	trip.Recalculate()
	return trip
}

func entry(amount float64) LedgerEntry {
	return NewLedgerEntry(amount, "fuel", time.Time{}, adminUser, testNow)
}

func TestTrip_Recalculate_DueAmount(t *testing.T) {
	trip := &Trip{Clients: []TripClient{{Rate: 1000, PaidAmount: 300}}}
	trip.Recalculate()

	assert.Equal(t, 1000.0, trip.Clients[0].TotalRate)
	assert.Equal(t, 700.0, trip.Clients[0].DueAmount)
	assert.Equal(t, PODStarted, trip.Clients[0].PODManage)
}

func TestTrip_TotalClientAmountFollowsClients(t *testing.T) {
	trip := newFleetTrip(1000, 250.5)
	assert.Equal(t, 1250.5, trip.TotalClientAmount)

	require.NoError(t, trip.AddClient(TripClient{Client: primitive.NewObjectID(), Rate: 749.5}))
	assert.Equal(t, 2000.0, trip.TotalClientAmount)

	require.NoError(t, trip.RemoveClient(0))
	assert.Equal(t, 1000.0, trip.TotalClientAmount)
	assert.Len(t, trip.Clients, 2)
}

func TestTrip_CommissionSplit(t *testing.T) {
	t.Run("fleet owner", func(t *testing.T) {
		trip := newFleetTrip(1000)
		assert.Equal(t, 100.0, trip.TotalCommission)
		assert.Equal(t, 900.0, trip.VehicleOwnerAmount)
	})

	t.Run("self owned ignores commission", func(t *testing.T) {
		trip := newSelfTrip(1000)
		assert.Equal(t, 0.0, trip.TotalCommission)
		assert.Equal(t, trip.TotalClientAmount, trip.VehicleOwnerAmount)
	})
}

func TestTrip_ChangeStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    TripStatus
		to      TripStatus
		wantErr error
	}{
		{"booked to in progress", TripBooked, TripInProgress, nil},
		{"booked to cancelled", TripBooked, TripCancelled, nil},
		{"booked to completed", TripBooked, TripCompleted, ErrInvalidTransition},
		{"completed to billed", TripCompleted, TripBilled, nil},
		{"completed to paid", TripCompleted, TripPaid, ErrInvalidTransition},
		{"completed to cancelled", TripCompleted, TripCancelled, ErrInvalidTransition},
		{"completed to booked", TripCompleted, TripBooked, ErrInvalidTransition},
		{"billed to paid", TripBilled, TripPaid, nil},
		{"paid is terminal", TripPaid, TripBilled, ErrInvalidTransition},
		{"cancelled is terminal", TripCancelled, TripBooked, ErrInvalidTransition},
		{"unknown target", TripBooked, TripStatus("parked"), ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trip := newFleetTrip(1000)
			trip.Status = tt.from
			err := trip.ChangeStatus(tt.to, adminUser, "", testNow)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, trip.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, trip.Status)
			require.Len(t, trip.StatusHistory, 1)
			assert.Equal(t, tt.from, trip.StatusHistory[0].From)
		})
	}
}

func TestTrip_ChangeStatus_Roles(t *testing.T) {
	trip := newFleetTrip(1000)
	assert.ErrorIs(t, trip.ChangeStatus(TripCancelled, driverUsr, "", testNow), ErrRoleTransition)
	assert.ErrorIs(t, trip.ChangeStatus(TripInProgress, clientUsr, "", testNow), ErrRoleTransition)

	require.NoError(t, trip.ChangeStatus(TripInProgress, driverUsr, "", testNow))
	assert.Equal(t, &testNow, trip.StartedAt)
	assert.ErrorIs(t, trip.ChangeStatus(TripCancelled, clientUsr, "", testNow), ErrRoleTransition)
}

func TestTrip_ChangeStatus_CompletionNeedsPOD(t *testing.T) {
	pending := func(trip *Trip) {
		_, err := trip.AttachPOD(Document{URL: "https://cdn/pod.pdf"}, driverUsr, testNow)
		require.NoError(t, err)
	}

	t.Run("missing", func(t *testing.T) {
		trip := newFleetTrip(1000)
		trip.Status = TripInProgress
		assert.ErrorIs(t, trip.ChangeStatus(TripCompleted, adminUser, "", testNow), ErrPODMissing)
	})

	t.Run("pending blocks non admin", func(t *testing.T) {
		trip := newFleetTrip(1000)
		trip.Status = TripInProgress
		pending(trip)
		err := trip.ChangeStatus(TripCompleted, driverUsr, "", testNow)
		assert.ErrorIs(t, err, ErrPODNotVerified)
		assert.Equal(t, TripInProgress, trip.Status)
		assert.Equal(t, DocumentPending, trip.Documents.ProofOfDelivery.Status)
	})

	t.Run("verified still needs admin", func(t *testing.T) {
		trip := newFleetTrip(1000)
		trip.Status = TripInProgress
		pending(trip)
		trip.Documents.ProofOfDelivery.Status = DocumentVerified
		assert.ErrorIs(t, trip.ChangeStatus(TripCompleted, driverUsr, "", testNow), ErrRoleTransition)
	})

	t.Run("pending is auto verified by admin", func(t *testing.T) {
		trip := newFleetTrip(1000)
		trip.Status = TripInProgress
		pending(trip)
		require.NoError(t, trip.ChangeStatus(TripCompleted, adminUser, "", testNow))
		assert.Equal(t, TripCompleted, trip.Status)
		assert.Equal(t, DocumentVerified, trip.Documents.ProofOfDelivery.Status)
		assert.Equal(t, adminUser.ID, *trip.Documents.ProofOfDelivery.ReviewedBy)
		assert.Equal(t, PODComplete, trip.Clients[0].PODManage)
	})

	t.Run("rejected", func(t *testing.T) {
		trip := newFleetTrip(1000)
		trip.Status = TripInProgress
		pending(trip)
		require.NoError(t, trip.RejectPOD("blurry", adminUser, testNow))
		assert.ErrorIs(t, trip.ChangeStatus(TripCompleted, adminUser, "", testNow), ErrPODRejected)
	})
}

func TestTrip_POD(t *testing.T) {
	trip := newFleetTrip(1000)
	_, err := trip.AttachPOD(Document{URL: "a"}, driverUsr, testNow)
	assert.ErrorIs(t, err, ErrPODUploadState)

	trip.Status = TripInProgress
	_, err = trip.AttachPOD(Document{URL: "a", Key: "pods/a"}, driverUsr, testNow)
	require.NoError(t, err)
	require.NoError(t, trip.RejectPOD("unreadable", adminUser, testNow))
	assert.Equal(t, "unreadable", trip.Documents.ProofOfDelivery.RejectionReason)

	prev, err := trip.AttachPOD(Document{URL: "b", Key: "pods/b"}, driverUsr, testNow)
	require.NoError(t, err)
	assert.Equal(t, "pods/a", prev.Key)
	assert.Equal(t, DocumentPending, trip.Documents.ProofOfDelivery.Status)
	assert.Empty(t, trip.Documents.ProofOfDelivery.RejectionReason)

	completed, err := trip.VerifyPOD(adminUser, testNow)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, TripCompleted, trip.Status)
	assert.True(t, trip.Status.ReleasesVehicle())

	_, err = trip.VerifyPOD(adminUser, testNow)
	assert.ErrorIs(t, err, ErrPODNotPending)
}

func TestTrip_ClientAdvances(t *testing.T) {
	trip := newFleetTrip(1000)

	first := entry(400)
	require.NoError(t, trip.AddClientAdvance(0, first))
	assert.Equal(t, 400.0, trip.Clients[0].PaidAmount)
	assert.Equal(t, 600.0, trip.Clients[0].DueAmount)

	err := trip.AddClientAdvance(0, entry(600.01))
	assert.ErrorIs(t, err, ErrOverpayment)
	assert.Equal(t, 400.0, trip.Clients[0].PaidAmount)
	assert.Len(t, trip.Clients[0].Advances, 1)

	require.NoError(t, trip.AddClientAdvance(0, entry(600)))
	assert.Equal(t, 0.0, trip.Clients[0].DueAmount)

	assert.ErrorIs(t, trip.AddClientAdvance(3, entry(1)), ErrClientIndex)
	assert.ErrorIs(t, trip.AddClientAdvance(0, entry(0)), ErrInvalidAmount)

	removed, err := trip.RemoveClientAdvance(0, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 400.0, removed.Amount)
	assert.Equal(t, 600.0, trip.Clients[0].PaidAmount)
	assert.Equal(t, 400.0, trip.Clients[0].DueAmount)

	_, err = trip.RemoveClientAdvance(0, first.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestTrip_ClientExpensesAndArgestment(t *testing.T) {
	trip := newFleetTrip(1000)
	toll := entry(150)
	require.NoError(t, trip.AddClientExpense(0, toll))
	c := trip.Clients[0]
	assert.Equal(t, 150.0, c.TotalExpense)
	assert.Equal(t, 1150.0, c.TotalRate)
	assert.Equal(t, 1150.0, c.DueAmount)
	// expenses are billed on top of the rate; commission is on rates only
	assert.Equal(t, 1000.0, trip.TotalClientAmount)

	require.NoError(t, trip.SetArgestment(0, -50))
	assert.Equal(t, 1100.0, trip.Clients[0].TotalRate)

	require.NoError(t, trip.AddClientAdvance(0, entry(1100)))
	_, err := trip.RemoveClientExpense(0, toll.ID)
	assert.ErrorIs(t, err, ErrNegativeDue)
	assert.ErrorIs(t, trip.SetArgestment(0, -100), ErrNegativeDue)

	require.NoError(t, trip.SetArgestment(0, 0))
	assert.Equal(t, 50.0, trip.Clients[0].DueAmount)
}

func TestTrip_OwnerLedgers(t *testing.T) {
	t.Run("fleet owner capped at owner amount", func(t *testing.T) {
		trip := newFleetTrip(1000)
		adv := entry(500)
		require.NoError(t, trip.AddOwnerAdvance(adv))
		require.NoError(t, trip.AddOwnerExpense(entry(300)))
		assert.Equal(t, 100.0, trip.OwnerBalance)
		assert.ErrorIs(t, trip.AddOwnerAdvance(entry(100.01)), ErrOwnerOverpaid)
		assert.Len(t, trip.FleetAdvances, 1)
		assert.Empty(t, trip.SelfAdvances)

		_, err := trip.RemoveOwnerAdvance(adv.ID)
		require.NoError(t, err)
		assert.Equal(t, 600.0, trip.OwnerBalance)
	})

	t.Run("self owned tracks driver cash", func(t *testing.T) {
		trip := newSelfTrip(1000)
		require.NoError(t, trip.AddOwnerAdvance(entry(2000)))
		diesel := entry(1200)
		require.NoError(t, trip.AddOwnerExpense(diesel))
		assert.Equal(t, 800.0, trip.OwnerBalance)
		assert.Len(t, trip.SelfExpenses, 1)
		assert.Empty(t, trip.FleetExpenses)

		_, err := trip.RemoveOwnerExpense(diesel.ID)
		require.NoError(t, err)
		assert.Equal(t, 2000.0, trip.OwnerBalance)
	})
}

func TestTrip_ClientPOD(t *testing.T) {
	trip := newFleetTrip(1000)
	require.NoError(t, trip.AdvanceClientPOD(0, PODReceived, testNow))
	assert.ErrorIs(t, trip.AdvanceClientPOD(0, PODComplete, testNow), ErrClientPODStep)
	assert.ErrorIs(t, trip.AdvanceClientPOD(0, PODSettled, testNow), ErrClientNotSettled)

	require.NoError(t, trip.AddClientAdvance(0, entry(1000)))
	require.NoError(t, trip.AdvanceClientPOD(0, PODSettled, testNow))
	assert.Equal(t, PODSettled, trip.Clients[0].PODManage)
}

func TestTrip_RemoveClient(t *testing.T) {
	trip := newFleetTrip(1000, 500)
	require.NoError(t, trip.AddClientAdvance(1, entry(100)))
	assert.ErrorIs(t, trip.RemoveClient(1), ErrClientHasLedger)

	require.NoError(t, trip.RemoveClient(0))
	assert.ErrorIs(t, trip.RemoveClient(0), ErrClientHasLedger)

	trip.Status = TripInProgress
	assert.ErrorIs(t, trip.AddClient(TripClient{Rate: 10}), ErrTripNotEditable)
}

func TestTrip_VisibleTo(t *testing.T) {
	trip := newFleetTrip(1000)
	driverID := driverUsr.ID
	trip.Driver = &driverID

	assert.True(t, trip.VisibleTo(primitive.NewObjectID(), RoleAdmin))
	assert.True(t, trip.VisibleTo(driverUsr.ID, RoleDriver))
	assert.True(t, trip.VisibleTo(trip.VehicleOwner.Owner, RoleFleetOwner))
	assert.True(t, trip.VisibleTo(trip.Clients[0].Client, RoleClient))
	assert.False(t, trip.VisibleTo(primitive.NewObjectID(), RoleClient))
	assert.False(t, trip.VisibleTo(driverUsr.ID, RoleFleetOwner))
}
