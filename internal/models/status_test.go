package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTripStatus_CanTransitionTo(t *testing.T) {
	all := []TripStatus{TripBooked, TripInProgress, TripCompleted, TripCancelled, TripBilled, TripPaid}
	allowed := map[TripStatus][]TripStatus{
		TripBooked:     {TripInProgress, TripCancelled},
		TripInProgress: {TripCompleted, TripCancelled},
		TripCompleted:  {TripBilled},
		TripBilled:     {TripPaid},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, TripPaid.IsTerminal())
	assert.True(t, TripCancelled.IsTerminal())
	assert.False(t, TripCompleted.IsTerminal())
	assert.False(t, TripStatus("").IsValid())
}

func TestRoleMayRequest(t *testing.T) {
	tests := []struct {
		role     Role
		from, to TripStatus
		expected bool
	}{
		{RoleAdmin, TripBilled, TripPaid, true},
		{RoleDriver, TripBooked, TripInProgress, true},
		{RoleDriver, TripInProgress, TripCompleted, false},
		{RoleFleetOwner, TripBooked, TripInProgress, true},
		{RoleFleetOwner, TripBooked, TripCancelled, false},
		{RoleClient, TripBooked, TripCancelled, true},
		{RoleClient, TripInProgress, TripCancelled, false},
		{Role("guest"), TripBooked, TripCancelled, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, RoleMayRequest(tt.role, tt.from, tt.to), "%s %s -> %s", tt.role, tt.from, tt.to)
	}
}

func TestPODStatus_CanAdvanceTo(t *testing.T) {
	assert.True(t, PODStarted.CanAdvanceTo(PODComplete))
	assert.True(t, PODComplete.CanAdvanceTo(PODSettled))
	assert.False(t, PODSettled.CanAdvanceTo(PODSubmitted))
	assert.False(t, PODReceived.CanAdvanceTo(PODReceived))
	assert.False(t, PODStarted.CanAdvanceTo(PODStatus("lost")))
	assert.True(t, PODStatus("").CanAdvanceTo(PODStarted))
}

func TestDocumentStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, DocumentPending.CanTransitionTo(DocumentVerified))
	assert.True(t, DocumentPending.CanTransitionTo(DocumentRejected))
	assert.False(t, DocumentVerified.CanTransitionTo(DocumentRejected))
	assert.False(t, DocumentRejected.CanTransitionTo(DocumentVerified))
}
