package models

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripBooked     TripStatus = "booked"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
	TripBilled     TripStatus = "billed"
	TripPaid       TripStatus = "paid"
)

// IsValid checks if the status is a known TripStatus
func (s TripStatus) IsValid() bool {
	switch s {
	case TripBooked, TripInProgress, TripCompleted, TripCancelled, TripBilled, TripPaid:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can transition to the target status
func (s TripStatus) CanTransitionTo(target TripStatus) bool {
	switch s {
	case TripBooked:
		return target == TripInProgress || target == TripCancelled
	case TripInProgress:
		return target == TripCompleted || target == TripCancelled
	case TripCompleted:
		return target == TripBilled
	case TripBilled:
		return target == TripPaid
	case TripCancelled, TripPaid:
		return false // Terminal states
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s TripStatus) IsTerminal() bool {
	return s == TripCancelled || s == TripPaid
}

// ReleasesVehicle reports whether entering s frees the trip's vehicle.
func (s TripStatus) ReleasesVehicle() bool {
	return s == TripCompleted || s == TripCancelled
}

// RoleMayRequest restricts which actor may ask for which edge. The edge
// itself is still checked by CanTransitionTo.
func RoleMayRequest(role Role, from, to TripStatus) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleDriver, RoleFleetOwner:
		return from == TripBooked && to == TripInProgress
	case RoleClient:
		return from == TripBooked && to == TripCancelled
	}
	return false
}

// PODStatus is the per-client proof-of-delivery paperwork state.
type PODStatus string

const (
	PODStarted   PODStatus = "started"
	PODComplete  PODStatus = "complete"
	PODReceived  PODStatus = "pod_received"
	PODSubmitted PODStatus = "pod_submitted"
	PODSettled   PODStatus = "settled"
)

var podOrder = map[PODStatus]int{
	PODStarted:   0,
	PODComplete:  1,
	PODReceived:  2,
	PODSubmitted: 3,
	PODSettled:   4,
}

// IsValid checks if the status is a known PODStatus
func (s PODStatus) IsValid() bool {
	_, ok := podOrder[s]
	return ok
}

// CanAdvanceTo allows forward moves only; steps may be skipped.
func (s PODStatus) CanAdvanceTo(target PODStatus) bool {
	from, ok := podOrder[s]
	if !ok {
		from = -1
	}
	to, ok := podOrder[target]
	return ok && to > from
}

// DocumentStatus is the review state of an uploaded trip document.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentVerified DocumentStatus = "verified"
	DocumentRejected DocumentStatus = "rejected"
)

// CanTransitionTo checks if the status can transition to the target status
func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	return s == DocumentPending && (target == DocumentVerified || target == DocumentRejected)
}
