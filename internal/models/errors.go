package models

import "github.com/ukydev/fleet-backoffice/internal/apperr"

// Domain errors raised by trip, vehicle and ledger methods.
var (
	ErrInvalidTransition  = apperr.BadRequest("invalid status transition")
	ErrRoleTransition     = apperr.Forbidden("your role may not request this status change")
	ErrPODMissing         = apperr.BadRequest("proof of delivery must be uploaded before completing the trip")
	ErrPODNotVerified     = apperr.BadRequest("proof of delivery is awaiting verification")
	ErrPODRejected        = apperr.BadRequest("proof of delivery was rejected; upload a new document")
	ErrPODAlreadyVerified = apperr.Conflict("proof of delivery is already verified")
	ErrPODNotPending      = apperr.BadRequest("proof of delivery is not pending review")
	ErrPODUploadState     = apperr.BadRequest("proof of delivery can only be uploaded while the trip is in progress")
	ErrClientPODStep      = apperr.BadRequest("client POD status can only move forward")
	ErrClientNotSettled   = apperr.BadRequest("client cannot be settled while an amount is due")

	ErrClientIndex      = apperr.BadRequest("invalid client index")
	ErrNoClients        = apperr.BadRequest("a trip needs at least one client")
	ErrInvalidAmount    = apperr.BadRequest("amount must be greater than zero")
	ErrOverpayment      = apperr.BadRequest("paid amount cannot exceed the client total")
	ErrNegativeDue      = apperr.BadRequest("adjustment would make the client balance negative")
	ErrOwnerOverpaid    = apperr.BadRequest("owner advances and expenses cannot exceed the vehicle owner amount")
	ErrEntryNotFound    = apperr.NotFound("ledger entry not found")
	ErrClientHasLedger  = apperr.BadRequest("client has advances or expenses recorded")
	ErrTripNotEditable  = apperr.BadRequest("trip can only be edited while booked")
	ErrTripNotDeletable = apperr.BadRequest("trip can only be deleted while booked")
	ErrDriverRequired   = apperr.BadRequest("a driver is required for self-owned vehicles")

	ErrVehicleUnavailable = apperr.BadRequest("vehicle is not available")
	ErrVehicleBusy        = apperr.BadRequest("vehicle is booked on an active trip")
	ErrInvalidOwnership   = apperr.BadRequest("invalid vehicle ownership")
)
