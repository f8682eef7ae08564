package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/finance"
)

// Actor identifies who performs a trip mutation.
type Actor struct {
	ID   primitive.ObjectID
	Name string
	Role Role
}

// VehicleOwnerSnapshot freezes the vehicle's ownership terms at booking time
// so later edits to the owner don't change historical trips.
type VehicleOwnerSnapshot struct {
	Type           Ownership          `bson:"type" json:"type"`
	Owner          primitive.ObjectID `bson:"owner,omitempty" json:"owner,omitempty"`
	Name           string             `bson:"name,omitempty" json:"name,omitempty"`
	CommissionRate float64            `bson:"commission_rate" json:"commission_rate"`
}

// LedgerEntry is one advance or expense line. The ID is the only handle used
// to find it again.
type LedgerEntry struct {
	ID            primitive.ObjectID  `bson:"_id" json:"id"`
	Amount        float64             `bson:"amount" json:"amount"`
	Reason        string              `bson:"reason" json:"reason"`
	Description   string              `bson:"description,omitempty" json:"description,omitempty"`
	PaymentMethod string              `bson:"payment_method,omitempty" json:"payment_method,omitempty"`
	Date          time.Time           `bson:"date" json:"date"`
	Payment       *primitive.ObjectID `bson:"payment,omitempty" json:"payment,omitempty"`
	AddedBy       primitive.ObjectID  `bson:"added_by,omitempty" json:"added_by,omitempty"`
	AddedByName   string              `bson:"added_by_name,omitempty" json:"added_by_name,omitempty"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
}

// NewLedgerEntry builds an entry with a fresh ID.
func NewLedgerEntry(amount float64, reason string, date time.Time, actor Actor, now time.Time) LedgerEntry {
	if date.IsZero() {
		date = now
	}
	return LedgerEntry{
		ID:          primitive.NewObjectID(),
		Amount:      finance.Round(amount),
		Reason:      reason,
		Date:        date,
		AddedBy:     actor.ID,
		AddedByName: actor.Name,
		CreatedAt:   now,
	}
}

// TripClient is one client's share of a trip.
type TripClient struct {
	Client        primitive.ObjectID `bson:"client" json:"client"`
	ClientName    string             `bson:"client_name" json:"client_name"`
	Origin        string             `bson:"origin" json:"origin"`
	Destination   string             `bson:"destination" json:"destination"`
	Goods         string             `bson:"goods,omitempty" json:"goods,omitempty"`
	Weight        float64            `bson:"weight,omitempty" json:"weight,omitempty"`
	Rate          float64            `bson:"rate" json:"rate"`
	TruckHireCost float64            `bson:"truck_hire_cost" json:"truck_hire_cost"`
	Argestment    float64            `bson:"argestment" json:"argestment"`
	TotalExpense  float64            `bson:"total_expense" json:"total_expense"`
	TotalRate     float64            `bson:"total_rate" json:"total_rate"`
	PaidAmount    float64            `bson:"paid_amount" json:"paid_amount"`
	DueAmount     float64            `bson:"due_amount" json:"due_amount"`
	Advances      []LedgerEntry      `bson:"advances" json:"advances"`
	Expenses      []LedgerEntry      `bson:"expenses" json:"expenses"`
	PODManage     PODStatus          `bson:"pod_manage" json:"pod_manage"`
	PODUpdatedAt  *time.Time         `bson:"pod_updated_at,omitempty" json:"pod_updated_at,omitempty"`
}

// recalculate derives TotalRate and DueAmount from the running totals.
// Expenses and adjustments are billed to the client on top of the rate.
func (c *TripClient) recalculate() {
	c.TotalRate = finance.Sum(c.Rate, c.TotalExpense, c.Argestment)
	c.DueAmount = finance.Sub(c.TotalRate, c.PaidAmount)
	if c.PODManage == "" {
		c.PODManage = PODStarted
	}
	if c.Advances == nil {
		c.Advances = []LedgerEntry{}
	}
	if c.Expenses == nil {
		c.Expenses = []LedgerEntry{}
	}
}

// StatusChange records one trip status transition.
type StatusChange struct {
	From      TripStatus         `bson:"from" json:"from"`
	To        TripStatus         `bson:"to" json:"to"`
	ChangedBy primitive.ObjectID `bson:"changed_by,omitempty" json:"changed_by,omitempty"`
	Role      Role               `bson:"role" json:"role"`
	Note      string             `bson:"note,omitempty" json:"note,omitempty"`
	At        time.Time          `bson:"at" json:"at"`
}

// Document is an uploaded file attached to a trip.
type Document struct {
	URL             string              `bson:"url" json:"url"`
	Key             string              `bson:"key" json:"-"`
	FileName        string              `bson:"file_name" json:"file_name"`
	ContentType     string              `bson:"content_type" json:"content_type"`
	Size            int64               `bson:"size" json:"size"`
	Status          DocumentStatus      `bson:"status" json:"status"`
	UploadedBy      primitive.ObjectID  `bson:"uploaded_by,omitempty" json:"uploaded_by,omitempty"`
	UploadedAt      time.Time           `bson:"uploaded_at" json:"uploaded_at"`
	ReviewedBy      *primitive.ObjectID `bson:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time          `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	RejectionReason string              `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
}

// TripDocuments groups the files attached to a trip.
type TripDocuments struct {
	ProofOfDelivery *Document  `bson:"proof_of_delivery,omitempty" json:"proof_of_delivery,omitempty"`
	Others          []Document `bson:"others,omitempty" json:"others,omitempty"`
}

// Trip is the aggregate for one vehicle movement shared by one or more clients.
type Trip struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	TripNumber    string               `bson:"trip_number" json:"trip_number"`
	Vehicle       primitive.ObjectID   `bson:"vehicle" json:"vehicle"`
	VehicleNumber string               `bson:"vehicle_number" json:"vehicle_number"`
	Driver        *primitive.ObjectID  `bson:"driver,omitempty" json:"driver,omitempty"`
	DriverName    string               `bson:"driver_name,omitempty" json:"driver_name,omitempty"`
	VehicleOwner  VehicleOwnerSnapshot `bson:"vehicle_owner" json:"vehicle_owner"`
	Clients       []TripClient         `bson:"clients" json:"clients"`
	ScheduledDate time.Time            `bson:"scheduled_date" json:"scheduled_date"`
	StartedAt     *time.Time           `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt   *time.Time           `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CancelledAt   *time.Time           `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`

	TotalClientAmount  float64 `bson:"total_client_amount" json:"total_client_amount"`
	TotalCommission    float64 `bson:"total_commission" json:"total_commission"`
	VehicleOwnerAmount float64 `bson:"vehicle_owner_amount" json:"vehicle_owner_amount"`

	FleetAdvances []LedgerEntry `bson:"fleet_advances" json:"fleet_advances"`
	FleetExpenses []LedgerEntry `bson:"fleet_expenses" json:"fleet_expenses"`
	SelfAdvances  []LedgerEntry `bson:"self_advances" json:"self_advances"`
	SelfExpenses  []LedgerEntry `bson:"self_expenses" json:"self_expenses"`

	// For fleet-owned trips OwnerBalance is what is still payable to the
	// owner; for self-owned trips it is the cash the driver still holds.
	OwnerAdvanceTotal float64 `bson:"owner_advance_total" json:"owner_advance_total"`
	OwnerExpenseTotal float64 `bson:"owner_expense_total" json:"owner_expense_total"`
	OwnerBalance      float64 `bson:"owner_balance" json:"owner_balance"`

	Status        TripStatus         `bson:"status" json:"status"`
	StatusHistory []StatusChange     `bson:"status_history" json:"status_history"`
	Documents     TripDocuments      `bson:"documents" json:"documents"`
	Notes         string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedBy     primitive.ObjectID `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
	// Version increments on every save; a save against a stale copy fails.
	Version int64 `bson:"version" json:"version"`
}

// SelfOwned reports whether the trip runs on a brokerage-owned vehicle.
func (t *Trip) SelfOwned() bool {
	return t.VehicleOwner.Type == OwnershipSelf
}

// Recalculate refreshes every derived amount. It runs before each save.
func (t *Trip) Recalculate() {
	rates := make([]float64, 0, len(t.Clients))
	for i := range t.Clients {
		t.Clients[i].recalculate()
		rates = append(rates, t.Clients[i].Rate)
	}
	t.TotalClientAmount = finance.Sum(rates...)
	t.TotalCommission, t.VehicleOwnerAmount = finance.Split(
		t.TotalClientAmount, t.VehicleOwner.CommissionRate, t.SelfOwned())

	advances, expenses := t.ownerLedgers()
	t.OwnerAdvanceTotal = sumEntries(*advances)
	t.OwnerExpenseTotal = sumEntries(*expenses)
	if t.SelfOwned() {
		t.OwnerBalance = finance.Sub(t.OwnerAdvanceTotal, t.OwnerExpenseTotal)
	} else {
		t.OwnerBalance = finance.Sub(t.VehicleOwnerAmount, finance.Sum(t.OwnerAdvanceTotal, t.OwnerExpenseTotal))
	}

	for _, l := range []*[]LedgerEntry{&t.FleetAdvances, &t.FleetExpenses, &t.SelfAdvances, &t.SelfExpenses} {
		if *l == nil {
			*l = []LedgerEntry{}
		}
	}
	if t.StatusHistory == nil {
		t.StatusHistory = []StatusChange{}
	}
}

func sumEntries(entries []LedgerEntry) float64 {
	amounts := make([]float64, len(entries))
	for i, e := range entries {
		amounts[i] = e.Amount
	}
	return finance.Sum(amounts...)
}

func (t *Trip) ownerLedgers() (advances, expenses *[]LedgerEntry) {
	if t.SelfOwned() {
		return &t.SelfAdvances, &t.SelfExpenses
	}
	return &t.FleetAdvances, &t.FleetExpenses
}

func (t *Trip) client(index int) (*TripClient, error) {
	if index < 0 || index >= len(t.Clients) {
		return nil, ErrClientIndex
	}
	return &t.Clients[index], nil
}

// AddClient appends a client while the trip is still booked.
func (t *Trip) AddClient(c TripClient) error {
	if t.Status != TripBooked {
		return ErrTripNotEditable
	}
	if c.Rate < 0 || c.PaidAmount < 0 {
		return ErrInvalidAmount
	}
	c.Advances, c.Expenses = nil, nil
	c.TotalExpense, c.Argestment = 0, 0
	c.PODManage = PODStarted
	c.recalculate()
	if c.DueAmount < 0 {
		return ErrOverpayment
	}
	t.Clients = append(t.Clients, c)
	t.Recalculate()
	return nil
}

// RemoveClient drops a client that has no ledger activity.
func (t *Trip) RemoveClient(index int) error {
	if t.Status != TripBooked {
		return ErrTripNotEditable
	}
	c, err := t.client(index)
	if err != nil {
		return err
	}
	if len(c.Advances) > 0 || len(c.Expenses) > 0 {
		return ErrClientHasLedger
	}
	if len(t.Clients) == 1 {
		return ErrNoClients
	}
	t.Clients = append(t.Clients[:index], t.Clients[index+1:]...)
	t.Recalculate()
	return nil
}

// AddClientAdvance records money received from client index.
func (t *Trip) AddClientAdvance(index int, entry LedgerEntry) error {
	c, err := t.client(index)
	if err != nil {
		return err
	}
	if entry.Amount <= 0 {
		return ErrInvalidAmount
	}
	c.recalculate()
	if finance.Exceeds(c.PaidAmount, entry.Amount, c.TotalRate) {
		return fmt.Errorf("%w: due %.2f, advance %.2f", ErrOverpayment, c.DueAmount, entry.Amount)
	}
	c.PaidAmount = finance.Sum(c.PaidAmount, entry.Amount)
	c.Advances = append(c.Advances, entry)
	t.Recalculate()
	return nil
}

// RemoveClientAdvance reverses an advance and returns the removed entry.
func (t *Trip) RemoveClientAdvance(index int, entryID primitive.ObjectID) (LedgerEntry, error) {
	c, err := t.client(index)
	if err != nil {
		return LedgerEntry{}, err
	}
	entry, rest, err := removeEntry(c.Advances, entryID)
	if err != nil {
		return LedgerEntry{}, err
	}
	c.Advances = rest
	c.PaidAmount = finance.Sub(c.PaidAmount, entry.Amount)
	if c.PaidAmount < 0 {
		c.PaidAmount = 0
	}
	t.Recalculate()
	return entry, nil
}

// AddClientExpense bills an expense to client index.
func (t *Trip) AddClientExpense(index int, entry LedgerEntry) error {
	c, err := t.client(index)
	if err != nil {
		return err
	}
	if entry.Amount <= 0 {
		return ErrInvalidAmount
	}
	c.TotalExpense = finance.Sum(c.TotalExpense, entry.Amount)
	c.Expenses = append(c.Expenses, entry)
	t.Recalculate()
	return nil
}

// RemoveClientExpense reverses a billed expense. Removal is refused when the
// client would end up having paid more than they owe.
func (t *Trip) RemoveClientExpense(index int, entryID primitive.ObjectID) (LedgerEntry, error) {
	c, err := t.client(index)
	if err != nil {
		return LedgerEntry{}, err
	}
	entry, rest, err := removeEntry(c.Expenses, entryID)
	if err != nil {
		return LedgerEntry{}, err
	}
	total := finance.Sub(c.TotalExpense, entry.Amount)
	if finance.Exceeds(c.PaidAmount, 0, finance.Sum(c.Rate, total, c.Argestment)) {
		return LedgerEntry{}, ErrNegativeDue
	}
	c.Expenses = rest
	c.TotalExpense = total
	t.Recalculate()
	return entry, nil
}

// SetArgestment replaces the manual adjustment of client index.
func (t *Trip) SetArgestment(index int, amount float64) error {
	c, err := t.client(index)
	if err != nil {
		return err
	}
	if finance.Exceeds(c.PaidAmount, 0, finance.Sum(c.Rate, c.TotalExpense, amount)) {
		return ErrNegativeDue
	}
	c.Argestment = finance.Round(amount)
	t.Recalculate()
	return nil
}

// AdvanceClientPOD moves the client's paperwork state forward.
func (t *Trip) AdvanceClientPOD(index int, target PODStatus, now time.Time) error {
	c, err := t.client(index)
	if err != nil {
		return err
	}
	if !c.PODManage.CanAdvanceTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrClientPODStep, c.PODManage, target)
	}
	c.recalculate()
	if target == PODSettled && !finance.IsZero(c.DueAmount) {
		return ErrClientNotSettled
	}
	c.PODManage = target
	c.PODUpdatedAt = &now
	return nil
}

// AddOwnerAdvance records money paid to the fleet owner, or handed to the
// driver on a self-owned trip.
func (t *Trip) AddOwnerAdvance(entry LedgerEntry) error {
	if entry.Amount <= 0 {
		return ErrInvalidAmount
	}
	t.Recalculate()
	if !t.SelfOwned() && finance.Exceeds(finance.Sum(t.OwnerAdvanceTotal, t.OwnerExpenseTotal), entry.Amount, t.VehicleOwnerAmount) {
		return ErrOwnerOverpaid
	}
	advances, _ := t.ownerLedgers()
	*advances = append(*advances, entry)
	t.Recalculate()
	return nil
}

// AddOwnerExpense records a trip expense borne on the owner side.
func (t *Trip) AddOwnerExpense(entry LedgerEntry) error {
	if entry.Amount <= 0 {
		return ErrInvalidAmount
	}
	t.Recalculate()
	if !t.SelfOwned() && finance.Exceeds(finance.Sum(t.OwnerAdvanceTotal, t.OwnerExpenseTotal), entry.Amount, t.VehicleOwnerAmount) {
		return ErrOwnerOverpaid
	}
	_, expenses := t.ownerLedgers()
	*expenses = append(*expenses, entry)
	t.Recalculate()
	return nil
}

// RemoveOwnerAdvance deletes an owner-side advance by ID.
func (t *Trip) RemoveOwnerAdvance(entryID primitive.ObjectID) (LedgerEntry, error) {
	advances, _ := t.ownerLedgers()
	entry, rest, err := removeEntry(*advances, entryID)
	if err != nil {
		return LedgerEntry{}, err
	}
	*advances = rest
	t.Recalculate()
	return entry, nil
}

// RemoveOwnerExpense deletes an owner-side expense by ID.
func (t *Trip) RemoveOwnerExpense(entryID primitive.ObjectID) (LedgerEntry, error) {
	_, expenses := t.ownerLedgers()
	entry, rest, err := removeEntry(*expenses, entryID)
	if err != nil {
		return LedgerEntry{}, err
	}
	*expenses = rest
	t.Recalculate()
	return entry, nil
}

func removeEntry(entries []LedgerEntry, id primitive.ObjectID) (LedgerEntry, []LedgerEntry, error) {
	for i, e := range entries {
		if e.ID == id {
			rest := make([]LedgerEntry, 0, len(entries)-1)
			rest = append(rest, entries[:i]...)
			rest = append(rest, entries[i+1:]...)
			return e, rest, nil
		}
	}
	return LedgerEntry{}, entries, ErrEntryNotFound
}

// ChangeStatus applies a requested status change on behalf of actor.
// Completion needs a verified proof of delivery; an admin completing a trip
// with a pending POD verifies it in the same step.
func (t *Trip) ChangeStatus(to TripStatus, actor Actor, note string, now time.Time) error {
	from := t.Status
	if !to.IsValid() || !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	autoVerify := false
	if to == TripCompleted {
		pod := t.Documents.ProofOfDelivery
		switch {
		case pod == nil:
			return ErrPODMissing
		case pod.Status == DocumentRejected:
			return ErrPODRejected
		case pod.Status == DocumentPending && actor.Role != RoleAdmin:
			return ErrPODNotVerified
		case pod.Status == DocumentPending:
			autoVerify = true
		}
	}
	if !RoleMayRequest(actor.Role, from, to) {
		return ErrRoleTransition
	}
	if autoVerify {
		t.markPOD(DocumentVerified, actor, "", now)
	}
	t.applyStatus(to, actor, note, now)
	return nil
}

func (t *Trip) applyStatus(to TripStatus, actor Actor, note string, now time.Time) {
	t.StatusHistory = append(t.StatusHistory, StatusChange{
		From:      t.Status,
		To:        to,
		ChangedBy: actor.ID,
		Role:      actor.Role,
		Note:      note,
		At:        now,
	})
	t.Status = to
	switch to {
	case TripInProgress:
		t.StartedAt = &now
	case TripCompleted:
		t.CompletedAt = &now
		for i := range t.Clients {
			if t.Clients[i].PODManage.CanAdvanceTo(PODComplete) {
				t.Clients[i].PODManage = PODComplete
				t.Clients[i].PODUpdatedAt = &now
			}
		}
	case TripCancelled:
		t.CancelledAt = &now
	}
}

// AttachPOD stores a new proof of delivery awaiting review and returns the
// document it replaced, if any.
func (t *Trip) AttachPOD(doc Document, actor Actor, now time.Time) (*Document, error) {
	if t.Status != TripInProgress {
		return nil, ErrPODUploadState
	}
	prev := t.Documents.ProofOfDelivery
	if prev != nil && prev.Status == DocumentVerified {
		return nil, ErrPODAlreadyVerified
	}
	doc.Status = DocumentPending
	doc.UploadedBy = actor.ID
	doc.UploadedAt = now
	doc.ReviewedBy, doc.ReviewedAt, doc.RejectionReason = nil, nil, ""
	t.Documents.ProofOfDelivery = &doc
	return prev, nil
}

// VerifyPOD approves the pending POD. An in-progress trip is completed by
// the same call; completed reports whether that happened.
func (t *Trip) VerifyPOD(actor Actor, now time.Time) (completed bool, err error) {
	pod := t.Documents.ProofOfDelivery
	if pod == nil {
		return false, ErrPODMissing
	}
	if !pod.Status.CanTransitionTo(DocumentVerified) {
		return false, ErrPODNotPending
	}
	t.markPOD(DocumentVerified, actor, "", now)
	if t.Status == TripInProgress {
		t.applyStatus(TripCompleted, actor, "proof of delivery verified", now)
		return true, nil
	}
	return false, nil
}

// RejectPOD turns the pending POD down with a reason.
func (t *Trip) RejectPOD(reason string, actor Actor, now time.Time) error {
	pod := t.Documents.ProofOfDelivery
	if pod == nil {
		return ErrPODMissing
	}
	if !pod.Status.CanTransitionTo(DocumentRejected) {
		return ErrPODNotPending
	}
	t.markPOD(DocumentRejected, actor, reason, now)
	return nil
}

func (t *Trip) markPOD(status DocumentStatus, actor Actor, reason string, now time.Time) {
	pod := t.Documents.ProofOfDelivery
	pod.Status = status
	pod.ReviewedBy = &actor.ID
	pod.ReviewedAt = &now
	pod.RejectionReason = reason
}

// Editable reports whether booking details may still change.
func (t *Trip) Editable() bool {
	return t.Status == TripBooked
}

// Deletable reports whether the trip may be removed.
func (t *Trip) Deletable() bool {
	return t.Status == TripBooked
}

// HasClient reports whether userID is one of the trip's clients.
func (t *Trip) HasClient(userID primitive.ObjectID) bool {
	for _, c := range t.Clients {
		if c.Client == userID {
			return true
		}
	}
	return false
}

// VisibleTo reports whether a non-admin user takes part in the trip.
func (t *Trip) VisibleTo(userID primitive.ObjectID, role Role) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleDriver:
		return t.Driver != nil && *t.Driver == userID
	case RoleFleetOwner:
		return t.VehicleOwner.Type == OwnershipFleetOwner && t.VehicleOwner.Owner == userID
	case RoleClient:
		return t.HasClient(userID)
	}
	return false
}
