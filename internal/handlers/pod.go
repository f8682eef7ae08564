package handlers

import (
	"net/http"
	"time"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/models"
	"github.com/ukydev/fleet-backoffice/internal/storage"
)

type rejectPODRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// UploadPOD attaches a proof of delivery to a running trip, replacing a
// pending or rejected one.
func (h *TripHandler) UploadPOD(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	trip, err := h.loadTrip(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	file, err := h.readUpload(w, r, "document")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.now()
	doc := models.Document{
		Key:         storage.NewKey("pod/"+trip.ID.Hex(), file.ContentType, now),
		FileName:    file.Name,
		ContentType: file.ContentType,
		Size:        int64(len(file.Data)),
	}
	prev, err := trip.AttachPOD(doc, actor, now)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	url, err := h.put(r.Context(), doc.Key, file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	trip.Documents.ProofOfDelivery.URL = url

	if err := h.Trips.SaveTrip(r.Context(), trip); err != nil {
		h.discard(r.Context(), doc.Key)
		h.fail(w, r, err)
		return
	}
	if prev != nil {
		h.discard(r.Context(), prev.Key)
	}

	h.emit(r, actor, activity.Event{
		Action:      "upload_pod",
		Category:    activity.CategoryTrip,
		Description: "uploaded proof of delivery for trip " + trip.TripNumber,
		EntityType:  "trip",
		EntityID:    trip.ID.Hex(),
		Details:     map[string]interface{}{"file": file.Name, "size": len(file.Data)},
	})
	respond(w, http.StatusOK, map[string]interface{}{"trip": trip})
}

// VerifyPOD accepts the pending proof of delivery. A running trip completes
// and its vehicle is released.
func (h *TripHandler) VerifyPOD(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	trip, err := h.loadTrip(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	completed, err := trip.VerifyPOD(actor, h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.saveWithVehicle(r.Context(), trip, completed); err != nil {
		h.fail(w, r, err)
		return
	}

	if completed {
		h.notifyCompleted(r.Context(), trip)
	}
	h.emit(r, actor, activity.Event{
		Action:      "verify_pod",
		Category:    activity.CategoryTrip,
		Description: "verified proof of delivery for trip " + trip.TripNumber,
		EntityType:  "trip",
		EntityID:    trip.ID.Hex(),
		Details:     map[string]interface{}{"completed": completed},
	})
	respond(w, http.StatusOK, map[string]interface{}{"trip": trip})
}

func (h *TripHandler) RejectPOD(w http.ResponseWriter, r *http.Request) {
	var req rejectPODRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, activity.CategoryTrip, "reject_pod", func(trip *models.Trip, actor models.Actor, now time.Time) (string, error) {
		return "rejected proof of delivery: " + req.Reason, trip.RejectPOD(req.Reason, actor, now)
	})
}
