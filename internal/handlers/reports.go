package handlers

import (
	"net/http"

	"github.com/ukydev/fleet-backoffice/internal/models"
	"github.com/ukydev/fleet-backoffice/internal/reports"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportPageSize  = 200
	exportMaxPages  = 50
)

// ReportHandler serves the audit trail and spreadsheet exports.
type ReportHandler struct {
	*Deps
}

func NewReportHandler(d *Deps) *ReportHandler {
	return &ReportHandler{Deps: d}
}

// ListActivity lists audit rows, newest first. Filters: ?category=, ?action=,
// ?actor=, ?entity_id=, ?from=, ?to=.
func (h *ReportHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r, "created_at", "category", "action")
	for _, key := range []string{"category", "action", "entity_type", "entity_id"} {
		if v := r.URL.Query().Get(key); v != "" {
			q.Filter[key] = v
		}
	}
	if err := queryID(r, &q, "actor", "actor"); err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if from != nil || to != nil {
		q.Filter["created_at"] = dateRange(from, endOfDay(to))
	}

	logs, total, err := h.Activity.ListActivity(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, logs, len(logs), total, q)
}

// ExportTrips writes the trips matching the list filters as an xlsx
// workbook. Exports stop at exportMaxPages pages of trips.
func (h *ReportHandler) ExportTrips(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := listQuery(r, "scheduled_date", "trip_number", "status", "created_at")
	if err := tripFilter(r, &q); err != nil {
		h.fail(w, r, err)
		return
	}
	scopeTrips(q.Filter, actor)
	q.Limit = exportPageSize

	var all []models.Trip
	for q.Page = 1; q.Page <= exportMaxPages; q.Page++ {
		page, total, err := h.Trips.ListTrips(r.Context(), q)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		all = append(all, page...)
		if int64(len(all)) >= total || len(page) < exportPageSize {
			break
		}
	}

	f, err := reports.TripsWorkbook(all)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+reports.Filename(h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		h.Logger.WithError(err).Warn("failed to stream trip export")
	}
}
