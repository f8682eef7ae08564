package handlers

import (
	"net/http"
	"strings"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

// CityHandler serves the city master list used for trip origins and
// destinations.
type CityHandler struct {
	*Deps
}

func NewCityHandler(d *Deps) *CityHandler {
	return &CityHandler{Deps: d}
}

type cityRequest struct {
	Name     *string          `json:"name" validate:"omitempty,min=2,max=100"`
	State    *string          `json:"state" validate:"omitempty,min=2,max=100"`
	Pincode  *string          `json:"pincode" validate:"omitempty,numeric,len=6"`
	Location *models.Location `json:"location"`
	IsActive *bool            `json:"is_active"`
}

// List supports ?state=, ?search= and ?active=.
func (h *CityHandler) List(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r, "name", "state", "created_at")
	if s := strings.TrimSpace(r.URL.Query().Get("state")); s != "" {
		q.Filter["state"] = containsPattern(s)
	}
	if s := strings.TrimSpace(r.URL.Query().Get("search")); s != "" {
		q.Filter["name"] = containsPattern(s)
	}
	switch r.URL.Query().Get("active") {
	case "true":
		q.Filter["is_active"] = true
	case "false":
		q.Filter["is_active"] = false
	}
	cities, total, err := h.Cities.ListCities(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, cities, len(cities), total, q)
}

func (h *CityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	city, err := h.Cities.FindCityByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"city": city})
}

func (h *CityHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req cityRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Name == nil || req.State == nil {
		h.fail(w, r, errFieldsRequired("name", "state"))
		return
	}
	city := models.City{IsActive: true}
	applyCity(&city, &req)
	if err := h.Cities.InsertCity(r.Context(), &city); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "create_city",
		Category:    activity.CategoryMaster,
		Description: "added city " + city.Name,
		EntityType:  "city",
		EntityID:    city.ID.Hex(),
	})
	respond(w, http.StatusCreated, map[string]interface{}{"city": city})
}

func (h *CityHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req cityRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	city, err := h.Cities.FindCityByID(r.Context(), id.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	applyCity(city, &req)
	if err := h.Cities.UpdateCity(r.Context(), city); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "update_city",
		Category:    activity.CategoryMaster,
		Description: "updated city " + city.Name,
		EntityType:  "city",
		EntityID:    city.ID.Hex(),
	})
	respond(w, http.StatusOK, map[string]interface{}{"city": city})
}

func (h *CityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Cities.DeleteCity(r.Context(), id.Hex()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.emit(r, actor, activity.Event{
		Action:      "delete_city",
		Category:    activity.CategoryMaster,
		Description: "deleted city",
		EntityType:  "city",
		EntityID:    id.Hex(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func applyCity(c *models.City, req *cityRequest) {
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.State != nil {
		c.State = strings.TrimSpace(*req.State)
	}
	if req.Pincode != nil {
		c.Pincode = *req.Pincode
	}
	if req.Location != nil {
		c.Location = req.Location
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
}
