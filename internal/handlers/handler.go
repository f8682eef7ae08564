// Package handlers implements the /api/v1 HTTP surface.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/auth"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/finance"
	"github.com/ukydev/fleet-backoffice/internal/httpx"
	"github.com/ukydev/fleet-backoffice/internal/middleware"
	"github.com/ukydev/fleet-backoffice/internal/models"
	"github.com/ukydev/fleet-backoffice/internal/notify"
	"github.com/ukydev/fleet-backoffice/internal/storage"
)

const maxJSONBody = 1 << 20

var (
	errInvalidJSON = apperr.BadRequest("invalid JSON body")
	errNotFound    = apperr.NotFound("resource not found")
)

// Settings are the request-level knobs taken from configuration.
type Settings struct {
	Production       bool
	CookieTTL        time.Duration
	UploadMaxBytes   int64
	RateLimitMax     int
	AuthRateLimitMax int
	RateLimitWindow  time.Duration
}

// Deps carries everything the handlers need. Collections are interfaces so
// tests can substitute mocks.
type Deps struct {
	Logger   log.FieldLogger
	Auth     *auth.Service
	Denylist auth.Denylist
	Tx       db.Transactor

	Users              db.UserCollection
	Vehicles           db.VehicleCollection
	Trips              db.TripCollection
	Counters           db.CounterCollection
	Payments           db.PaymentCollection
	Maintenance        db.MaintenanceCollection
	Activity           db.ActivityCollection
	Cities             db.CityCollection
	Expenses           db.ExpenseCollection
	Advances           db.AdvanceCollection
	DriverCalculations db.DriverCalculationCollection

	Storage   storage.ObjectStorage
	Notifier  notify.Notifier
	Events    activity.Emitter
	Validator *Validator
	Settings  Settings
	Now       func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// fail writes err as a {status, message} response.
func (d *Deps) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.Error(w, r, d.Logger, err)
}

// decode reads a JSON body into dst and validates it.
func (d *Deps) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.BadRequest("request body is empty")
		}
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return d.Validator.Struct(dst)
}

// emit records an audit event for the current request.
func (d *Deps) emit(r *http.Request, actor models.Actor, e activity.Event) {
	e.Actor = actor
	d.Events.Emit(r.Context(), e.FromRequest(r, middleware.ClientIP(r)))
}

type envelope struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

type listEnvelope struct {
	Status  string      `json:"status"`
	Results int         `json:"results"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
	Data    interface{} `json:"data"`
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	httpx.JSON(w, status, envelope{Status: "success", Data: data})
}

func respondList(w http.ResponseWriter, items interface{}, n int, total int64, q db.ListQuery) {
	httpx.JSON(w, http.StatusOK, listEnvelope{
		Status:  "success",
		Results: n,
		Total:   total,
		Page:    q.Page,
		Limit:   q.Limit,
		Data:    items,
	})
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	httpx.JSON(w, status, map[string]string{"status": "success", "message": message})
}

// currentUser returns the authenticated actor.
func currentUser(r *http.Request) (models.Actor, *models.Claims, error) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return models.Actor{}, nil, middleware.ErrNoUserContext
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return models.Actor{}, nil, auth.ErrInvalidToken
	}
	return models.Actor{ID: id, Name: claims.Name, Role: claims.Role}, claims, nil
}

func pathID(r *http.Request, name string) (primitive.ObjectID, error) {
	return db.ParseID(chi.URLParam(r, name))
}

func pathIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 {
		return 0, models.ErrClientIndex
	}
	return i, nil
}

// listQuery reads page, limit and sort ("-created_at,name") from the URL.
func listQuery(r *http.Request, sortable ...string) db.ListQuery {
	q := db.ListQuery{Filter: bson.M{}}
	q.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))

	allowed := make(map[string]bool, len(sortable))
	for _, f := range sortable {
		allowed[f] = true
	}
	for _, field := range strings.Split(r.URL.Query().Get("sort"), ",") {
		field = strings.TrimSpace(field)
		dir := 1
		if strings.HasPrefix(field, "-") {
			dir, field = -1, field[1:]
		}
		if allowed[field] {
			q.Sort = append(q.Sort, bson.E{Key: field, Value: dir})
		}
	}
	sorted := len(q.Sort) > 0
	q.Normalize()
	if !sorted {
		// leave the collection's own default order in place
		q.Sort = nil
	}
	return q
}

// queryID adds filter[key] = ObjectID(param) when the param is present.
func queryID(r *http.Request, q *db.ListQuery, param, key string) error {
	v := r.URL.Query().Get(param)
	if v == "" {
		return nil
	}
	id, err := db.ParseID(v)
	if err != nil {
		return apperr.BadRequest("invalid " + param)
	}
	q.Filter[key] = id
	return nil
}

// queryDate parses a YYYY-MM-DD or RFC 3339 query value.
func queryDate(r *http.Request, param string) (*time.Time, error) {
	v := r.URL.Query().Get(param)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.BadRequest("invalid " + param + " date")
}

// endOfDay moves a date-only upper bound to the last instant of that day.
func endOfDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		end := t.Add(24*time.Hour - time.Nanosecond)
		return &end
	}
	return t
}

func dateRange(from, to *time.Time) bson.M {
	m := bson.M{}
	if from != nil {
		m["$gte"] = *from
	}
	if to != nil {
		m["$lte"] = *to
	}
	return m
}

// findParty loads a user and checks it has one of roles.
func (d *Deps) findParty(r *http.Request, id primitive.ObjectID, roles ...models.Role) (*models.User, error) {
	u, err := d.Users.FindUserByID(r.Context(), id.Hex())
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if u.Role == role {
			return u, nil
		}
	}
	return nil, apperr.BadRequest(fmt.Sprintf("user %s is not a %s", u.Name, joinRoles(roles)))
}

func joinRoles(roles []models.Role) string {
	s := make([]string, len(roles))
	for i, r := range roles {
		s[i] = strings.ReplaceAll(string(r), "_", " ")
	}
	return strings.Join(s, " or ")
}

func formatAmount(v float64) string {
	return finance.Format(v)
}

func errFieldsRequired(fields ...string) error {
	return apperr.BadRequest(strings.Join(fields, ", ") + " required")
}
