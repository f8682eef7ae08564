package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/auth"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/middleware"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

// MockUserCollection is a mock implementation of UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) InsertUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByToken(ctx context.Context, field db.TokenField, hashed string) (*models.User, error) {
	args := m.Called(ctx, field, hashed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) ListUsers(ctx context.Context, q db.ListQuery) ([]models.User, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.User), args.Get(1).(int64), args.Error(2)
}

func (m *MockUserCollection) UpdateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserCollection) DeleteUser(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserCollection) UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockVehicleCollection is a mock implementation of VehicleCollection
type MockVehicleCollection struct {
	mock.Mock
}

func (m *MockVehicleCollection) InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	args := m.Called(ctx, vehicle)
	return args.Error(0)
}

func (m *MockVehicleCollection) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *MockVehicleCollection) ListVehicles(ctx context.Context, q db.ListQuery) ([]models.Vehicle, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.Vehicle), args.Get(1).(int64), args.Error(2)
}

func (m *MockVehicleCollection) UpdateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	args := m.Called(ctx, vehicle)
	return args.Error(0)
}

func (m *MockVehicleCollection) SetVehicleStatus(ctx context.Context, id primitive.ObjectID, status models.VehicleStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockVehicleCollection) DeleteVehicle(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockVehicleCollection) FindExpiringVehicles(ctx context.Context, before time.Time) ([]models.Vehicle, error) {
	args := m.Called(ctx, before)
	return args.Get(0).([]models.Vehicle), args.Error(1)
}

// MockTripCollection is a mock implementation of TripCollection
type MockTripCollection struct {
	mock.Mock
}

func (m *MockTripCollection) InsertTrip(ctx context.Context, trip *models.Trip) error {
	args := m.Called(ctx, trip)
	return args.Error(0)
}

func (m *MockTripCollection) FindTripByID(ctx context.Context, id string) (*models.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockTripCollection) ListTrips(ctx context.Context, q db.ListQuery) ([]models.Trip, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.Trip), args.Get(1).(int64), args.Error(2)
}

func (m *MockTripCollection) SaveTrip(ctx context.Context, trip *models.Trip) error {
	args := m.Called(ctx, trip)
	return args.Error(0)
}

func (m *MockTripCollection) DeleteTrip(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTripCollection) HasActiveTrip(ctx context.Context, vehicleID primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, vehicleID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTripCollection) FindTrips(ctx context.Context, q db.TripQuery) ([]models.Trip, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.Trip), args.Error(1)
}

// MockCounterCollection is a mock implementation of CounterCollection
type MockCounterCollection struct {
	mock.Mock
}

func (m *MockCounterCollection) GetNext(ctx context.Context, name string, opts db.CounterOptions) (db.Sequence, error) {
	args := m.Called(ctx, name, opts)
	return args.Get(0).(db.Sequence), args.Error(1)
}

// MockPaymentCollection is a mock implementation of PaymentCollection
type MockPaymentCollection struct {
	mock.Mock
}

func (m *MockPaymentCollection) InsertPayment(ctx context.Context, payment *models.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentCollection) FindPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentCollection) ListPayments(ctx context.Context, q db.ListQuery) ([]models.Payment, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.Payment), args.Get(1).(int64), args.Error(2)
}

func (m *MockPaymentCollection) DeletePayment(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockMaintenanceCollection is a mock implementation of MaintenanceCollection
type MockMaintenanceCollection struct {
	mock.Mock
}

func (m *MockMaintenanceCollection) InsertMaintenance(ctx context.Context, rec *models.Maintenance) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockMaintenanceCollection) FindMaintenanceByID(ctx context.Context, id string) (*models.Maintenance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Maintenance), args.Error(1)
}

func (m *MockMaintenanceCollection) ListMaintenance(ctx context.Context, q db.ListQuery) ([]models.Maintenance, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.Maintenance), args.Get(1).(int64), args.Error(2)
}

func (m *MockMaintenanceCollection) UpdateMaintenance(ctx context.Context, rec *models.Maintenance) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockMaintenanceCollection) DeleteMaintenance(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockActivityCollection is a mock implementation of ActivityCollection
type MockActivityCollection struct {
	mock.Mock
}

func (m *MockActivityCollection) InsertActivity(ctx context.Context, entry *models.ActivityLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockActivityCollection) ListActivity(ctx context.Context, q db.ListQuery) ([]models.ActivityLog, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.ActivityLog), args.Get(1).(int64), args.Error(2)
}

// MockCityCollection is a mock implementation of CityCollection
type MockCityCollection struct {
	mock.Mock
}

func (m *MockCityCollection) InsertCity(ctx context.Context, city *models.City) error {
	args := m.Called(ctx, city)
	return args.Error(0)
}

func (m *MockCityCollection) FindCityByID(ctx context.Context, id string) (*models.City, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.City), args.Error(1)
}

func (m *MockCityCollection) ListCities(ctx context.Context, q db.ListQuery) ([]models.City, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.City), args.Get(1).(int64), args.Error(2)
}

func (m *MockCityCollection) UpdateCity(ctx context.Context, city *models.City) error {
	args := m.Called(ctx, city)
	return args.Error(0)
}

func (m *MockCityCollection) DeleteCity(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockExpenseCollection is a mock implementation of ExpenseCollection
type MockExpenseCollection struct {
	mock.Mock
}

func (m *MockExpenseCollection) InsertExpense(ctx context.Context, expense *models.Expense) error {
	args := m.Called(ctx, expense)
	return args.Error(0)
}

func (m *MockExpenseCollection) FindExpenseByID(ctx context.Context, id string) (*models.Expense, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Expense), args.Error(1)
}

func (m *MockExpenseCollection) ListExpenses(ctx context.Context, q db.ListQuery) ([]models.Expense, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.Expense), args.Get(1).(int64), args.Error(2)
}

func (m *MockExpenseCollection) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	args := m.Called(ctx, expense)
	return args.Error(0)
}

func (m *MockExpenseCollection) DeleteExpense(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAdvanceCollection is a mock implementation of AdvanceCollection
type MockAdvanceCollection struct {
	mock.Mock
}

func (m *MockAdvanceCollection) InsertAdvance(ctx context.Context, advance *models.Advance) error {
	args := m.Called(ctx, advance)
	return args.Error(0)
}

func (m *MockAdvanceCollection) FindAdvanceByID(ctx context.Context, id string) (*models.Advance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Advance), args.Error(1)
}

func (m *MockAdvanceCollection) ListAdvances(ctx context.Context, q db.ListQuery) ([]models.Advance, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.Advance), args.Get(1).(int64), args.Error(2)
}

func (m *MockAdvanceCollection) UpdateAdvance(ctx context.Context, advance *models.Advance) error {
	args := m.Called(ctx, advance)
	return args.Error(0)
}

func (m *MockAdvanceCollection) DeleteAdvance(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAdvanceCollection) FindUnsettledAdvances(ctx context.Context, recipient primitive.ObjectID, from, to time.Time) ([]models.Advance, error) {
	args := m.Called(ctx, recipient, from, to)
	return args.Get(0).([]models.Advance), args.Error(1)
}

func (m *MockAdvanceCollection) MarkSettled(ctx context.Context, ids []primitive.ObjectID, calculation primitive.ObjectID) error {
	args := m.Called(ctx, ids, calculation)
	return args.Error(0)
}

func (m *MockAdvanceCollection) ReleaseSettled(ctx context.Context, calculation primitive.ObjectID) error {
	args := m.Called(ctx, calculation)
	return args.Error(0)
}

// MockDriverCalculationCollection is a mock implementation of DriverCalculationCollection
type MockDriverCalculationCollection struct {
	mock.Mock
}

func (m *MockDriverCalculationCollection) InsertDriverCalculation(ctx context.Context, calc *models.DriverCalculation) error {
	args := m.Called(ctx, calc)
	return args.Error(0)
}

func (m *MockDriverCalculationCollection) FindDriverCalculationByID(ctx context.Context, id string) (*models.DriverCalculation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DriverCalculation), args.Error(1)
}

func (m *MockDriverCalculationCollection) ListDriverCalculations(ctx context.Context, q db.ListQuery) ([]models.DriverCalculation, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.DriverCalculation), args.Get(1).(int64), args.Error(2)
}

func (m *MockDriverCalculationCollection) DeleteDriverCalculation(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockNotifier records which notifications were sent.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) TripAssigned(ctx context.Context, driver *models.User, trip *models.Trip) {
	m.Called(ctx, driver, trip)
}

func (m *MockNotifier) TripCompleted(ctx context.Context, clients []models.User, trip *models.Trip) {
	m.Called(ctx, clients, trip)
}

func (m *MockNotifier) EmailVerification(ctx context.Context, user *models.User, rawToken string) {
	m.Called(ctx, user, rawToken)
}

func (m *MockNotifier) PasswordReset(ctx context.Context, user *models.User, rawToken string) {
	m.Called(ctx, user, rawToken)
}

func (m *MockNotifier) DocumentsExpiring(ctx context.Context, to string, vehicles []models.Vehicle, before time.Time) {
	m.Called(ctx, to, vehicles, before)
}

// passthroughTx runs the function without a session and counts calls.
type passthroughTx struct {
	calls int
}

func (p *passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

// eventRecorder keeps every emitted audit event.
type eventRecorder struct {
	mu     sync.Mutex
	events []activity.Event
}

func (e *eventRecorder) Emit(_ context.Context, ev activity.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventRecorder) actions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Action
	}
	return out
}

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "https://files.test/" + key, nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

// testEnv wires a router over mocks.
type testEnv struct {
	t        *testing.T
	deps     *Deps
	router   http.Handler
	authSvc  *auth.Service
	denylist *auth.MemoryDenylist

	users        *MockUserCollection
	vehicles     *MockVehicleCollection
	trips        *MockTripCollection
	counters     *MockCounterCollection
	payments     *MockPaymentCollection
	maintenance  *MockMaintenanceCollection
	activityLogs *MockActivityCollection
	cities       *MockCityCollection
	expenses     *MockExpenseCollection
	advances     *MockAdvanceCollection
	calcs        *MockDriverCalculationCollection
	notifier     *MockNotifier
	tx           *passthroughTx
	events       *eventRecorder
	storage      *memStorage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	authSvc, err := auth.NewService("handler-test-secret", time.Hour)
	require.NoError(t, err)
	validator, err := NewValidator()
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	env := &testEnv{
		t:            t,
		authSvc:      authSvc,
		denylist:     auth.NewMemoryDenylist(),
		users:        new(MockUserCollection),
		vehicles:     new(MockVehicleCollection),
		trips:        new(MockTripCollection),
		counters:     new(MockCounterCollection),
		payments:     new(MockPaymentCollection),
		maintenance:  new(MockMaintenanceCollection),
		activityLogs: new(MockActivityCollection),
		cities:       new(MockCityCollection),
		expenses:     new(MockExpenseCollection),
		advances:     new(MockAdvanceCollection),
		calcs:        new(MockDriverCalculationCollection),
		notifier:     new(MockNotifier),
		tx:           &passthroughTx{},
		events:       &eventRecorder{},
		storage:      newMemStorage(),
	}
	env.deps = &Deps{
		Logger:             logger,
		Auth:               authSvc,
		Denylist:           env.denylist,
		Tx:                 env.tx,
		Users:              env.users,
		Vehicles:           env.vehicles,
		Trips:              env.trips,
		Counters:           env.counters,
		Payments:           env.payments,
		Maintenance:        env.maintenance,
		Activity:           env.activityLogs,
		Cities:             env.cities,
		Expenses:           env.expenses,
		Advances:           env.advances,
		DriverCalculations: env.calcs,
		Storage:            env.storage,
		Notifier:           env.notifier,
		Events:             env.events,
		Validator:          validator,
		Settings:           Settings{CookieTTL: time.Hour, RateLimitMax: 10000, AuthRateLimitMax: 10000},
		Now:                func() time.Time { return testNow },
	}
	authMW := middleware.NewAuthMiddleware(authSvc, env.denylist, nil, logger)
	env.router = NewRouter(env.deps, authMW, nil)
	return env
}

func newTestUser(role models.Role) *models.User {
	return &models.User{
		ID:       primitive.NewObjectID(),
		Name:     string(role) + " user",
		Email:    string(role) + "@example.com",
		Role:     role,
		IsActive: true,
	}
}

// do sends a JSON request as user; user may be nil for public routes.
func (e *testEnv) do(method, path string, body interface{}, user *models.User) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(e.t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return e.send(req, user)
}

func (e *testEnv) send(req *http.Request, user *models.User) *httptest.ResponseRecorder {
	e.t.Helper()
	if user != nil {
		token, err := e.authSvc.GenerateToken(user)
		require.NoError(e.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// decodeData unmarshals the "data" member of a success envelope.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var env struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.Equal(t, "success", env.Status, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Message
}
