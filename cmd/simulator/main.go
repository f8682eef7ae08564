// Command simulator drives a running API through the booking workflow:
// it registers parties, books trips on fresh vehicles, records advances and
// receipts, and moves trips along their lifecycle.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var routes = [][2]string{
	{"Pune", "Mumbai"},
	{"Mumbai", "Ahmedabad"},
	{"Nashik", "Pune"},
	{"Nagpur", "Hyderabad"},
	{"Indore", "Bhopal"},
	{"Surat", "Vadodara"},
	{"Kolhapur", "Belagavi"},
	{"Aurangabad", "Nagpur"},
}

var goods = []string{"steel coils", "cement", "onions", "textiles", "machine parts", "fertiliser"}

var vehicleMakes = map[string][]string{
	"truck":   {"Tata", "Ashok Leyland", "Eicher", "BharatBenz"},
	"trailer": {"Tata", "Ashok Leyland"},
	"tanker":  {"BharatBenz", "Volvo"},
}

// apiError is a non-2xx answer from the API.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{baseURL: baseURL, token: token, http: &http.Client{Timeout: 10 * time.Second}}
}

// do sends body as JSON and decodes the "data" member of the answer into out.
func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Token   string          `json:"token"`
		Data    json.RawMessage `json:"data"`
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &apiError{Status: resp.StatusCode, Message: envelope.Message}
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

func (c *apiClient) login(ctx context.Context, email, password string) error {
	data, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || body.Token == "" {
		return &apiError{Status: resp.StatusCode, Message: body.Message}
	}
	c.token = body.Token
	return nil
}

type idRef struct {
	ID string `json:"id"`
}

func (c *apiClient) createUser(ctx context.Context, role, name string) (string, error) {
	var out struct {
		User idRef `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/users", map[string]interface{}{
		"name":     name,
		"email":    fmt.Sprintf("sim-%s-%d@example.com", role, rand.Int63()),
		"password": "simulator-" + strconv.Itoa(rand.Intn(1e6)),
		"role":     role,
		"phone":    fmt.Sprintf("98%08d", rand.Intn(1e8)),
	}, &out)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", role, err)
	}
	return out.User.ID, nil
}

func randomRegistration() string {
	letters := "ABCDEFGHJKLMNPRSTUVWXYZ"
	return fmt.Sprintf("MH%02d%c%c%04d", 1+rand.Intn(50), letters[rand.Intn(len(letters))], letters[rand.Intn(len(letters))], rand.Intn(10000))
}

func (c *apiClient) createVehicle(ctx context.Context, driverID string) (string, error) {
	kinds := []string{"truck", "trailer", "tanker"}
	kind := kinds[rand.Intn(len(kinds))]
	makes := vehicleMakes[kind]

	var out struct {
		Vehicle idRef `json:"vehicle"`
	}
	err := c.do(ctx, http.MethodPost, "/vehicles", map[string]interface{}{
		"registration_number": randomRegistration(),
		"type":                kind,
		"make":                makes[rand.Intn(len(makes))],
		"year":                2015 + rand.Intn(10),
		"capacity":            10 + rand.Intn(30),
		"ownership":           "self",
		"driver":              driverID,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("create vehicle: %w", err)
	}
	return out.Vehicle.ID, nil
}

// tripPlan is the randomized content of one simulated booking.
type tripPlan struct {
	Origin      string
	Destination string
	Goods       string
	Weight      float64
	Rate        float64
	Advance     float64
	Cancel      bool
}

func newTripPlan(r *rand.Rand) tripPlan {
	route := routes[r.Intn(len(routes))]
	rate := float64(15000 + r.Intn(60)*500)
	return tripPlan{
		Origin:      route[0],
		Destination: route[1],
		Goods:       goods[r.Intn(len(goods))],
		Weight:      float64(5 + r.Intn(20)),
		Rate:        rate,
		Advance:     float64(int(rate*0.3/100) * 100),
		Cancel:      r.Intn(10) == 0,
	}
}

type tripRef struct {
	ID         string `json:"id"`
	TripNumber string `json:"trip_number"`
	Status     string `json:"status"`
}

// runTrip books one trip and walks it as far as the API allows without a
// proof of delivery.
func (c *apiClient) runTrip(ctx context.Context, plan tripPlan, vehicleID, driverID, clientID string, pause time.Duration) (tripRef, error) {
	var created struct {
		Trip tripRef `json:"trip"`
	}
	err := c.do(ctx, http.MethodPost, "/trips", map[string]interface{}{
		"vehicle":        vehicleID,
		"driver":         driverID,
		"scheduled_date": time.Now().Add(time.Hour),
		"clients": []map[string]interface{}{{
			"client":      clientID,
			"origin":      plan.Origin,
			"destination": plan.Destination,
			"goods":       plan.Goods,
			"weight":      plan.Weight,
			"rate":        plan.Rate,
		}},
	}, &created)
	if err != nil {
		return tripRef{}, fmt.Errorf("book trip: %w", err)
	}
	trip := created.Trip
	logger := log.WithFields(log.Fields{"trip": trip.TripNumber, "route": plan.Origin + " -> " + plan.Destination})
	logger.Info("Booked trip")

	if plan.Cancel {
		if err := c.setStatus(ctx, &trip, "cancelled", "simulated cancellation"); err != nil {
			return trip, err
		}
		logger.Info("Cancelled trip")
		return trip, nil
	}

	if plan.Advance > 0 {
		err := c.do(ctx, http.MethodPost, "/payments", map[string]interface{}{
			"type":         "client_receipt",
			"trip":         trip.ID,
			"client_index": 0,
			"amount":       plan.Advance,
			"method":       "bank_transfer",
			"purpose":      "booking advance",
		}, nil)
		if err != nil {
			return trip, fmt.Errorf("record advance: %w", err)
		}
		logger.WithField("amount", plan.Advance).Info("Recorded client advance")
	}

	if err := sleepCtx(ctx, pause); err != nil {
		return trip, err
	}
	if err := c.setStatus(ctx, &trip, "in_progress", "loaded and dispatched"); err != nil {
		return trip, err
	}
	logger.Info("Trip in progress, awaiting proof of delivery")
	return trip, nil
}

func (c *apiClient) setStatus(ctx context.Context, trip *tripRef, status, note string) error {
	var out struct {
		Trip tripRef `json:"trip"`
	}
	if err := c.do(ctx, http.MethodPatch, "/trips/"+trip.ID+"/status", map[string]string{"status": status, "note": note}, &out); err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	trip.Status = out.Trip.Status
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type simConfig struct {
	APIURL      string
	Token       string
	Email       string
	Password    string
	Trips       int
	Concurrency int
	Pause       time.Duration
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return n
		}
	}
	return def
}

func loadSimConfig() simConfig {
	cfg := simConfig{
		APIURL:      os.Getenv("API_BASE_URL"),
		Token:       os.Getenv("SIM_AUTH_TOKEN"),
		Email:       os.Getenv("SIM_EMAIL"),
		Password:    os.Getenv("SIM_PASSWORD"),
		Trips:       envInt("SIM_TRIPS", 10),
		Concurrency: envInt("SIM_CONCURRENCY", 4),
		Pause:       time.Duration(envInt("SIM_TICK_SECONDS", 2)) * time.Second,
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:8080/api/v1"
	}
	return cfg
}

func simulate(ctx context.Context, cfg simConfig) (int, error) {
	c := newAPIClient(cfg.APIURL, cfg.Token)
	if c.token == "" {
		if cfg.Email == "" {
			return 0, errors.New("set SIM_AUTH_TOKEN or SIM_EMAIL and SIM_PASSWORD for an admin account")
		}
		if err := c.login(ctx, cfg.Email, cfg.Password); err != nil {
			return 0, fmt.Errorf("login: %w", err)
		}
	}

	clientID, err := c.createUser(ctx, "client", "Simulated Traders")
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	results := make(chan tripRef, cfg.Trips)
	for i := 0; i < cfg.Trips; i++ {
		i := i
		seed := time.Now().UnixNano() + int64(i)
		g.Go(func() error {
			driverID, err := c.createUser(gctx, "driver", fmt.Sprintf("Sim Driver %d", i+1))
			if err != nil {
				return err
			}
			vehicleID, err := c.createVehicle(gctx, driverID)
			if err != nil {
				return err
			}
			trip, err := c.runTrip(gctx, newTripPlan(rand.New(rand.NewSource(seed))), vehicleID, driverID, clientID, cfg.Pause)
			if err != nil {
				return err
			}
			results <- trip
			return nil
		})
	}
	err = g.Wait()
	close(results)
	return len(results), err
}

func main() {
	cfg := loadSimConfig()
	log.WithFields(log.Fields{
		"api_url":     cfg.APIURL,
		"trips":       cfg.Trips,
		"concurrency": cfg.Concurrency,
	}).Info("Starting booking simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := simulate(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("completed", n).Fatal("Simulation failed")
	}
	log.WithField("trips", n).Info("Simulation completed")
}
