package activity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/models"
)

type recordingSink struct {
	mu      sync.Mutex
	name    string
	err     error
	block   bool
	entries []*models.ActivityLog
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(ctx context.Context, entry *models.ActivityLog) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func tripEvent() Event {
	return Event{
		Actor:       models.Actor{ID: primitive.NewObjectID(), Name: "Asha", Role: models.RoleAdmin},
		Action:      "trip.status",
		Category:    CategoryTrip,
		Description: "TRP-2405-0001 moved to in_progress",
		EntityType:  "trip",
		EntityID:    "abc",
	}
}

func TestLogger_DeliversToAllSinks(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	l := NewLogger(logger, Options{Now: func() time.Time { return fixedNow }}, a, b)

	l.Emit(context.Background(), tripEvent())
	l.Emit(context.Background(), tripEvent())
	require.NoError(t, l.Close(context.Background()))

	assert.Equal(t, 2, a.count())
	assert.Equal(t, 2, b.count())
	got := a.entries[0]
	assert.Equal(t, "trip.status", got.Action)
	assert.Equal(t, "Asha", got.ActorName)
	assert.Equal(t, models.RoleAdmin, got.ActorRole)
	assert.Equal(t, fixedNow, got.CreatedAt)
	assert.False(t, got.ID.IsZero())
}

func TestLogger_SinkFailureIsSwallowed(t *testing.T) {
	logger, hook := test.NewNullLogger()
	failing := &recordingSink{name: "mongo", err: errors.New("write concern error")}
	ok := &recordingSink{name: "mqtt"}
	l := NewLogger(logger, Options{}, failing, ok)

	l.Emit(context.Background(), tripEvent())
	require.NoError(t, l.Close(context.Background()))

	assert.Equal(t, 1, ok.count())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "failed to record activity", hook.LastEntry().Message)
	assert.Equal(t, "mongo", hook.LastEntry().Data["sink"])
}

func TestLogger_SlowSinkTimesOut(t *testing.T) {
	logger, hook := test.NewNullLogger()
	slow := &recordingSink{name: "slow", block: true}
	l := NewLogger(logger, Options{Timeout: 10 * time.Millisecond}, slow)

	l.Emit(context.Background(), tripEvent())
	require.NoError(t, l.Close(context.Background()))
	require.NotNil(t, hook.LastEntry())
	assert.ErrorIs(t, hook.LastEntry().Data["error"].(error), context.DeadlineExceeded)
}

func TestLogger_EmitAfterClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sink := &recordingSink{name: "a"}
	l := NewLogger(logger, Options{}, sink)
	require.NoError(t, l.Close(context.Background()))
	require.NoError(t, l.Close(context.Background()))

	assert.NotPanics(t, func() { l.Emit(context.Background(), tripEvent()) })
	assert.Zero(t, sink.count())
}

func TestEvent_FromRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/trips", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	e := tripEvent().FromRequest(req, "203.0.113.4")
	assert.Equal(t, "203.0.113.4", e.IP)
	assert.Equal(t, "curl/8.0", e.UserAgent)
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error, finished bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if finished {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeClient struct {
	mqtt.Client
	topic   string
	payload []byte
	token   *fakeToken
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.payload = payload.([]byte)
	return c.token
}

func TestMQTTSink(t *testing.T) {
	client := &fakeClient{token: newFakeToken(nil, true)}
	sink := NewMQTTSinkWithClient(client, "transport/")
	entry := &models.ActivityLog{Action: "payment.create", Category: CategoryPayment}

	require.NoError(t, sink.Write(context.Background(), entry))
	assert.Equal(t, "transport/activity/payment", client.topic)

	var decoded models.ActivityLog
	require.NoError(t, json.Unmarshal(client.payload, &decoded))
	assert.Equal(t, "payment.create", decoded.Action)

	assert.Equal(t, "transport/activity/general", sink.Topic(""))
}

func TestMQTTSink_Timeout(t *testing.T) {
	client := &fakeClient{token: newFakeToken(nil, false)}
	sink := NewMQTTSinkWithClient(client, "transport")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := sink.Write(ctx, &models.ActivityLog{Category: CategoryTrip})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type storeStub struct{ got *models.ActivityLog }

func (s *storeStub) InsertActivity(_ context.Context, e *models.ActivityLog) error {
	s.got = e
	return nil
}

func TestStoreSink(t *testing.T) {
	store := &storeStub{}
	sink := StoreSink{Store: store}
	entry := &models.ActivityLog{Action: "login"}
	require.NoError(t, sink.Write(context.Background(), entry))
	assert.Same(t, entry, store.got)
	assert.Equal(t, "mongo", sink.Name())
}
