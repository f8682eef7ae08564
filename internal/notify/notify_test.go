package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/models"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []Message
	fail map[string]bool
}

func (s *captureSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[msg.To[0]] {
		return errors.New("550 mailbox unavailable")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func sampleTrip() *models.Trip {
	return &models.Trip{
		ID:            primitive.NewObjectID(),
		TripNumber:    "TRP-2405-0007",
		VehicleNumber: "MH12AB1234",
		ScheduledDate: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		Clients: []models.TripClient{
			{ClientName: "Acme", Origin: "Pune", Destination: "Mumbai"},
		},
	}
}

func TestMailer_TripAssigned(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sender := &captureSender{}
	m := NewMailer(sender, "https://office.example.com/", logger)
	trip := sampleTrip()

	m.TripAssigned(context.Background(), &models.User{Name: "Ravi", Email: "ravi@example.com"}, trip)
	require.Len(t, sender.msgs, 1)
	msg := sender.msgs[0]
	assert.Equal(t, []string{"ravi@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "TRP-2405-0007")
	assert.Contains(t, msg.Body, "Acme: Pune -> Mumbai")
	assert.Contains(t, msg.Body, "https://office.example.com/trips/"+trip.ID.Hex())

	m.TripAssigned(context.Background(), nil, trip)
	assert.Len(t, sender.msgs, 1)
}

func TestMailer_TripCompletedIsBestEffort(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sender := &captureSender{fail: map[string]bool{"bad@example.com": true}}
	m := NewMailer(sender, "http://localhost:3000", logger)

	clients := []models.User{
		{Name: "A", Email: "a@example.com"},
		{Name: "Bad", Email: "bad@example.com"},
		{Name: "NoMail"},
		{Name: "C", Email: "c@example.com"},
	}
	m.TripCompleted(context.Background(), clients, sampleTrip())

	var to []string
	for _, msg := range sender.msgs {
		to = append(to, msg.To[0])
	}
	sort.Strings(to)
	assert.Equal(t, []string{"a@example.com", "c@example.com"}, to)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "failed to send email", hook.LastEntry().Message)
}

func TestMailer_TokenLinks(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sender := &captureSender{}
	m := NewMailer(sender, "http://localhost:3000", logger)
	user := &models.User{Name: "Neha", Email: "neha@example.com"}

	m.EmailVerification(context.Background(), user, "abc123")
	m.PasswordReset(context.Background(), user, "def456")
	require.Len(t, sender.msgs, 2)
	assert.Contains(t, sender.msgs[0].Body, "http://localhost:3000/verify-email/abc123")
	assert.Contains(t, sender.msgs[1].Body, "http://localhost:3000/reset-password/def456")
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

func TestQueue_Send(t *testing.T) {
	enq := &mockEnqueuer{}
	msg := Message{To: []string{"x@example.com"}, Subject: "hi", Body: "body"}
	enq.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		var got Message
		return task.Type() == TaskTypeSendMail &&
			json.Unmarshal(task.Payload(), &got) == nil &&
			got.Subject == "hi"
	})).Return(&asynq.TaskInfo{ID: "1"}, nil).Once()

	require.NoError(t, NewQueue(enq).Send(context.Background(), msg))
	enq.AssertExpectations(t)
}

func TestQueue_SendError(t *testing.T) {
	enq := &mockEnqueuer{}
	enq.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, errors.New("redis: connection refused"))

	err := NewQueue(enq).Send(context.Background(), Message{To: []string{"x@example.com"}})
	assert.ErrorContains(t, err, "enqueue mail")
}

func TestMailHandler(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sender := &captureSender{}
	h := &MailHandler{Sender: sender, Logger: logger}

	task, err := NewSendMailTask(Message{To: []string{"y@example.com"}, Subject: "queued"})
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "queued", sender.msgs[0].Subject)

	err = h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeSendMail, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	sender.fail = map[string]bool{"y@example.com": true}
	err = h.ProcessTask(context.Background(), task)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestSMTPSender_Compose(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "mail.example.com", Port: 587, From: "office@example.com", FromName: "Office"})
	raw := string(s.compose(Message{To: []string{"a@example.com", "b@example.com"}, Subject: "Hello", Body: "Line"}))

	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	require.True(t, ok)
	assert.Equal(t, "Line", body)
	assert.Contains(t, head, "From: Office <office@example.com>")
	assert.Contains(t, head, "To: a@example.com, b@example.com")
	assert.Contains(t, head, "Content-Type: text/plain; charset=UTF-8")

	html := string(s.compose(Message{To: []string{"a@example.com"}, HTML: true}))
	assert.Contains(t, html, "text/html")
}

func TestSMTPSender_NoRecipients(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1})
	assert.Error(t, s.Send(context.Background(), Message{}))
}

type expiringStub struct {
	before   time.Time
	vehicles []models.Vehicle
	err      error
}

func (s *expiringStub) FindExpiringVehicles(_ context.Context, before time.Time) ([]models.Vehicle, error) {
	s.before = before
	return s.vehicles, s.err
}

func TestReminder_RunOnce(t *testing.T) {
	logger, _ := test.NewNullLogger()
	now := time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)
	insurance := now.AddDate(0, 0, 3)
	permit := now.AddDate(1, 0, 0)
	store := &expiringStub{vehicles: []models.Vehicle{
		{RegistrationNumber: "KA01AA0001", InsuranceExpiry: &insurance, PermitExpiry: &permit},
	}}
	sender := &captureSender{}
	r := NewReminder(store, NewMailer(sender, "", logger), "office@example.com", 15, logger)
	r.now = func() time.Time { return now }

	require.NoError(t, r.RunOnce(context.Background()))
	assert.Equal(t, now.AddDate(0, 0, 15), store.before)
	require.Len(t, sender.msgs, 1)
	assert.Contains(t, sender.msgs[0].Body, "KA01AA0001: insurance 04 Jun 2024")
	assert.NotContains(t, sender.msgs[0].Body, "permit")

	store.err = errors.New("timeout")
	assert.Error(t, r.RunOnce(context.Background()))
}

func TestReminder_Start(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewReminder(&expiringStub{}, Nop{}, "", 0, logger)
	assert.Equal(t, 15, r.days)
	assert.Error(t, r.Start("not a schedule"))

	require.NoError(t, r.Start("0 0 7 * * *"))
	r.Stop()
}
