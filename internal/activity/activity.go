// Package activity records audit events. Delivery is asynchronous and a
// failing sink never reaches the request that emitted the event.
package activity

import (
	"context"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/models"
)

// Categories used by the API.
const (
	CategoryAuth        = "auth"
	CategoryUser        = "user"
	CategoryVehicle     = "vehicle"
	CategoryTrip        = "trip"
	CategoryPayment     = "payment"
	CategoryMaintenance = "maintenance"
	CategoryMaster      = "master"
	CategoryFinance     = "finance"
)

// Event is one audit record before it is stamped and stored.
type Event struct {
	Actor       models.Actor
	Action      string
	Category    string
	Description string
	EntityType  string
	EntityID    string
	Details     map[string]interface{}
	IP          string
	UserAgent   string
}

// FromRequest copies the caller address and user agent into e.
func (e Event) FromRequest(r *http.Request, ip string) Event {
	e.IP = ip
	e.UserAgent = r.UserAgent()
	return e
}

// Emitter accepts audit events. Emit never blocks on storage and never fails.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Sink persists or forwards a stamped log entry.
type Sink interface {
	Name() string
	Write(ctx context.Context, entry *models.ActivityLog) error
}

// Options tune a Logger.
type Options struct {
	Buffer  int
	Timeout time.Duration
	Now     func() time.Time
}

// Logger fans events out to sinks from a single background goroutine.
type Logger struct {
	sinks   []Sink
	logger  log.FieldLogger
	timeout time.Duration
	now     func() time.Time

	events chan *models.ActivityLog
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewLogger starts a Logger writing to sinks.
func NewLogger(logger log.FieldLogger, opts Options, sinks ...Sink) *Logger {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := &Logger{
		sinks:   sinks,
		logger:  logger,
		timeout: opts.Timeout,
		now:     opts.Now,
		events:  make(chan *models.ActivityLog, opts.Buffer),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Emit stamps e and queues it. A full buffer drops the event with a warning.
func (l *Logger) Emit(_ context.Context, e Event) {
	entry := &models.ActivityLog{
		ID:          primitive.NewObjectID(),
		Actor:       e.Actor.ID,
		ActorName:   e.Actor.Name,
		ActorRole:   e.Actor.Role,
		Action:      e.Action,
		Category:    e.Category,
		Description: e.Description,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Details:     e.Details,
		IP:          e.IP,
		UserAgent:   e.UserAgent,
		CreatedAt:   l.now(),
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.events <- entry:
	default:
		l.logger.WithFields(log.Fields{
			"action":   e.Action,
			"category": e.Category,
		}).Warn("activity buffer full, event dropped")
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for entry := range l.events {
		l.deliver(entry)
	}
}

func (l *Logger) deliver(entry *models.ActivityLog) {
	for _, sink := range l.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		err := sink.Write(ctx, entry)
		cancel()
		if err != nil {
			l.logger.WithFields(log.Fields{
				"sink":   sink.Name(),
				"action": entry.Action,
			}).WithError(err).Error("failed to record activity")
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end.
func (l *Logger) Close(ctx context.Context) error {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.events)
		l.mu.Unlock()
	})
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

var (
	_ Emitter = (*Logger)(nil)
	_ Emitter = Nop{}
)
