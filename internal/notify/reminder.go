package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-backoffice/internal/models"
)

// ExpiringVehicles finds vehicles with documents lapsing before a date.
type ExpiringVehicles interface {
	FindExpiringVehicles(ctx context.Context, before time.Time) ([]models.Vehicle, error)
}

// Reminder mails the office about vehicle documents nearing expiry on a
// cron schedule (with seconds field, e.g. "0 0 7 * * *").
type Reminder struct {
	vehicles ExpiringVehicles
	notifier Notifier
	to       string
	days     int
	logger   log.FieldLogger
	now      func() time.Time

	cron  *cron.Cron
	jobID cron.EntryID
}

func NewReminder(vehicles ExpiringVehicles, notifier Notifier, to string, days int, logger log.FieldLogger) *Reminder {
	if days <= 0 {
		days = 15
	}
	return &Reminder{
		vehicles: vehicles,
		notifier: notifier,
		to:       to,
		days:     days,
		logger:   logger,
		now:      time.Now,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Start schedules the check and starts the cron runner.
func (r *Reminder) Start(schedule string) error {
	id, err := r.cron.AddFunc(schedule, func() {
		if err := r.RunOnce(context.Background()); err != nil {
			r.logger.WithError(err).Error("document expiry check failed")
		}
	})
	if err != nil {
		return fmt.Errorf("error scheduling expiry reminder: %w", err)
	}
	r.jobID = id
	r.cron.Start()
	r.logger.WithField("schedule", schedule).Info("document expiry reminder scheduled")
	return nil
}

// Stop waits for a running check to finish.
func (r *Reminder) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce looks up vehicles expiring within the window and mails them.
func (r *Reminder) RunOnce(ctx context.Context) error {
	before := r.now().AddDate(0, 0, r.days)
	vehicles, err := r.vehicles.FindExpiringVehicles(ctx, before)
	if err != nil {
		return err
	}
	r.logger.WithField("count", len(vehicles)).Info("document expiry check")
	if len(vehicles) > 0 {
		r.notifier.DocumentsExpiring(ctx, r.to, vehicles, before)
	}
	return nil
}
