package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ukydev/fleet-backoffice/internal/models"
)

// Notifier sends the domain's transactional emails. Every method is best
// effort: failures are logged and never returned.
type Notifier interface {
	TripAssigned(ctx context.Context, driver *models.User, trip *models.Trip)
	TripCompleted(ctx context.Context, clients []models.User, trip *models.Trip)
	EmailVerification(ctx context.Context, user *models.User, rawToken string)
	PasswordReset(ctx context.Context, user *models.User, rawToken string)
	DocumentsExpiring(ctx context.Context, to string, vehicles []models.Vehicle, before time.Time)
}

// Mailer renders messages and passes them to a Sender.
type Mailer struct {
	sender    Sender
	clientURL string
	logger    log.FieldLogger
	timeout   time.Duration
}

func NewMailer(sender Sender, clientURL string, logger log.FieldLogger) *Mailer {
	return &Mailer{
		sender:    sender,
		clientURL: strings.TrimSuffix(clientURL, "/"),
		logger:    logger,
		timeout:   15 * time.Second,
	}
}

func (m *Mailer) send(ctx context.Context, kind string, msg Message) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	err := m.sender.Send(ctx, msg)
	if err != nil {
		m.logger.WithFields(log.Fields{
			"kind": kind,
			"to":   msg.To,
		}).WithError(err).Error("failed to send email")
	}
	return err
}

func (m *Mailer) TripAssigned(ctx context.Context, driver *models.User, trip *models.Trip) {
	if driver == nil || driver.Email == "" {
		return
	}
	var route []string
	for _, c := range trip.Clients {
		route = append(route, fmt.Sprintf("  - %s: %s -> %s", c.ClientName, c.Origin, c.Destination))
	}
	body := fmt.Sprintf("Hello %s,\n\nYou have been assigned trip %s on vehicle %s, scheduled for %s.\n\nStops:\n%s\n\nDetails: %s/trips/%s\n",
		driver.Name, trip.TripNumber, trip.VehicleNumber,
		trip.ScheduledDate.Format("02 Jan 2006"), strings.Join(route, "\n"),
		m.clientURL, trip.ID.Hex())
	_ = m.send(ctx, "trip_assigned", Message{
		To:      []string{driver.Email},
		Subject: "New trip assigned: " + trip.TripNumber,
		Body:    body,
	})
}

// TripCompleted mails every client concurrently. One failed delivery does
// not stop the others.
func (m *Mailer) TripCompleted(ctx context.Context, clients []models.User, trip *models.Trip) {
	var g errgroup.Group
	g.SetLimit(4)
	for i := range clients {
		client := clients[i]
		if client.Email == "" {
			continue
		}
		g.Go(func() error {
			body := fmt.Sprintf("Hello %s,\n\nTrip %s has been delivered and its proof of delivery verified.\n\nView it at %s/trips/%s\n",
				client.Name, trip.TripNumber, m.clientURL, trip.ID.Hex())
			_ = m.send(ctx, "trip_completed", Message{
				To:      []string{client.Email},
				Subject: "Trip " + trip.TripNumber + " completed",
				Body:    body,
			})
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Mailer) EmailVerification(ctx context.Context, user *models.User, rawToken string) {
	link := fmt.Sprintf("%s/verify-email/%s", m.clientURL, rawToken)
	_ = m.send(ctx, "email_verification", Message{
		To:      []string{user.Email},
		Subject: "Verify your email address",
		Body:    fmt.Sprintf("Hello %s,\n\nPlease confirm your email address by opening:\n%s\n", user.Name, link),
	})
}

func (m *Mailer) PasswordReset(ctx context.Context, user *models.User, rawToken string) {
	link := fmt.Sprintf("%s/reset-password/%s", m.clientURL, rawToken)
	_ = m.send(ctx, "password_reset", Message{
		To:      []string{user.Email},
		Subject: "Your password reset token (valid for 10 minutes)",
		Body: fmt.Sprintf("Hello %s,\n\nForgot your password? Set a new one at:\n%s\n\nIf you didn't request this, please ignore this email.\n",
			user.Name, link),
	})
}

func (m *Mailer) DocumentsExpiring(ctx context.Context, to string, vehicles []models.Vehicle, before time.Time) {
	if to == "" || len(vehicles) == 0 {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The following vehicles have documents expiring before %s:\n\n", before.Format("02 Jan 2006"))
	for _, v := range vehicles {
		fmt.Fprintf(&b, "  %s:%s\n", v.RegistrationNumber, expiringDocs(v, before))
	}
	_ = m.send(ctx, "documents_expiring", Message{
		To:      []string{to},
		Subject: fmt.Sprintf("%d vehicle(s) with expiring documents", len(vehicles)),
		Body:    b.String(),
	})
}

func expiringDocs(v models.Vehicle, before time.Time) string {
	var out string
	check := func(name string, at *time.Time) {
		if at != nil && !at.After(before) {
			out += fmt.Sprintf(" %s %s", name, at.Format("02 Jan 2006"))
		}
	}
	check("insurance", v.InsuranceExpiry)
	check("fitness", v.FitnessExpiry)
	check("permit", v.PermitExpiry)
	return out
}

// Nop discards every notification.
type Nop struct{}

func (Nop) TripAssigned(context.Context, *models.User, *models.Trip)               {}
func (Nop) TripCompleted(context.Context, []models.User, *models.Trip)             {}
func (Nop) EmailVerification(context.Context, *models.User, string)                {}
func (Nop) PasswordReset(context.Context, *models.User, string)                    {}
func (Nop) DocumentsExpiring(context.Context, string, []models.Vehicle, time.Time) {}

var (
	_ Notifier = (*Mailer)(nil)
	_ Notifier = Nop{}
)
