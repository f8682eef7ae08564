// Command worker delivers queued mail and runs the document expiry reminder.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-backoffice/internal/config"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/logging"
	"github.com/ukydev/fleet-backoffice/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("worker stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for the worker")
	}

	sender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		TLS:      cfg.SMTPTLS,
	})

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency: 5,
		Queues:      map[string]int{notify.QueueMail: 1},
		Logger:      logger,
	})
	if err := srv.Start(newMux(sender, logger)); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	defer srv.Shutdown()

	if cfg.AdminEmail == "" {
		logger.Warn("ADMIN_EMAIL not set, document expiry reminder disabled")
		<-ctx.Done()
		return nil
	}

	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.WithError(err).Warn("mongo disconnect failed")
		}
	}()
	store := db.NewStore(client, cfg.MongoDatabase, cfg.MongoTransactions)

	mailer := notify.NewMailer(sender, cfg.ClientURL, logger)
	reminder := notify.NewReminder(store.Vehicles, mailer, cfg.AdminEmail, cfg.ReminderDays, logger)
	if err := reminder.Start(cfg.ReminderSchedule); err != nil {
		return err
	}
	defer reminder.Stop()

	<-ctx.Done()
	logger.Info("shutting down worker")
	return nil
}

func newMux(sender notify.Sender, logger log.FieldLogger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(notify.TaskTypeSendMail, &notify.MailHandler{Sender: sender, Logger: logger})
	return mux
}
