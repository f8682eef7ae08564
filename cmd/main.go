package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/auth"
	"github.com/ukydev/fleet-backoffice/internal/config"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/handlers"
	"github.com/ukydev/fleet-backoffice/internal/logging"
	"github.com/ukydev/fleet-backoffice/internal/middleware"
	"github.com/ukydev/fleet-backoffice/internal/notify"
	"github.com/ukydev/fleet-backoffice/internal/storage"
)

const shutdownTimeout = 15 * time.Second

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
		logger.WithError(err).Fatal("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.WithError(err).Warn("mongo disconnect failed")
		}
	}()
	logger.WithField("database", cfg.MongoDatabase).Info("Connected to MongoDB successfully!")

	store := db.NewStore(client, cfg.MongoDatabase, cfg.MongoTransactions)
	if err := store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	var (
		denylist auth.Denylist = auth.NewMemoryDenylist()
		sender   notify.Sender = notify.NewSMTPSender(smtpConfig(cfg))
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		denylist = auth.NewRedisDenylist(rdb)

		queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer queue.Close()
		sender = notify.NewQueue(queue)
		logger.WithField("redis", cfg.RedisAddr).Info("using redis for token revocation and mail queue")
	} else {
		logger.Warn("REDIS_ADDR not set, revocations are process-local and mail is sent inline")
	}

	var files storage.ObjectStorage = storage.Disabled{}
	if cfg.StorageEnabled() {
		s3store, err := storage.NewS3Storage(ctx, s3Config(cfg), logger)
		if err != nil {
			return err
		}
		if err := s3store.EnsureBucket(ctx); err != nil {
			return err
		}
		files = s3store
	} else {
		logger.Warn("S3 credentials not set, file uploads are disabled")
	}

	sinks := []activity.Sink{activity.StoreSink{Store: store.Activity}}
	if cfg.MQTTBrokerURL != "" {
		sink, err := activity.NewMQTTSink(cfg.MQTTBrokerURL, "backoffice-api-"+cfg.AppEnv, cfg.MQTTTopicPrefix, 10*time.Second)
		if err != nil {
			logger.WithError(err).Warn("activity will not be published to mqtt")
		} else {
			defer sink.Disconnect()
			sinks = append(sinks, sink)
		}
	}
	events := activity.NewLogger(logger, activity.Options{}, sinks...)

	validator, err := handlers.NewValidator()
	if err != nil {
		return err
	}

	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpire)
	if err != nil {
		return err
	}
	deps := &handlers.Deps{
		Logger:             logger,
		Auth:               authService,
		Denylist:           denylist,
		Tx:                 store,
		Users:              store.Users,
		Vehicles:           store.Vehicles,
		Trips:              store.Trips,
		Counters:           store.Counters,
		Payments:           store.Payments,
		Maintenance:        store.Maintenance,
		Activity:           store.Activity,
		Cities:             store.Cities,
		Expenses:           store.Expenses,
		Advances:           store.Advances,
		DriverCalculations: store.DriverCalculations,
		Storage:            files,
		Notifier:           notify.NewMailer(sender, cfg.ClientURL, logger),
		Events:             events,
		Validator:          validator,
		Settings:           settingsFromConfig(cfg),
	}
	authMW := middleware.NewAuthMiddleware(authService, denylist, store.Users, logger)
	srv := newServer(cfg.Port, handlers.NewRouter(deps, authMW, store))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(log.Fields{"port": cfg.Port, "env": cfg.AppEnv}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return events.Close(shutdownCtx)
	})
	return g.Wait()
}

func newServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func settingsFromConfig(cfg *config.Config) handlers.Settings {
	return handlers.Settings{
		Production:       cfg.IsProduction(),
		CookieTTL:        cfg.CookieTTL(),
		UploadMaxBytes:   cfg.UploadMaxBytes,
		RateLimitMax:     cfg.RateLimitMax,
		AuthRateLimitMax: cfg.AuthRateLimitMax,
		RateLimitWindow:  cfg.RateLimitWindow,
	}
}

func smtpConfig(cfg *config.Config) notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		TLS:      cfg.SMTPTLS,
	}
}

func s3Config(cfg *config.Config) storage.S3Config {
	return storage.S3Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
		PublicURL:    cfg.S3PublicURL,
	}
}
