package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the API server and worker.
type Config struct {
	Port   string `envconfig:"PORT" default:"8080"`
	AppEnv string `envconfig:"NODE_ENV" default:"development"`

	MongoURI          string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase     string `envconfig:"MONGODB_DATABASE" default:"transport"`
	MongoTransactions bool   `envconfig:"MONGODB_TRANSACTIONS" default:"true"` // needs a replica set

	JWTSecret       string        `envconfig:"JWT_SECRET"`
	JWTExpire       time.Duration `envconfig:"JWT_EXPIRE" default:"24h"`
	JWTCookieExpire int           `envconfig:"JWT_COOKIE_EXPIRE" default:"7"` // days

	SMTPHost     string `envconfig:"SMTP_HOST" default:"127.0.0.1"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"no-reply@transport.local"`
	SMTPFromName string `envconfig:"SMTP_FROM_NAME" default:"Transport Office"`
	SMTPTLS      bool   `envconfig:"SMTP_TLS" default:"false"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	S3Endpoint     string `envconfig:"S3_ENDPOINT"`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket       string `envconfig:"S3_BUCKET" default:"transport-documents"`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey    string `envconfig:"S3_SECRET_KEY"`
	S3UsePathStyle bool   `envconfig:"S3_USE_PATH_STYLE" default:"true"`
	S3PublicURL    string `envconfig:"S3_PUBLIC_URL"`

	MQTTBrokerURL   string `envconfig:"MQTT_BROKER_URL"`
	MQTTTopicPrefix string `envconfig:"MQTT_TOPIC_PREFIX" default:"transport"`

	RateLimitMax     int           `envconfig:"RATE_LIMIT_MAX" default:"100"`
	RateLimitWindow  time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"15m"`
	AuthRateLimitMax int           `envconfig:"AUTH_RATE_LIMIT_MAX" default:"20"`

	ClientURL      string `envconfig:"CLIENT_URL" default:"http://localhost:3000"`
	UploadMaxBytes int64  `envconfig:"UPLOAD_MAX_BYTES" default:"10485760"`

	ReminderSchedule string `envconfig:"REMINDER_SCHEDULE" default:"0 0 7 * * *"`
	ReminderDays     int    `envconfig:"REMINDER_DAYS" default:"15"`
	AdminEmail       string `envconfig:"ADMIN_EMAIL"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("config: JWT_SECRET must be provided in production")
		}
		cfg.JWTSecret = "default-secret-key-change-in-production"
	}
	return &cfg, nil
}

// IsProduction returns true when the service runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// CookieTTL is how long the jwt cookie lives in the browser.
func (c *Config) CookieTTL() time.Duration {
	return time.Duration(c.JWTCookieExpire) * 24 * time.Hour
}

// StorageEnabled reports whether S3 credentials were supplied.
func (c *Config) StorageEnabled() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != ""
}
