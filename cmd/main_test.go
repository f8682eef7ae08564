package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ukydev/fleet-backoffice/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:             "9090",
		AppEnv:           "production",
		JWTCookieExpire:  7,
		UploadMaxBytes:   5 << 20,
		RateLimitMax:     300,
		RateLimitWindow:  10 * time.Minute,
		AuthRateLimitMax: 5,
		SMTPHost:         "smtp.example.com",
		SMTPPort:         465,
		SMTPUsername:     "mailer",
		SMTPPassword:     "secret",
		SMTPFrom:         "office@example.com",
		SMTPFromName:     "Office",
		SMTPTLS:          true,
		S3Endpoint:       "http://minio:9000",
		S3Region:         "ap-south-1",
		S3Bucket:         "docs",
		S3AccessKey:      "key",
		S3SecretKey:      "shh",
		S3UsePathStyle:   true,
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := settingsFromConfig(testConfig())

	assert.True(t, s.Production)
	assert.Equal(t, 7*24*time.Hour, s.CookieTTL)
	assert.Equal(t, int64(5<<20), s.UploadMaxBytes)
	assert.Equal(t, 300, s.RateLimitMax)
	assert.Equal(t, 5, s.AuthRateLimitMax)
	assert.Equal(t, 10*time.Minute, s.RateLimitWindow)
}

func TestSMTPConfig(t *testing.T) {
	c := smtpConfig(testConfig())

	assert.Equal(t, "smtp.example.com", c.Host)
	assert.Equal(t, 465, c.Port)
	assert.Equal(t, "mailer", c.Username)
	assert.Equal(t, "Office", c.FromName)
	assert.True(t, c.TLS)
	assert.Zero(t, c.Timeout)
}

func TestS3Config(t *testing.T) {
	c := s3Config(testConfig())

	assert.Equal(t, "http://minio:9000", c.Endpoint)
	assert.Equal(t, "ap-south-1", c.Region)
	assert.Equal(t, "docs", c.Bucket)
	assert.True(t, c.UsePathStyle)
	assert.Empty(t, c.PublicURL)
}

func TestNewServer(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := newServer("9090", h)

	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, 10*time.Second, srv.ReadHeaderTimeout)
	assert.Greater(t, srv.IdleTimeout, srv.WriteTimeout)

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}
