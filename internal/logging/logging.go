package logging

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-backoffice/internal/config"
)

// New builds the process logger from configuration.
func New(cfg *config.Config) *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stdout)

	if cfg.IsProduction() || cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
