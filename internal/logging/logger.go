package logging

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zplace/internal/config"
)

// NewLogger builds the logger handed to the placement engine and services.
func NewLogger(cfg *config.Config) *log.Logger {
	l := log.New()
	l.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	l.SetLevel(parseLevel(cfg.LogLevel))
	return l
}

// InitLogger applies the configured level and format to the standard logger,
// which the repositories and the metrics endpoint log through.
func InitLogger(cfg *config.Config) {
	log.SetLevel(parseLevel(cfg.LogLevel))
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
}

// parseLevel maps a level name to a logrus level
func parseLevel(logLevel string) log.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	default:
		return log.ErrorLevel
	}
}
