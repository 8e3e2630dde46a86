// Package logging builds the process-wide structured logger from the §6
// CLI surface, the way common/logger.go's LoggerConfig/NewLogger pair
// builds a *logrus.Logger from level/format/service fields — retargeted
// at si-core's --verbose/--log-json/--force-color/--no-color flags
// instead of a fixed LogLevel/Format pair.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"

	"eve.evalgo.org/internal/config"
)

// New builds a base *logrus.Entry from a parsed LoggingConfig, carrying
// service/version fields on every subsequent log call. Verbose 0 is Info,
// 1 is Debug, 2+ is Trace — each repeated -v drops the floor by one
// level, matching the CLI's "integer log level" surface from spec §6.
func New(cfg config.LoggingConfig, service, version string) *logrus.Entry {
	logger := logrus.New()

	switch {
	case cfg.Verbose >= 2:
		logger.SetLevel(logrus.TraceLevel)
	case cfg.Verbose == 1:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
			ForceColors:     cfg.ForceColor,
			DisableColors:   cfg.NoColor,
		})
	}

	return logger.WithFields(logrus.Fields{"service": service, "version": version})
}
