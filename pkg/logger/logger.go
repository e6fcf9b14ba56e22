package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New creates the shared logger instance. Output is always JSON so log
// shippers and the debug UI parse entries the same way.
func New() *logrus.Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	})
	log.SetOutput(os.Stdout)

	// Environment wins until the config file is loaded; SetLevel is called
	// again once configuration is available.
	SetLevel(log, os.Getenv("LOG_LEVEL"))

	return log
}

// SetLevel applies a textual log level to an existing logger. Unknown values
// fall back to info.
func SetLevel(log *logrus.Logger, level string) {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
}

// ForComponent returns an entry tagged with the originating component. All
// long-lived services log through one of these so entries can be filtered
// per subsystem.
func ForComponent(log *logrus.Logger, component string) *logrus.Entry {
	return log.WithField("component", component)
}

// ForDomain returns an entry tagged with an integration domain and its config
// entry ID. Adapters and coordinators log through this so every line of a
// failing integration carries enough context to locate the entry.
func ForDomain(log *logrus.Logger, domain, entryID string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"domain":   domain,
		"entry_id": entryID,
	})
}
