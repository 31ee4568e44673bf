package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the process-wide logrus logger. Production environments log
// JSON for ingestion; everything else gets the human-readable text format.
func New(logLevel, environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(parseLevel(logLevel))

	if strings.ToLower(environment) == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func parseLevel(logLevel string) logrus.Level {
	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
