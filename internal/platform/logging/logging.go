// Package logging builds the structured loggers shared by commands and services.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultLevel is used when no level or an unknown level is configured.
const DefaultLevel = logrus.InfoLevel

// New returns a JSON logger writing to stderr tagged with service.
func New(service, level string) *logrus.Entry {
	return NewWithWriter(os.Stderr, service, level)
}

// NewWithWriter returns a JSON logger writing to w tagged with service.
func NewWithWriter(w io.Writer, service, level string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(ParseLevel(level))

	service = strings.TrimSpace(service)
	if service == "" {
		return logrus.NewEntry(logger)
	}
	return logger.WithField("service", service)
}

// ParseLevel maps a level name to a logrus level, falling back to DefaultLevel.
func ParseLevel(level string) logrus.Level {
	level = strings.TrimSpace(level)
	if level == "" {
		return DefaultLevel
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return DefaultLevel
	}
	return parsed
}

// Discard returns a logger that drops every entry.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// OrDiscard returns logger or a discarding logger when nil.
func OrDiscard(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger == nil {
		return Discard()
	}
	return logger
}
