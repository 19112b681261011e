// Package logging emits the structured JSON event lines shared by every swarm
// component: one object per line carrying timestamp, level, component,
// event_type and instance alongside event-specific fields.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a logger that writes JSON events to stderr tagged with the
// component and instance names.
func New(component, instance string) *logrus.Entry {
	return NewWithWriter(os.Stderr, component, instance)
}

// NewWithWriter is New with an explicit destination. Tests use it to capture output.
func NewWithWriter(w io.Writer, component, instance string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	return logger.WithFields(logrus.Fields{
		"component": component,
		"instance":  instance,
	})
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// Event logs a named event at info level.
func Event(log *logrus.Entry, eventType string, fields logrus.Fields) {
	log.WithFields(fields).WithField("event_type", eventType).Info(eventType)
}

// Warn logs a named event at warning level with the error attached.
func Warn(log *logrus.Entry, eventType string, err error, fields logrus.Fields) {
	log.WithFields(fields).WithField("event_type", eventType).WithError(err).Warn(eventType)
}
