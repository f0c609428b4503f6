// Package logger builds the structured logrus logger shared by both binaries.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a JSON logger writing to stdout.  Unknown level names fall
// back to info.  Every entry carries a "service" field.
func New(service, level string) *logrus.Logger {
	return NewWithOutput(os.Stdout, service, level)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(out io.Writer, service, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	l.AddHook(serviceHook(service))
	return l
}

// serviceHook stamps the service name on every entry.
type serviceHook string

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = string(h)
	}
	return nil
}

// WithRequestID returns an entry tagged with the request id, if any.
func WithRequestID(l *logrus.Logger, requestID string) *logrus.Entry {
	if requestID == "" {
		return logrus.NewEntry(l)
	}
	return l.WithField("request_id", requestID)
}
