// Package swutil provides the logging and error vocabulary shared by the
// dispatcher, registries, handlers, and configuration managers.
package swutil

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger instance. Every daemon entrypoint
// configures it once at startup from its --log-level flag.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLogLevel parses and applies a level name ("debug", "info", "warn", ...).
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetLogOutput redirects log output, used by tests to capture lines.
func SetLogOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat switches to JSON output, used by daemons running under a
// log-shipping supervisor.
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

// WithField returns a logger entry carrying one structured field.
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithFields returns a logger entry carrying several structured fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithHandler returns a logger scoped to a handler name, the agent's
// analogue of the teacher's WithDevice.
func WithHandler(name string) *logrus.Entry {
	return Logger.WithField("handler", name)
}

// WithTable returns a logger scoped to a database table name.
func WithTable(table string) *logrus.Entry {
	return Logger.WithField("table", table)
}

// WithResource returns a logger scoped to a resource kind and key, used
// for per-mutation tracing across the consumer/dispatcher/handler path.
func WithResource(kind, key string) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{"resource": kind, "key": key})
}
