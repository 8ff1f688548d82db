package logger

import (
	"io"
	"os"

	"otherly/backend/go/internal/models"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry with the structured fields every service shares.
// The With* methods return a child logger and leave the receiver untouched,
// so a base logger can be shared by concurrent page workers.
type Logger struct {
	entry *logrus.Entry
}

// Init configures the global logrus instance: JSON to stdout at the given level.
func Init(level logrus.Level) {
	InitWithOutput(level, os.Stdout)
}

// InitWithOutput is Init with an explicit writer.
func InitWithOutput(level logrus.Level, out io.Writer) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logrus.SetOutput(out)
	logrus.SetLevel(level)
}

// ParseLevel maps a config string to a logrus level, falling back to info.
func ParseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// New creates a Logger carrying the service name, trace id and user id.
func New(serviceName, traceID, userID string) *Logger {
	return &Logger{
		entry: logrus.WithFields(logrus.Fields{
			"service_name": serviceName,
			"trace_id":     traceID,
			"user_id":      userID,
		}),
	}
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(l)}
}

func (l *Logger) with(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithTrace returns a child logger with a new trace id.
func (l *Logger) WithTrace(traceID string) *Logger {
	return l.with("trace_id", traceID)
}

// WithField returns a child logger with one extra top-level field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

// WithRequest attaches the HTTP request description.
func (l *Logger) WithRequest(req models.RequestInfo) *Logger {
	return l.with("request_info", req)
}

// WithError attaches an error description.
func (l *Logger) WithError(err models.ErrorInfo) *Logger {
	return l.with("error", err)
}

// WithPayload attaches business data.
func (l *Logger) WithPayload(payload map[string]interface{}) *Logger {
	return l.with("payload", payload)
}

func (l *Logger) Info(message string) {
	l.entry.Info(message)
}

func (l *Logger) Warn(message string) {
	l.entry.Warn(message)
}

func (l *Logger) Error(message string) {
	l.entry.Error(message)
}

func (l *Logger) Debug(message string) {
	l.entry.Debug(message)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(message string) {
	l.entry.Fatal(message)
}
