package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is a shorthand for structured log fields.
type Fields map[string]interface{}

// Logger wraps logrus with the pipeline's logging conventions: JSON output,
// optional file rotation and service/search helpers used across services.
type Logger struct {
	entry *logrus.Entry
}

type Options struct {
	Level      string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func New(opts Options) *Logger {
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	var out io.Writer = os.Stdout
	if opts.FilePath != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}
	base.SetOutput(out)

	return &Logger{entry: logrus.NewEntry(base)}
}

func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.withKV(kv).Debug(msg) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.withKV(kv).Info(msg) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.withKV(kv).Warn(msg) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.withKV(kv).Error(msg) }

// LogService records one service operation with its duration and outcome.
func (l *Logger) LogService(service, operation string, duration time.Duration, fields map[string]interface{}, err error) {
	entry := l.entry.WithFields(logrus.Fields{
		"service":     service,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})
	if fields != nil {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	if err != nil {
		entry.WithError(err).Error("service operation failed")
		return
	}
	entry.Info("service operation completed")
}

// LogSearch records a search-session lifecycle event.
func (l *Logger) LogSearch(searchID string, userID int, event string, duration time.Duration, err error) {
	entry := l.entry.WithFields(logrus.Fields{
		"search_id":   searchID,
		"user_id":     userID,
		"event":       event,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("search event failed")
		return
	}
	entry.Info("search event")
}

// withKV folds alternating key/value pairs into fields, the way the rest of
// the codebase calls Info("msg", "key", value, ...).
func (l *Logger) withKV(kv []interface{}) *logrus.Entry {
	if len(kv) == 0 {
		return l.entry
	}
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return l.entry.WithFields(fields)
}
