package tracefs

import "github.com/sirupsen/logrus"

// Logger is the minimal logging surface descriptors depend on, so either
// a no-op or a real backend can be injected without pulling a logging
// framework into every call site.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NewNoopLogger returns a logger that discards everything. It is the
// default for descriptors constructed without WithLogger, and the
// logger package tests use throughout.
func NewNoopLogger() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// logrusLogger adapts *logrus.Logger (or any *logrus.Entry-producing
// logger) to the package's logger interface. cmd/tracefsctl uses it when
// --verbose is set and the no-op logger otherwise.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps l, tagging every record with component=tracefs
// so it can be filtered out of a larger application's log stream.
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &logrusLogger{entry: l.WithField("component", "tracefs")}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
