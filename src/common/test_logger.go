package common

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogLevel is the level used by the loggers of unit tests.
const TestLogLevel = logrus.DebugLevel

// testWriter forwards log lines to t.Log, so output only shows for failed or
// verbose tests.
type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(d []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(d), "\n"))
	return len(d), nil
}

// NewTestLogger returns a logrus Logger that writes through t.Log.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.Out = testWriter{t: t}
	logger.Level = level
	return logger
}

// NewTestEntry returns a logrus Entry for the named component, backed by
// NewTestLogger.
func NewTestEntry(t testing.TB, component string) *logrus.Entry {
	return NewTestLogger(t, TestLogLevel).WithField("component", component)
}
