package testoutput

import (
	"io"
	"os"
	"testing"

	"github.com/balena-os/hup-ladder/pkg/logging"
	"github.com/sirupsen/logrus"
)

// New returns a writer that writes strings (assuming lines) to the testing
// logger.
func New(t testing.TB) io.Writer {
	return &testoutput{t}
}

// Logger wraps a logger at the call point to collect its downstream calls.
func Logger(t testing.TB, logger logging.Logger) logging.Logger {
	l := logger.WithFields(logrus.Fields{})
	_ = Setter(t)(l.Logger)
	return l
}

// Setter may be given to logging to configure the output to be sent to the
// testing facade to be interlaced with test output. You should not use parallel
// tests with this set as they would conflict in that they'd write to the wrong
// test or write to the Revert'd output if they aren't synchronous.
func Setter(t testing.TB) func(*logrus.Logger) error {
	return func(l *logrus.Logger) error {
		l.ReplaceHooks(make(logrus.LevelHooks))
		l.SetOutput(New(t))
		l.SetLevel(logrus.DebugLevel)
		return nil
	}
}

// Capture routes the logger's output to w in addition to the testing facade so
// tests may assert on what was logged.
func Capture(t testing.TB, w io.Writer) func(*logrus.Logger) error {
	return func(l *logrus.Logger) error {
		l.ReplaceHooks(make(logrus.LevelHooks))
		l.SetOutput(io.MultiWriter(New(t), w))
		l.SetLevel(logrus.DebugLevel)
		return nil
	}
}

// Revert restores the logger output to the split stdout and stderr streams.
func Revert() func(*logrus.Logger) error {
	return logging.Split(os.Stdout, os.Stderr)
}

type testoutput struct {
	t testing.TB
}

func (l *testoutput) Write(p []byte) (n int, err error) {
	l.t.Logf("%s", p)
	return len(p), nil
}
