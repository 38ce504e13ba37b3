package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// SubComponentField names the log field used to scope a component's logger
// further.
const SubComponentField = "subcomponent"

type Setter func(*logrus.Logger) error

var root = struct {
	logger *logrus.Logger
	mutex  *sync.Mutex
}{
	logger: func() *logrus.Logger {
		l := logrus.New()

		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		_ = Split(os.Stdout, os.Stderr)(l)

		return l
	}(),
	mutex: &sync.Mutex{},
}

type Logger interface {
	logrus.FieldLogger

	Writer() *io.PipeWriter
	WriterLevel(logrus.Level) *io.PipeWriter
}

func New(component string, setters ...Setter) Logger {
	for _, setter := range setters {
		// no errors handling for now
		_ = Set(setter)
	}
	return root.logger.WithField("component", component)
}

func Set(setter Setter) error {
	root.mutex.Lock()
	err := setter(root.logger)
	root.mutex.Unlock()
	return err
}

func Level(lvl string) Setter {
	l, err := logrus.ParseLevel(lvl)
	if err != nil {
		root.logger.WithError(err).Errorf("unable to parse provided level %q", lvl)
		l = logrus.DebugLevel
	}
	return func(r *logrus.Logger) error {
		r.SetLevel(l)
		return nil
	}
}

// Split directs progress messages (warn and below) to out and failures (error
// and above) to errOut. The logger's own output is discarded so that each
// entry is written exactly once.
func Split(out, errOut io.Writer) Setter {
	return func(r *logrus.Logger) error {
		hooks := make(logrus.LevelHooks)
		hooks.Add(&splitHook{out, []logrus.Level{
			logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel, logrus.TraceLevel}})
		hooks.Add(&splitHook{errOut, []logrus.Level{
			logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}})
		r.ReplaceHooks(hooks)
		r.SetOutput(io.Discard)
		return nil
	}
}
