package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// splitHook directs matched levels to its configured output.
type splitHook struct {
	output io.Writer
	levels []logrus.Level
}

// Fire is invoked when logrus tries to log any message.
func (hook *splitHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	for _, level := range hook.levels {
		if level == entry.Level {
			_, err := hook.output.Write([]byte(line))
			return err
		}
	}
	return nil
}

// Levels returns the log levels this hook is being applied to.
func (hook *splitHook) Levels() []logrus.Level {
	return hook.levels
}
