package ladder

import "github.com/sirupsen/logrus"

// State is the in-process progress of a ladder run. It is threaded through
// each step of the loop and is never persisted.
type State struct {
	// DeviceType is the device's type, fixed for the run.
	DeviceType string
	// Iteration counts the outer loop, starting at 1.
	Iteration int
	// Failures counts update attempts found to have failed across the run.
	Failures int
	// Waits counts poll cycles spent waiting for the device within the
	// current iteration.
	Waits int
	// Target is the version requested in the current iteration.
	Target string
}

// next begins a new outer iteration.
func (s *State) next() {
	s.Iteration++
	s.Waits = 0
	s.Target = ""
}

func (s *State) fields() logrus.Fields {
	f := logrus.Fields{
		"iteration": s.Iteration,
		"failures":  s.Failures,
	}
	if s.Target != "" {
		f["target"] = s.Target
	}
	return f
}
