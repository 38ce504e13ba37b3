package ladder

import "math/rand"

var randIntFunc func(int) int = rand.Intn

// Selector picks the next target version from the supported update versions
// of a device, ordered newest first.
type Selector interface {
	// Select returns the target and true, or false when there is no further
	// target.
	Select(versions []string) (string, bool)
}

// NewSelector returns a random selector when random is set, otherwise one that
// steps through the list by step.
func NewSelector(random bool, step int) Selector {
	if random {
		return &randomSelector{}
	}
	return &positionalSelector{step: step}
}

// positionalSelector picks the version 2*step entries from the end of the
// list, so the ladder climbs gradually from the oldest supported version.
type positionalSelector struct {
	step int
}

func (s *positionalSelector) Select(versions []string) (string, bool) {
	if len(versions) <= 1 {
		return "", false
	}
	i := len(versions) - 2*s.step
	if i < 0 || i >= len(versions) {
		return "", false
	}
	return versions[i], true
}

type randomSelector struct{}

func (s *randomSelector) Select(versions []string) (string, bool) {
	if len(versions) <= 1 {
		return "", false
	}
	return versions[randIntFunc(len(versions))], true
}
