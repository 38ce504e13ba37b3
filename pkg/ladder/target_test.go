package ladder

import (
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
)

func TestSelectNoTarget(t *testing.T) {
	selectors := map[string]Selector{
		"positional": NewSelector(false, 1),
		"random":     NewSelector(true, 1),
	}
	for name, s := range selectors {
		for _, versions := range [][]string{nil, {}, {"2.88.4"}} {
			t.Run(fmt.Sprintf("%s(%d)", name, len(versions)), func(t *testing.T) {
				_, ok := s.Select(versions)
				assert.Check(t, !ok)
			})
		}
	}
}

func TestSelectPositional(t *testing.T) {
	versions := []string{"2.88.4", "2.80.0", "2.70.0", "2.60.0", "2.55.0"}
	cases := []struct {
		step     int
		expected string
		ok       bool
	}{
		{step: 1, expected: "2.60.0", ok: true},
		{step: 2, expected: "2.80.0", ok: true},
		{step: 3, ok: false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("step=%d", tc.step), func(t *testing.T) {
			target, ok := NewSelector(false, tc.step).Select(versions)
			assert.Equal(t, ok, tc.ok)
			assert.Equal(t, target, tc.expected)
		})
	}
}

func TestSelectRandomMembership(t *testing.T) {
	versions := []string{"2.88.4", "2.80.0", "2.70.0", "2.60.0", "2.55.0"}
	member := make(map[string]bool)
	for _, v := range versions {
		member[v] = true
	}

	s := NewSelector(true, 1)
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		target, ok := s.Select(versions)
		assert.Assert(t, ok)
		assert.Assert(t, member[target], "selected %q not in candidates", target)
		seen[target] = true
	}
	assert.Check(t, len(seen) > 1)
}

func TestSelectRandomUsesWholeList(t *testing.T) {
	defer func(fn func(int) int) { randIntFunc = fn }(randIntFunc)

	var bound int
	randIntFunc = func(n int) int {
		bound = n
		return n - 1
	}
	versions := []string{"2.88.4", "2.80.0", "2.70.0"}
	target, ok := NewSelector(true, 1).Select(versions)
	assert.Assert(t, ok)
	assert.Equal(t, bound, len(versions))
	assert.Equal(t, target, "2.70.0")
}
