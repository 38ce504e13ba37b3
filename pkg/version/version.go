// Package version orders host OS versions. Versions are semantic versions
// optionally carrying a balena build revision in their metadata, for example
// "2.50.1+rev1"; the revision takes part in ordering where plain semver would
// ignore build metadata.
package version

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// Minimum is the oldest host OS version that can be updated remotely.
var Minimum = semver.MustParse("2.0.0")

var (
	osPrefixes = []string{"balenaOS", "balena OS", "Resin OS", "resinOS"}
	revPattern = regexp.MustCompile(`^rev(\d+)$`)
	// Legacy reports append the variant, "2.3.0+rev1 (prod)".
	variantSuffix = regexp.MustCompile(`\s*\((prod|dev)\)$`)
	// Legacy revisions are dot separated, "2.0.0.rev1".
	legacyRev = regexp.MustCompile(`^(\d+\.\d+\.\d+)\.(rev\d+)`)
)

// Version is a parsed host OS version.
type Version struct {
	*semver.Version
	original string
	rev      int
}

// Parse normalizes and parses a host OS version string as reported by the
// API ("balenaOS 2.50.1+rev1") or listed by releases ("2.50.1+rev1").
func Parse(raw string) (*Version, error) {
	s := Normalize(raw)
	if s == "" {
		return nil, errors.Errorf("empty version %q", raw)
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid version %q", raw)
	}
	return &Version{Version: v, original: s, rev: revision(v.Metadata())}, nil
}

// Normalize strips OS name prefixes, legacy variant suffixes and surrounding
// space from a reported version and moves a legacy ".revN" into build
// metadata.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for _, prefix := range osPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
			break
		}
	}
	s = variantSuffix.ReplaceAllString(s, "")
	return legacyRev.ReplaceAllString(s, "$1+$2")
}

func revision(metadata string) int {
	for _, part := range strings.Split(metadata, ".") {
		m := revPattern.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n
		}
	}
	return 0
}

// String returns the normalized form of the version as it was given.
func (v *Version) String() string {
	return v.original
}

// Rev is the build revision, zero when none is present.
func (v *Version) Rev() int {
	return v.rev
}

// Compare returns -1, 0 or 1 when v is older, equal or newer than o.
func (v *Version) Compare(o *Version) int {
	if c := v.Version.Compare(o.Version); c != 0 {
		return c
	}
	switch {
	case v.rev < o.rev:
		return -1
	case v.rev > o.rev:
		return 1
	}
	return 0
}

// GreaterThan reports whether v is strictly newer than o.
func (v *Version) GreaterThan(o *Version) bool {
	return v.Compare(o) > 0
}

// GreaterThan reports whether version a is strictly newer than version b.
func GreaterThan(a, b string) (bool, error) {
	va, err := Parse(a)
	if err != nil {
		return false, err
	}
	vb, err := Parse(b)
	if err != nil {
		return false, err
	}
	return va.GreaterThan(vb), nil
}

// Collection sorts newest first.
type Collection []*Version

func (c Collection) Len() int           { return len(c) }
func (c Collection) Less(i, j int) bool { return c[i].GreaterThan(c[j]) }
func (c Collection) Swap(i, j int)      { c[i], c[j] = c[j], c[i] }
