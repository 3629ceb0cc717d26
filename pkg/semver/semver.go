// Package semver compares npm version strings.
//
// It is a thin wrapper around github.com/Masterminds/semver/v3 that accepts
// the loose forms found in package.json files ("^1.2.0", "~3.1", "v2") and
// exposes the two-tier comparison used when reconciling platform versions
// with user pins: a structured compare that reports parse failures, and
// helpers that fall back to raw string comparison when a side does not parse.
package semver

import (
	"fmt"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// snapshotMarker tags development builds that must never be enforced.
const snapshotMarker = "snapshot"

// Version is a parsed semantic version.
type Version struct {
	v   *mm.Version
	raw string
}

// ParseError reports a version string that is not a semantic version.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("semver: parse version %q: %v", e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse parses raw after stripping range prefixes (^, ~, =, v) and
// surrounding whitespace.
func Parse(raw string) (Version, error) {
	v, err := mm.NewVersion(trim(raw))
	if err != nil {
		return Version{}, &ParseError{Raw: raw, Err: err}
	}
	return Version{v: v, raw: raw}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as it was written.
func (v Version) String() string { return v.raw }

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}

// CompareStrings parses both sides and compares them. When either side does
// not parse, it returns a *ParseError so the caller can pick a fallback.
func CompareStrings(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return Compare(va, vb), nil
}

// Equal reports whether a and b denote the same version. If either side is
// not a semantic version the strings are compared verbatim.
func Equal(a, b string) bool {
	c, err := CompareStrings(a, b)
	if err != nil {
		return a == b
	}
	return c == 0
}

// Older reports whether a is strictly older than b. Unparseable input is
// never considered older.
func Older(a, b string) bool {
	c, err := CompareStrings(a, b)
	return err == nil && c < 0
}

// IsSnapshot reports whether raw is a snapshot build ("1.0.0-SNAPSHOT").
func IsSnapshot(raw string) bool {
	return strings.Contains(strings.ToLower(raw), snapshotMarker)
}

// IsLocal reports whether raw points at a local path instead of a registry
// version ("./frontend/lib", "file:../shared").
func IsLocal(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../") || strings.HasPrefix(raw, "file:")
}

func trim(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "^~= ")
	return strings.TrimSpace(s)
}
