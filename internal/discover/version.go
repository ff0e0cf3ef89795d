package discover

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Version is a dotted API version such as 2.0 or 1.5.1. A normalized
// Version always has at least two components.
type Version []int

// String renders the version as "major.minor[.patch...]".
func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Major returns the first component, or -1 for an empty version.
func (v Version) Major() int {
	if len(v) == 0 {
		return -1
	}
	return v[0]
}

// Compare orders versions component by component. A missing trailing
// component sorts before a present one, so 1.5 < 1.5.1.
func (v Version) Compare(o Version) int {
	for i := 0; i < len(v) && i < len(o); i++ {
		switch {
		case v[i] < o[i]:
			return -1
		case v[i] > o[i]:
			return 1
		}
	}
	switch {
	case len(v) < len(o):
		return -1
	case len(v) > len(o):
		return 1
	}
	return 0
}

// Matches reports whether v satisfies required: the majors are equal and
// the remaining components of v are at least those of required.
func (v Version) Matches(required Version) bool {
	if len(v) == 0 || len(required) == 0 || v[0] != required[0] {
		return false
	}
	return v[1:].Compare(required[1:]) >= 0
}

// NormalizeVersion converts the many ways a version is written into a
// Version. Accepted inputs are strings with an optional "v" prefix
// ("v1.2", "v11", "1.5.1"), integers, floats (5.2), []int and Version.
func NormalizeVersion(in any) (Version, error) {
	switch v := in.(type) {
	case Version:
		return pad(append(Version(nil), v...))
	case []int:
		return pad(append(Version(nil), v...))
	case int:
		return pad(Version{v})
	case int64:
		return pad(Version{int(v)})
	case float64:
		return fromFloat(v)
	case float32:
		return fromFloat(float64(v))
	case string:
		return parseVersionString(v)
	default:
		return nil, fmt.Errorf("invalid version %v: unsupported type %T", in, in)
	}
}

func parseVersionString(s string) (Version, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if trimmed == "" {
		return nil, fmt.Errorf("invalid version %q", s)
	}
	fields := strings.Split(trimmed, ".")
	out := make(Version, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version %q", s)
		}
		out = append(out, n)
	}
	return pad(out)
}

// fromFloat goes through the shortest decimal rendering so 5.2 becomes
// 5.2 rather than 5.19999.
func fromFloat(f float64) (Version, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil, fmt.Errorf("invalid version %v", f)
	}
	return parseVersionString(strconv.FormatFloat(f, 'f', -1, 64))
}

func pad(v Version) (Version, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("invalid version: no components")
	}
	for _, n := range v {
		if n < 0 {
			return nil, fmt.Errorf("invalid version %v: negative component", []int(v))
		}
	}
	if len(v) == 1 {
		v = append(v, 0)
	}
	return v, nil
}
