package discover

import (
	"fmt"
	"regexp"
)

// VersionHack rewrites catalog URLs of one service type before discovery.
// Some deployments register a versioned identity URL (".../v2.0") which
// only advertises that one version.
type VersionHack struct {
	ServiceType string `mapstructure:"service_type" yaml:"service_type"`
	Pattern     string `mapstructure:"pattern" yaml:"pattern"`
	Replacement string `mapstructure:"replacement" yaml:"replacement"`
}

type compiledHack struct {
	serviceType string
	re          *regexp.Regexp
	replacement string
}

// VersionHacks is an ordered table of rewrites. The zero value is empty.
type VersionHacks struct {
	hacks []compiledHack
}

// DefaultVersionHacks is the built-in table.
func DefaultVersionHacks() []VersionHack {
	return []VersionHack{
		{ServiceType: "identity", Pattern: `/v2.0/?$`, Replacement: "/"},
	}
}

// NewVersionHacks compiles a table.
func NewVersionHacks(entries []VersionHack) (*VersionHacks, error) {
	h := &VersionHacks{}
	for i, e := range entries {
		if e.ServiceType == "" {
			return nil, fmt.Errorf("version hack %d: service_type is required", i)
		}
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("version hack %d (%s): %w", i, e.ServiceType, err)
		}
		h.hacks = append(h.hacks, compiledHack{serviceType: e.ServiceType, re: re, replacement: e.Replacement})
	}
	return h, nil
}

// Apply rewrites url with the first entry for serviceType whose pattern
// matches. URLs of other types, or with no matching entry, pass through.
func (h *VersionHacks) Apply(serviceType, url string) string {
	if h == nil {
		return url
	}
	for _, hk := range h.hacks {
		if hk.serviceType != serviceType || !hk.re.MatchString(url) {
			continue
		}
		return hk.re.ReplaceAllString(url, hk.replacement)
	}
	return url
}
