package discover

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ErrVersionNotAvailable is returned when no discovered version satisfies
// the requested one.
var ErrVersionNotAvailable = errors.New("version not available")

// ErrInvalidDocument is returned when a response is not a version document.
var ErrInvalidDocument = errors.New("invalid version document")

// Link is one entry of a version's "links" list.
type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
}

// MediaType is one entry of a version's "media-types" list.
type MediaType struct {
	Base string `json:"base"`
	Type string `json:"type"`
}

// RawVersion is a version entry exactly as the server sent it.
type RawVersion struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Updated    string      `json:"updated,omitempty"`
	Links      []Link      `json:"links,omitempty"`
	MediaTypes []MediaType `json:"media-types,omitempty"`
}

// SelfLink returns the href of the rel=self link, if any.
func (r RawVersion) SelfLink() (string, bool) {
	for _, l := range r.Links {
		if l.Rel == "self" && l.Href != "" {
			return l.Href, true
		}
	}
	return "", false
}

// VersionData is a usable version: parsed, status checked and with a URL.
type VersionData struct {
	Version   Version    `json:"version"`
	URL       string     `json:"url"`
	RawStatus string     `json:"raw_status"`
	Raw       RawVersion `json:"raw"`
}

// Status classes. Servers disagree on casing and vocabulary.
const (
	StatusStable       = "stable"
	StatusDeprecated   = "deprecated"
	StatusExperimental = "experimental"
	StatusUnknown      = "unknown"
)

// ClassifyStatus maps a raw status to one of the status classes.
func ClassifyStatus(raw string) string {
	switch strings.ToLower(raw) {
	case "stable", "current", "supported":
		return StatusStable
	case "deprecated":
		return StatusDeprecated
	case "experimental", "alpha", "beta":
		return StatusExperimental
	default:
		return StatusUnknown
	}
}

// StatusOptions decides which non-stable versions are returned.
type StatusOptions struct {
	AllowExperimental bool `mapstructure:"allow_experimental"`
	AllowDeprecated   bool `mapstructure:"allow_deprecated"`
	AllowUnknown      bool `mapstructure:"allow_unknown"`
}

// DefaultStatusOptions allows stable and deprecated versions.
func DefaultStatusOptions() StatusOptions {
	return StatusOptions{AllowDeprecated: true}
}

func (o StatusOptions) allows(raw string) bool {
	switch ClassifyStatus(raw) {
	case StatusStable:
		return true
	case StatusDeprecated:
		return o.AllowDeprecated
	case StatusExperimental:
		return o.AllowExperimental
	default:
		return o.AllowUnknown
	}
}

// ParseVersions decodes a version document. Three layouts are in use:
//
//	{"versions": {"values": [...]}}   keystone
//	{"versions": [...]}               nova, cinder, glance
//	{"version": {...}}                a single versioned endpoint
func ParseVersions(data []byte) ([]RawVersion, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	if raw, ok := doc["versions"]; ok {
		var wrapped struct {
			Values []RawVersion `json:"values"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Values != nil {
			return wrapped.Values, nil
		}
		var list []RawVersion
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: versions: %v", ErrInvalidDocument, err)
		}
		return list, nil
	}

	if raw, ok := doc["version"]; ok {
		var single RawVersion
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("%w: version: %v", ErrInvalidDocument, err)
		}
		return []RawVersion{single}, nil
	}

	return nil, fmt.Errorf("%w: no versions or version key", ErrInvalidDocument)
}

// Discovery holds the versions advertised by one endpoint.
type Discovery struct {
	raw []RawVersion
}

// NewDiscovery wraps already parsed version entries.
func NewDiscovery(raw []RawVersion) *Discovery {
	return &Discovery{raw: append([]RawVersion(nil), raw...)}
}

// Parse builds a Discovery from a version document.
func Parse(data []byte) (*Discovery, error) {
	raw, err := ParseVersions(data)
	if err != nil {
		return nil, err
	}
	return NewDiscovery(raw), nil
}

// RawVersionData returns every entry, including ones VersionData skips.
func (d *Discovery) RawVersionData() []RawVersion {
	return append([]RawVersion(nil), d.raw...)
}

// VersionData returns the usable versions allowed by opts, sorted from
// lowest to highest. Entries missing a status, an id, a parsable version
// or a self link are skipped.
func (d *Discovery) VersionData(opts StatusOptions) []VersionData {
	var out []VersionData
	for _, r := range d.raw {
		if r.Status == "" {
			slog.Debug("skipping version without status", "id", r.ID)
			continue
		}
		if !opts.allows(r.Status) {
			continue
		}
		if r.ID == "" {
			slog.Debug("skipping version without id")
			continue
		}
		v, err := NormalizeVersion(r.ID)
		if err != nil {
			slog.Debug("skipping version with bad id", "id", r.ID, "error", err)
			continue
		}
		url, ok := r.SelfLink()
		if !ok {
			slog.Debug("skipping version without self link", "id", r.ID)
			continue
		}
		out = append(out, VersionData{Version: v, URL: url, RawStatus: r.Status, Raw: r})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version.Compare(out[j].Version) < 0
	})
	return out
}

// DataFor returns the highest version compatible with required under the
// default status policy.
func (d *Discovery) DataFor(required any) (VersionData, error) {
	return d.DataForWith(required, DefaultStatusOptions())
}

// DataForWith is DataFor with an explicit status policy.
func (d *Discovery) DataForWith(required any, opts StatusOptions) (VersionData, error) {
	want, err := NormalizeVersion(required)
	if err != nil {
		return VersionData{}, err
	}
	data := d.VersionData(opts)
	for i := len(data) - 1; i >= 0; i-- {
		if data[i].Version.Matches(want) {
			return data[i], nil
		}
	}
	return VersionData{}, fmt.Errorf("%w: %s", ErrVersionNotAvailable, want)
}

// URLFor returns the URL of DataFor(required), or "" when nothing matches.
func (d *Discovery) URLFor(required any) string {
	data, err := d.DataFor(required)
	if err != nil {
		return ""
	}
	return data.URL
}
