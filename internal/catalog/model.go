package catalog

import (
	"strings"
	"time"
)

// Format identifies which token document shape a catalog was built from.
type Format string

const (
	FormatV2 Format = "v2"
	FormatV3 Format = "v3"
)

// Interface is the visibility of an endpoint.
type Interface string

const (
	InterfacePublic   Interface = "public"
	InterfaceInternal Interface = "internal"
	InterfaceAdmin    Interface = "admin"
)

// v2 endpoint records carry one URL key per interface, in this order.
var v2URLKeys = []struct {
	key   string
	iface Interface
}{
	{"publicURL", InterfacePublic},
	{"internalURL", InterfaceInternal},
	{"adminURL", InterfaceAdmin},
}

// NormalizeInterface maps the historical "publicURL" style names onto
// the v3 interface names. Unknown values are lowercased and returned as-is.
func NormalizeInterface(s string) Interface {
	s = strings.TrimSpace(s)
	for _, k := range v2URLKeys {
		if strings.EqualFold(s, k.key) {
			return k.iface
		}
	}
	return Interface(strings.ToLower(s))
}

// Known reports whether i is one of public, internal or admin.
func (i Interface) Known() bool {
	switch i {
	case InterfacePublic, InterfaceInternal, InterfaceAdmin:
		return true
	}
	return false
}

// Endpoint is a single resolvable address of a service.
type Endpoint struct {
	ID        string            `yaml:"id,omitempty" json:"id,omitempty"`
	Region    string            `yaml:"region,omitempty" json:"region,omitempty"`
	Interface Interface         `yaml:"interface" json:"interface"`
	TenantID  string            `yaml:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	VersionID string            `yaml:"version_id,omitempty" json:"version_id,omitempty"`
	URL       string            `yaml:"url" json:"url"`
	Attrs     map[string]string `yaml:"attrs,omitempty" json:"attrs,omitempty"`
}

// Attr looks up an endpoint attribute by name. The well-known names and
// their aliases read the normalized fields; anything else falls through
// to the raw attributes of the catalog entry.
func (e Endpoint) Attr(name string) (string, bool) {
	switch name {
	case "region", "region_name":
		if e.Region != "" {
			return e.Region, true
		}
	case "interface", "endpoint_type":
		if e.Interface != "" {
			return string(e.Interface), true
		}
	case "url":
		if e.URL != "" {
			return e.URL, true
		}
	case "tenantId", "tenant_id", "projectId", "project_id":
		if e.TenantID != "" {
			return e.TenantID, true
		}
	case "versionId", "version_id":
		if e.VersionID != "" {
			return e.VersionID, true
		}
	case "id":
		if e.ID != "" {
			return e.ID, true
		}
	}
	v, ok := e.Attrs[name]
	return v, ok
}

// Service is one entry of the catalog.
type Service struct {
	ID        string     `yaml:"id,omitempty" json:"id,omitempty"`
	Type      string     `yaml:"type" json:"type"`
	Name      string     `yaml:"name,omitempty" json:"name,omitempty"`
	Endpoints []Endpoint `yaml:"endpoints" json:"endpoints"`
}

// TokenInfo is the token metadata that travels with a catalog.
type TokenInfo struct {
	ID          string    `yaml:"-" json:"-"`
	IssuedAt    time.Time `yaml:"issued_at,omitempty" json:"issued_at,omitempty"`
	ExpiresAt   time.Time `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`
	UserID      string    `yaml:"user_id,omitempty" json:"user_id,omitempty"`
	ProjectID   string    `yaml:"project_id,omitempty" json:"project_id,omitempty"`
	ProjectName string    `yaml:"project_name,omitempty" json:"project_name,omitempty"`
}

// DefaultStaleDuration is how close to expiry a token counts as stale.
const DefaultStaleDuration = 30 * time.Second

// WillExpireSoon reports whether the token expires within stale of now.
// A zero stale uses DefaultStaleDuration. Tokens without an expiry never
// expire.
func (t TokenInfo) WillExpireSoon(now time.Time, stale time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	if stale == 0 {
		stale = DefaultStaleDuration
	}
	return t.ExpiresAt.Before(now.Add(stale))
}
