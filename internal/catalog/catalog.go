package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMalformedCatalog is matched by every document shape error from Build.
var ErrMalformedCatalog = errors.New("malformed service catalog")

// MalformedCatalogError reports a token document that does not carry a
// usable service catalog. Path is a dotted JSON path into the document.
type MalformedCatalogError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedCatalogError) Error() string {
	msg := fmt.Sprintf("malformed service catalog at %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedCatalogError) Unwrap() error { return e.Err }

func (e *MalformedCatalogError) Is(target error) bool { return target == ErrMalformedCatalog }

func malformed(path, format string, args ...any) error {
	return &MalformedCatalogError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// ServiceCatalog is an immutable index over the services of one token.
// A new catalog is built for every authentication; nothing mutates it.
type ServiceCatalog struct {
	format   Format
	services []Service
	token    TokenInfo
}

// New assembles a catalog from already-decoded services. The slice is
// copied, so later changes by the caller are not observed.
func New(format Format, services []Service, token TokenInfo) *ServiceCatalog {
	return &ServiceCatalog{format: format, services: cloneServices(services), token: token}
}

// Format returns the document shape the catalog was built from.
func (c *ServiceCatalog) Format() Format { return c.format }

// Token returns the token metadata carried alongside the catalog.
func (c *ServiceCatalog) Token() TokenInfo { return c.token }

// Len returns the number of services.
func (c *ServiceCatalog) Len() int { return len(c.services) }

// Services returns a copy of every service in catalog order.
func (c *ServiceCatalog) Services() []Service { return cloneServices(c.services) }

// ServicesOfType returns copies of the services whose type is exactly t.
// "volume" and "volumev2" are different types.
func (c *ServiceCatalog) ServicesOfType(t string) []Service {
	var out []Service
	for _, s := range c.services {
		if s.Type == t {
			out = append(out, cloneService(s))
		}
	}
	return out
}

// Types returns the distinct service types in first-seen order.
func (c *ServiceCatalog) Types() []string {
	seen := make(map[string]bool)
	var types []string
	for _, s := range c.services {
		if !seen[s.Type] {
			seen[s.Type] = true
			types = append(types, s.Type)
		}
	}
	return types
}

// WithTokenID returns a copy of the catalog carrying the given token id.
// Keystone v3 returns the id in a response header rather than the body.
func (c *ServiceCatalog) WithTokenID(id string) *ServiceCatalog {
	tok := c.token
	tok.ID = id
	return &ServiceCatalog{format: c.format, services: c.services, token: tok}
}

// Parse decodes a JSON token document and builds its catalog.
func Parse(data []byte) (*ServiceCatalog, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedCatalogError{Path: "$", Reason: "decoding JSON", Err: err}
	}
	return Build(raw)
}

// Load reads a token document from disk. JSON and YAML are both accepted.
func Load(path string) (*ServiceCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog document: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedCatalogError{Path: path, Reason: "decoding document", Err: err}
	}
	return Build(raw)
}

// Build indexes a decoded token document. The v3 shape (token.catalog) is
// tried first, then the v2 shapes (access.serviceCatalog, serviceCatalog,
// catalog). A document matching none of them is malformed, as is any
// service without a type or an endpoints list.
func Build(raw map[string]any) (*ServiceCatalog, error) {
	if len(raw) == 0 {
		return nil, malformed("$", "document is empty")
	}

	if tok, ok := raw["token"].(map[string]any); ok {
		if list, ok := tok["catalog"]; ok {
			services, err := parseServices(list, "token.catalog")
			if err != nil {
				return nil, err
			}
			return &ServiceCatalog{format: FormatV3, services: services, token: v3Token(tok)}, nil
		}
	}

	doc, prefix := raw, ""
	if access, ok := raw["access"].(map[string]any); ok {
		doc, prefix = access, "access."
	}
	for _, key := range []string{"serviceCatalog", "catalog"} {
		list, ok := doc[key]
		if !ok {
			continue
		}
		services, err := parseServices(list, prefix+key)
		if err != nil {
			return nil, err
		}
		return &ServiceCatalog{format: FormatV2, services: services, token: v2Token(doc)}, nil
	}

	return nil, malformed("$", "no token.catalog, serviceCatalog or catalog list found")
}

func parseServices(list any, path string) ([]Service, error) {
	entries, ok := list.([]any)
	if !ok {
		return nil, malformed(path, "expected a list, got %T", list)
	}

	services := make([]Service, 0, len(entries))
	for i, entry := range entries {
		p := fmt.Sprintf("%s[%d]", path, i)
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, malformed(p, "expected an object, got %T", entry)
		}
		svc, err := parseService(obj, p)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

func parseService(obj map[string]any, path string) (Service, error) {
	rawType, ok := obj["type"]
	if !ok {
		return Service{}, malformed(path+".type", "required key is missing")
	}
	typ, ok := rawType.(string)
	if !ok || typ == "" {
		return Service{}, malformed(path+".type", "expected a non-empty string")
	}

	rawEndpoints, ok := obj["endpoints"]
	if !ok {
		return Service{}, malformed(path+".endpoints", "required key is missing")
	}
	list, ok := rawEndpoints.([]any)
	if !ok {
		return Service{}, malformed(path+".endpoints", "expected a list, got %T", rawEndpoints)
	}

	svc := Service{
		Type: typ,
		Name: stringOf(obj["name"]),
		ID:   stringOf(obj["id"]),
	}
	for i, e := range list {
		p := fmt.Sprintf("%s.endpoints[%d]", path, i)
		rec, ok := e.(map[string]any)
		if !ok {
			return Service{}, malformed(p, "expected an object, got %T", e)
		}
		svc.Endpoints = append(svc.Endpoints, parseEndpoint(rec)...)
	}
	return svc, nil
}

// parseEndpoint turns one endpoint record into endpoints. A v3 record
// (interface + url) yields one; a v2 record yields one per URL key present.
func parseEndpoint(rec map[string]any) []Endpoint {
	attrs := make(map[string]string, len(rec))
	for k, v := range rec {
		if s := stringOf(v); s != "" {
			attrs[k] = s
		}
	}

	base := Endpoint{
		ID:        attrs["id"],
		Region:    firstOf(attrs, "region", "region_id"),
		TenantID:  firstOf(attrs, "tenantId", "tenant_id", "projectId", "project_id"),
		VersionID: firstOf(attrs, "versionId", "version_id"),
	}

	if iface, ok := attrs["interface"]; ok {
		ep := base
		ep.Interface = NormalizeInterface(iface)
		ep.URL = attrs["url"]
		ep.Attrs = attrs
		return []Endpoint{ep}
	}

	var out []Endpoint
	for _, k := range v2URLKeys {
		url, ok := attrs[k.key]
		if !ok {
			continue
		}
		ep := base
		ep.Interface = k.iface
		ep.URL = url
		ep.Attrs = maps.Clone(attrs)
		out = append(out, ep)
	}
	return out
}

func v3Token(tok map[string]any) TokenInfo {
	info := TokenInfo{
		IssuedAt:  timeOf(tok["issued_at"]),
		ExpiresAt: timeOf(tok["expires_at"]),
	}
	if user, ok := tok["user"].(map[string]any); ok {
		info.UserID = stringOf(user["id"])
	}
	if project, ok := tok["project"].(map[string]any); ok {
		info.ProjectID = stringOf(project["id"])
		info.ProjectName = stringOf(project["name"])
	}
	return info
}

func v2Token(access map[string]any) TokenInfo {
	var info TokenInfo
	tok, _ := access["token"].(map[string]any)
	user, _ := access["user"].(map[string]any)
	if tok != nil {
		info.ID = stringOf(tok["id"])
		info.IssuedAt = timeOf(tok["issued_at"])
		info.ExpiresAt = timeOf(tok["expires"])
		if tenant, ok := tok["tenant"].(map[string]any); ok {
			info.ProjectID = stringOf(tenant["id"])
			info.ProjectName = stringOf(tenant["name"])
		}
	}
	if user != nil {
		info.UserID = stringOf(user["id"])
	}
	// Older Keystone releases put the tenant on the user, older still on the token.
	if info.ProjectID == "" && user != nil {
		info.ProjectID = stringOf(user["tenantId"])
	}
	if info.ProjectID == "" && tok != nil {
		info.ProjectID = stringOf(tok["tenantId"])
	}
	return info
}

func firstOf(attrs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := attrs[k]; v != "" {
			return v
		}
	}
	return ""
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func timeOf(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Time{}
}

func cloneServices(in []Service) []Service {
	if in == nil {
		return nil
	}
	out := make([]Service, len(in))
	for i, s := range in {
		out[i] = cloneService(s)
	}
	return out
}

func cloneService(s Service) Service {
	eps := make([]Endpoint, len(s.Endpoints))
	for i, e := range s.Endpoints {
		e.Attrs = maps.Clone(e.Attrs)
		eps[i] = e
	}
	s.Endpoints = eps
	return s
}
