package resolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/everstacklabs/compass/internal/catalog"
)

// Options configures a Resolver.
type Options struct {
	// DefaultInterface applies when a query does not name one.
	// Empty means public.
	DefaultInterface string

	// ServiceNameFallback keeps the historical client behavior: when a
	// service name matches none of several same-type services, the name
	// is ignored. When false, such a query fails with not found.
	ServiceNameFallback bool
}

// DefaultOptions returns the options matching the OpenStack clients.
func DefaultOptions() Options {
	return Options{
		DefaultInterface:    string(catalog.InterfacePublic),
		ServiceNameFallback: true,
	}
}

// Query selects endpoints of one service type.
type Query struct {
	ServiceType string
	ServiceName string
	Region      string
	Interface   string
	// Filters are attribute=value pairs; an empty value is ignored.
	Filters map[string]string
}

// Resolver picks endpoint URLs out of a catalog. It holds no state
// besides its options and is safe for concurrent use.
type Resolver struct {
	opts Options
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	if opts.DefaultInterface == "" {
		opts.DefaultInterface = string(catalog.InterfacePublic)
	}
	return &Resolver{opts: opts}
}

// URLFor returns the URL of the single endpoint matching q. It fails with
// *EndpointNotFoundError when nothing matches and *AmbiguousEndpointsError
// when more than one endpoint does.
func (r *Resolver) URLFor(cat *catalog.ServiceCatalog, q Query) (string, error) {
	candidates, err := r.EndpointsFor(cat, q)
	if err != nil {
		return "", err
	}
	if len(candidates) > 1 {
		return "", &AmbiguousEndpointsError{
			ServiceType: q.ServiceType,
			Constraints: r.constraints(q),
			Candidates:  candidates,
		}
	}
	return candidates[0].URL, nil
}

// EndpointsFor returns every endpoint matching q in catalog order. It
// fails with *EndpointNotFoundError when nothing matches.
func (r *Resolver) EndpointsFor(cat *catalog.ServiceCatalog, q Query) ([]catalog.Endpoint, error) {
	constraints := r.constraints(q)
	notFound := &EndpointNotFoundError{
		ServiceType: q.ServiceType,
		ServiceName: q.ServiceName,
		Constraints: constraints,
	}
	if cat == nil {
		return nil, notFound
	}

	services, ok := r.selectServices(cat.ServicesOfType(q.ServiceType), q.ServiceName)
	if !ok {
		return nil, notFound
	}

	var candidates []catalog.Endpoint
	for _, svc := range services {
		for _, ep := range svc.Endpoints {
			if matches(ep, constraints) {
				candidates = append(candidates, ep)
			}
		}
	}

	if len(candidates) == 0 {
		return nil, notFound
	}
	return candidates, nil
}

// selectServices narrows same-type services by name. With the fallback
// enabled the name only matters when several services share the type.
func (r *Resolver) selectServices(services []catalog.Service, name string) ([]catalog.Service, bool) {
	if name == "" {
		return services, true
	}
	if len(services) < 2 && r.opts.ServiceNameFallback {
		return services, true
	}

	var named []catalog.Service
	for _, s := range services {
		if s.Name == name {
			named = append(named, s)
		}
	}
	if len(named) > 0 {
		return named, true
	}
	if r.opts.ServiceNameFallback {
		return services, true
	}
	return nil, false
}

// Constraint is one attribute=value condition an endpoint must meet.
type Constraint struct {
	Attr  string
	Value string
}

func (c Constraint) String() string { return c.Attr + "=" + c.Value }

// constraints lists every condition of q. The interface comes from the
// query or the default; each filter pair is applied on top of it, so a
// filter can only narrow the result, never replace a dedicated field.
func (r *Resolver) constraints(q Query) []Constraint {
	iface := q.Interface
	if iface == "" {
		iface = r.opts.DefaultInterface
	}
	out := []Constraint{{Attr: "interface", Value: string(catalog.NormalizeInterface(iface))}}
	if q.Region != "" {
		out = append(out, Constraint{Attr: "region", Value: q.Region})
	}

	keys := make([]string, 0, len(q.Filters))
	for k, v := range q.Filters {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := q.Filters[k]
		if k == "interface" || k == "endpoint_type" {
			v = string(catalog.NormalizeInterface(v))
		}
		out = append(out, Constraint{Attr: k, Value: v})
	}
	return out
}

func matches(ep catalog.Endpoint, constraints []Constraint) bool {
	for _, c := range constraints {
		got, ok := ep.Attr(c.Attr)
		if !ok || got != c.Value {
			return false
		}
	}
	return true
}

// ParseFilters turns key:value (or key=value) strings into a filter map.
func ParseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, ":")
		if !ok {
			key, value, ok = strings.Cut(p, "=")
		}
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key:value", p)
		}
		out[key] = value
	}
	return out, nil
}
