package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/everstacklabs/compass/internal/catalog"
)

var (
	// ErrEndpointNotFound is matched by *EndpointNotFoundError.
	ErrEndpointNotFound = errors.New("endpoint not found")
	// ErrAmbiguousEndpoints is matched by *AmbiguousEndpointsError.
	ErrAmbiguousEndpoints = errors.New("ambiguous endpoints")
)

// EndpointNotFoundError means no endpoint survived filtering.
type EndpointNotFoundError struct {
	ServiceType string
	ServiceName string
	Constraints []Constraint
}

func (e *EndpointNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no endpoint found for service type %q", e.ServiceType)
	if e.ServiceName != "" {
		fmt.Fprintf(&b, " (name %q)", e.ServiceName)
	}
	if f := formatConstraints(e.Constraints); f != "" {
		b.WriteString(" matching ")
		b.WriteString(f)
	}
	return b.String()
}

func (e *EndpointNotFoundError) Is(target error) bool { return target == ErrEndpointNotFound }

// AmbiguousEndpointsError means more than one endpoint survived filtering.
// Adding a tenantId or region filter usually disambiguates.
type AmbiguousEndpointsError struct {
	ServiceType string
	Constraints []Constraint
	Candidates  []catalog.Endpoint
}

func (e *AmbiguousEndpointsError) Error() string {
	urls := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		urls[i] = c.URL
	}
	msg := fmt.Sprintf("%d endpoints match service type %q", len(e.Candidates), e.ServiceType)
	if f := formatConstraints(e.Constraints); f != "" {
		msg += " with " + f
	}
	return msg + ": " + strings.Join(urls, ", ")
}

func (e *AmbiguousEndpointsError) Is(target error) bool { return target == ErrAmbiguousEndpoints }

func formatConstraints(cs []Constraint) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
