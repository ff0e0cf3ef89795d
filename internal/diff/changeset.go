package diff

import "fmt"

// EndpointKey identifies an endpoint across two catalogs.
type EndpointKey struct {
	ServiceType string `yaml:"service_type"`
	ServiceName string `yaml:"service_name,omitempty"`
	Interface   string `yaml:"interface"`
	Region      string `yaml:"region,omitempty"`
	TenantID    string `yaml:"tenant_id,omitempty"`
}

func (k EndpointKey) String() string {
	s := k.ServiceType
	if k.ServiceName != "" {
		s += "/" + k.ServiceName
	}
	s += " " + k.Interface
	if k.Region != "" {
		s += " " + k.Region
	}
	if k.TenantID != "" {
		s += fmt.Sprintf(" tenant=%s", k.TenantID)
	}
	return s
}

// EndpointChange is one added, removed or moved endpoint.
type EndpointChange struct {
	Key    EndpointKey
	OldURL string
	NewURL string
}

// ChangeSet represents the complete diff between two catalogs.
type ChangeSet struct {
	Added           []EndpointChange
	Removed         []EndpointChange
	Changed         []EndpointChange
	AddedServices   []string
	RemovedServices []string
	Unchanged       int
}

// HasChanges reports whether the changeset has any modifications.
func (cs *ChangeSet) HasChanges() bool {
	return len(cs.Added) > 0 || len(cs.Removed) > 0 || len(cs.Changed) > 0 ||
		len(cs.AddedServices) > 0 || len(cs.RemovedServices) > 0
}

// TotalChanged returns the count of added, removed and changed endpoints.
func (cs *ChangeSet) TotalChanged() int {
	return len(cs.Added) + len(cs.Removed) + len(cs.Changed)
}

// IsDestructive reports whether anything a client could resolve before
// would fail to resolve after.
func (cs *ChangeSet) IsDestructive() bool {
	return len(cs.Removed) > 0 || len(cs.RemovedServices) > 0
}
