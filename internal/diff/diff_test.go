package diff

import (
	"strings"
	"testing"

	"github.com/everstacklabs/compass/internal/catalog"
)

func ep(iface catalog.Interface, region, tenant, url string) catalog.Endpoint {
	return catalog.Endpoint{Interface: iface, Region: region, TenantID: tenant, URL: url}
}

func cat(services ...catalog.Service) *catalog.ServiceCatalog {
	return catalog.New(catalog.FormatV3, services, catalog.TokenInfo{})
}

func baseline() *catalog.ServiceCatalog {
	return cat(
		catalog.Service{Type: "compute", Name: "nova", Endpoints: []catalog.Endpoint{
			ep(catalog.InterfacePublic, "RegionOne", "", "https://compute.one/v2.1"),
			ep(catalog.InterfaceInternal, "RegionOne", "", "http://compute.one.internal/v2.1"),
		}},
		catalog.Service{Type: "volume", Name: "cinder", Endpoints: []catalog.Endpoint{
			ep(catalog.InterfacePublic, "RegionOne", "1", "https://volume.one/v1/1"),
		}},
	)
}

func TestUnchangedCatalog(t *testing.T) {
	cs := Compute(baseline(), baseline())
	if cs.HasChanges() {
		t.Errorf("expected no changes, got %+v", cs)
	}
	if cs.Unchanged != 3 {
		t.Errorf("Unchanged = %d, want 3", cs.Unchanged)
	}
}

func TestChangedURL(t *testing.T) {
	next := cat(
		catalog.Service{Type: "compute", Name: "nova", Endpoints: []catalog.Endpoint{
			ep(catalog.InterfacePublic, "RegionOne", "", "https://compute.one/v2.2"),
			ep(catalog.InterfaceInternal, "RegionOne", "", "http://compute.one.internal/v2.1"),
		}},
		catalog.Service{Type: "volume", Name: "cinder", Endpoints: []catalog.Endpoint{
			ep(catalog.InterfacePublic, "RegionOne", "1", "https://volume.one/v1/1"),
		}},
	)

	cs := Compute(baseline(), next)
	if len(cs.Changed) != 1 || len(cs.Added) != 0 || len(cs.Removed) != 0 {
		t.Fatalf("unexpected changeset: %+v", cs)
	}
	c := cs.Changed[0]
	if c.OldURL != "https://compute.one/v2.1" || c.NewURL != "https://compute.one/v2.2" || c.Key.Interface != "public" {
		t.Errorf("unexpected change: %+v", c)
	}
	if cs.IsDestructive() {
		t.Error("a moved endpoint is not destructive")
	}
}

func TestAddedAndRemovedServices(t *testing.T) {
	next := cat(
		catalog.Service{Type: "compute", Name: "nova", Endpoints: []catalog.Endpoint{
			ep(catalog.InterfacePublic, "RegionOne", "", "https://compute.one/v2.1"),
			ep(catalog.InterfaceInternal, "RegionOne", "", "http://compute.one.internal/v2.1"),
		}},
		catalog.Service{Type: "volumev2", Name: "cinderv2", Endpoints: []catalog.Endpoint{
			ep(catalog.InterfacePublic, "RegionOne", "1", "https://volume.one/v2/1"),
		}},
	)

	cs := Compute(baseline(), next)
	if len(cs.AddedServices) != 1 || cs.AddedServices[0] != "volumev2" {
		t.Errorf("AddedServices = %v", cs.AddedServices)
	}
	if len(cs.RemovedServices) != 1 || cs.RemovedServices[0] != "volume" {
		t.Errorf("RemovedServices = %v", cs.RemovedServices)
	}
	if len(cs.Added) != 1 || len(cs.Removed) != 1 {
		t.Errorf("expected one added and one removed endpoint, got %+v", cs)
	}
	if !cs.IsDestructive() {
		t.Error("removing a service should be destructive")
	}
	if cs.TotalChanged() != 2 {
		t.Errorf("TotalChanged = %d, want 2", cs.TotalChanged())
	}
}

func TestSameKeyMultipleURLs(t *testing.T) {
	prev := cat(catalog.Service{Type: "compute", Endpoints: []catalog.Endpoint{
		ep(catalog.InterfacePublic, "North", "", "https://a"),
		ep(catalog.InterfacePublic, "North", "", "https://b"),
	}})
	next := cat(catalog.Service{Type: "compute", Endpoints: []catalog.Endpoint{
		ep(catalog.InterfacePublic, "North", "", "https://b"),
		ep(catalog.InterfacePublic, "North", "", "https://c"),
	}})

	cs := Compute(prev, next)
	if len(cs.Added) != 1 || cs.Added[0].NewURL != "https://c" {
		t.Errorf("Added = %+v", cs.Added)
	}
	if len(cs.Removed) != 1 || cs.Removed[0].OldURL != "https://a" {
		t.Errorf("Removed = %+v", cs.Removed)
	}
	if cs.Unchanged != 1 || len(cs.Changed) != 0 {
		t.Errorf("unexpected changeset: %+v", cs)
	}
}

func TestNilCatalogs(t *testing.T) {
	cs := Compute(nil, baseline())
	if len(cs.Added) != 3 || len(cs.AddedServices) != 2 {
		t.Errorf("everything should be added: %+v", cs)
	}
	cs = Compute(baseline(), nil)
	if len(cs.Removed) != 3 || len(cs.RemovedServices) != 2 {
		t.Errorf("everything should be removed: %+v", cs)
	}
	if Compute(nil, nil).HasChanges() {
		t.Error("two empty catalogs should not differ")
	}
}

func TestChangesSorted(t *testing.T) {
	next := cat(catalog.Service{Type: "zone", Endpoints: []catalog.Endpoint{
		ep(catalog.InterfacePublic, "B", "", "https://b"),
		ep(catalog.InterfacePublic, "A", "", "https://a"),
	}})
	cs := Compute(nil, next)
	if cs.Added[0].Key.Region != "A" || cs.Added[1].Key.Region != "B" {
		t.Errorf("changes not sorted: %+v", cs.Added)
	}
}

func TestRender(t *testing.T) {
	if got := RenderDiffSummary(Compute(baseline(), baseline())); !strings.HasPrefix(got, "No changes") {
		t.Errorf("unexpected summary: %q", got)
	}

	cs := Compute(baseline(), cat(catalog.Service{Type: "compute", Name: "nova", Endpoints: []catalog.Endpoint{
		ep(catalog.InterfacePublic, "RegionOne", "", "https://compute.one/v2.2"),
	}}))

	summary := RenderDiffSummary(cs)
	for _, want := range []string{
		"- service volume",
		"~ compute/nova public RegionOne https://compute.one/v2.1 -> https://compute.one/v2.2",
		"- compute/nova internal RegionOne http://compute.one.internal/v2.1",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	body := RenderPRBody(cs)
	for _, want := range []string{"## Service catalog drift", "**Warning:**", "### Removed", "### Changed", "| volume (cinder) | public | RegionOne | 1 |"} {
		if !strings.Contains(body, want) {
			t.Errorf("PR body missing %q:\n%s", want, body)
		}
	}
}
