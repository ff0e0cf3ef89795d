package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func snapshotFixture() *ServiceCatalog {
	return New(FormatV3, []Service{
		{Type: "compute", Name: "nova", Endpoints: []Endpoint{
			{ID: "c1", Region: "RegionOne", Interface: InterfacePublic, URL: "https://compute.one/v2.1",
				Attrs: map[string]string{"url": "https://compute.one/v2.1"}},
			{ID: "c2", Region: "RegionTwo", Interface: InterfacePublic, URL: "https://compute.two/v2.1"},
		}},
		{Type: "image", Name: "glance", Endpoints: nil},
	}, TokenInfo{})
}

func TestWriteCatalogNewFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	results, err := w.WriteCatalog(snapshotFixture())
	if err != nil {
		t.Fatalf("WriteCatalog failed: %v", err)
	}
	if len(results) != 2 || !results[0].IsNew || !results[1].IsNew {
		t.Fatalf("unexpected results: %+v", results)
	}
	if filepath.Base(results[0].Path) != "compute.yaml" {
		t.Errorf("first file = %s, want compute.yaml", results[0].Path)
	}

	data, err := os.ReadFile(results[0].Path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	var sf ServiceFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		t.Fatalf("parsing written YAML: %v", err)
	}
	if sf.Type != "compute" || len(sf.Services) != 1 || len(sf.Services[0].Endpoints) != 2 {
		t.Errorf("unexpected file content: %+v", sf)
	}
	if strings.Contains(string(data), "attrs") {
		t.Errorf("raw attributes should not be written:\n%s", data)
	}
}

func TestWriteCatalogUnchangedAndStale(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	if _, err := w.WriteCatalog(snapshotFixture()); err != nil {
		t.Fatal(err)
	}
	results, err := w.WriteCatalog(snapshotFixture())
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if !r.Unchanged || r.IsNew {
			t.Errorf("%s should be unchanged: %+v", r.Path, r)
		}
	}

	only := New(FormatV3, []Service{{Type: "image", Name: "glance"}}, TokenInfo{})
	if _, err := w.WriteCatalog(only); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "services", "compute.yaml")); !os.IsNotExist(err) {
		t.Error("compute.yaml should be removed once compute leaves the catalog")
	}
}

func TestWriteServicesPreservesHandAddedKeys(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	if err := os.MkdirAll(w.ServicesDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	existing := "owner: platform-team\ntype: compute\nservices: []\nnotes: keep me\n"
	path := filepath.Join(w.ServicesDir(), "compute.yaml")
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := snapshotFixture().ServicesOfType("compute")
	result, err := w.WriteServices("compute", svc)
	if err != nil {
		t.Fatalf("WriteServices failed: %v", err)
	}
	if result.IsNew || result.Unchanged {
		t.Errorf("unexpected result: %+v", result)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.HasPrefix(out, "owner: platform-team") || !strings.Contains(out, "notes: keep me") {
		t.Errorf("hand-added keys lost or reordered:\n%s", out)
	}
	if !strings.Contains(out, "https://compute.two/v2.1") {
		t.Errorf("services not written:\n%s", out)
	}
}

func TestWriteServicesRejectsBadType(t *testing.T) {
	w := NewWriter(t.TempDir())
	for _, typ := range []string{"", "..", "a/b"} {
		if _, err := w.WriteServices(typ, nil); err == nil {
			t.Errorf("expected error for type %q", typ)
		}
	}
}

func TestLoadSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewWriter(dir).WriteCatalog(snapshotFixture()); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadSnapshot(dir)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("Len = %d, want 2", cat.Len())
	}
	compute := cat.ServicesOfType("compute")
	if len(compute) != 1 || compute[0].Endpoints[1].URL != "https://compute.two/v2.1" {
		t.Errorf("unexpected compute services: %+v", compute)
	}

	empty, err := LoadSnapshot(filepath.Join(dir, "missing"))
	if err != nil || empty.Len() != 0 {
		t.Errorf("missing snapshot should be empty, got %v, %v", empty, err)
	}
}

func TestGenerateManifest(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewWriter(dir).WriteCatalog(snapshotFixture()); err != nil {
		t.Fatal(err)
	}
	if err := GenerateManifest(dir); err != nil {
		t.Fatalf("GenerateManifest failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "manifest.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("parsing manifest: %v", err)
	}
	if m.Stats.TotalTypes != 2 || m.Stats.TotalServices != 2 || m.Stats.TotalEndpoints != 2 || m.Stats.TotalRegions != 2 {
		t.Errorf("unexpected stats: %+v", m.Stats)
	}
	if m.Services[0].Type != "compute" || m.Services[0].File != filepath.Join("services", "compute.yaml") {
		t.Errorf("unexpected first service: %+v", m.Services[0])
	}
}

func TestBuildManifest(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := BuildManifest(snapshotFixture(), now)
	if m.GeneratedAt != "2024-05-01T12:00:00Z" {
		t.Errorf("GeneratedAt = %s", m.GeneratedAt)
	}
	if len(m.Regions) != 2 || m.Regions[0] != "RegionOne" {
		t.Errorf("Regions = %v", m.Regions)
	}
	if m.Services[1].Type != "image" || m.Services[1].Endpoints != 0 {
		t.Errorf("unexpected image entry: %+v", m.Services[1])
	}
}
