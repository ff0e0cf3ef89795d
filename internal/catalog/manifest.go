package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestService describes a service type entry in the manifest.
type ManifestService struct {
	Type      string   `yaml:"type" json:"type"`
	File      string   `yaml:"file" json:"file"`
	Names     []string `yaml:"names,omitempty" json:"names,omitempty"`
	Endpoints int      `yaml:"endpoints" json:"endpoints"`
	Regions   []string `yaml:"regions,omitempty" json:"regions,omitempty"`
}

// ManifestStats holds aggregate counts.
type ManifestStats struct {
	TotalTypes     int `yaml:"total_types" json:"total_types"`
	TotalServices  int `yaml:"total_services" json:"total_services"`
	TotalEndpoints int `yaml:"total_endpoints" json:"total_endpoints"`
	TotalRegions   int `yaml:"total_regions" json:"total_regions"`
}

// Manifest represents the manifest.yaml file.
type Manifest struct {
	GeneratedAt   string            `yaml:"generated_at" json:"generated_at"`
	SchemaVersion string            `yaml:"schema_version" json:"schema_version"`
	Services      []ManifestService `yaml:"services" json:"services"`
	Regions       []string          `yaml:"regions" json:"regions"`
	Stats         ManifestStats     `yaml:"stats" json:"stats"`
}

// BuildManifest summarizes a catalog.
func BuildManifest(cat *ServiceCatalog, now time.Time) *Manifest {
	type agg struct {
		names     map[string]bool
		regions   map[string]bool
		endpoints int
	}
	byType := make(map[string]*agg)
	allRegions := make(map[string]bool)
	services := cat.Services()

	for _, s := range services {
		a, ok := byType[s.Type]
		if !ok {
			a = &agg{names: map[string]bool{}, regions: map[string]bool{}}
			byType[s.Type] = a
		}
		if s.Name != "" {
			a.names[s.Name] = true
		}
		for _, ep := range s.Endpoints {
			a.endpoints++
			if ep.Region != "" {
				a.regions[ep.Region] = true
				allRegions[ep.Region] = true
			}
		}
	}

	m := &Manifest{
		GeneratedAt:   now.UTC().Format(time.RFC3339),
		SchemaVersion: "1.0",
		Regions:       sortedKeys(allRegions),
	}
	for t, a := range byType {
		m.Services = append(m.Services, ManifestService{
			Type:      t,
			File:      filepath.Join("services", t+".yaml"),
			Names:     sortedKeys(a.names),
			Endpoints: a.endpoints,
			Regions:   sortedKeys(a.regions),
		})
		m.Stats.TotalEndpoints += a.endpoints
	}
	sort.Slice(m.Services, func(i, j int) bool {
		return m.Services[i].Type < m.Services[j].Type
	})

	m.Stats.TotalTypes = len(m.Services)
	m.Stats.TotalServices = len(services)
	m.Stats.TotalRegions = len(m.Regions)
	return m
}

// GenerateManifest writes manifest.yaml for the snapshot at basePath.
func GenerateManifest(basePath string) error {
	cat, err := LoadSnapshot(basePath)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	data, err := yaml.Marshal(BuildManifest(cat, time.Now()))
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	header := "# Service Catalog Manifest\n# Auto-generated - DO NOT EDIT MANUALLY\n# Run: compass snapshot to regenerate\n\n"
	output := header + string(data)

	return os.WriteFile(filepath.Join(basePath, "manifest.yaml"), []byte(output), 0o644)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
