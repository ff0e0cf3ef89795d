package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServiceFile is the on-disk form of every service of one type.
type ServiceFile struct {
	Type     string    `yaml:"type"`
	Services []Service `yaml:"services"`
}

// WriteResult reports what happened when a service file was written.
type WriteResult struct {
	Path      string
	IsNew     bool
	Unchanged bool
}

// SnapshotWriter writes a catalog as services/<type>.yaml files. Keys an
// operator added by hand to an existing file (owner, notes, ...) are kept;
// the type and services keys are replaced.
type SnapshotWriter struct {
	basePath string
}

// NewWriter creates a new SnapshotWriter.
func NewWriter(basePath string) *SnapshotWriter {
	return &SnapshotWriter{basePath: basePath}
}

// ServicesDir returns the directory holding the service files.
func (w *SnapshotWriter) ServicesDir() string {
	return filepath.Join(w.basePath, "services")
}

// WriteCatalog writes one file per service type and removes files of types
// no longer present. Files whose content would not change are left alone.
func (w *SnapshotWriter) WriteCatalog(cat *ServiceCatalog) ([]WriteResult, error) {
	dir := w.ServicesDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating services dir: %w", err)
	}

	byType := make(map[string][]Service)
	for _, s := range cat.Services() {
		byType[s.Type] = append(byType[s.Type], s)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var results []WriteResult
	for _, t := range types {
		r, err := w.WriteServices(t, byType[t])
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading services dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		if _, ok := byType[strings.TrimSuffix(name, ".yaml")]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("removing stale service file: %w", err)
		}
	}

	return results, nil
}

// WriteServices writes the services of one type, merging into an existing file.
func (w *SnapshotWriter) WriteServices(serviceType string, services []Service) (*WriteResult, error) {
	if serviceType == "" || strings.ContainsAny(serviceType, `/\`) || serviceType == "." || serviceType == ".." {
		return nil, fmt.Errorf("invalid service type %q for a file name", serviceType)
	}
	filePath := filepath.Join(w.ServicesDir(), serviceType+".yaml")
	result := &WriteResult{Path: filePath}

	normalized := make([]Service, len(services))
	for i, s := range services {
		normalized[i] = snapshotService(s)
	}
	services = normalized

	if err := os.MkdirAll(w.ServicesDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating services dir: %w", err)
	}

	fresh, err := yaml.Marshal(&ServiceFile{Type: serviceType, Services: services})
	if err != nil {
		return nil, fmt.Errorf("marshaling services: %w", err)
	}

	existingData, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		result.IsNew = true
		return result, os.WriteFile(filePath, fresh, 0o644)
	} else if err != nil {
		return nil, fmt.Errorf("reading existing file: %w", err)
	}

	var existing ServiceFile
	if err := yaml.Unmarshal(existingData, &existing); err != nil {
		return nil, fmt.Errorf("parsing existing service file: %w", err)
	}
	if existing.Type == serviceType && reflect.DeepEqual(existing.Services, services) {
		result.Unchanged = true
		return result, nil
	}

	// Parse existing as yaml.Node to preserve hand-added keys
	var existingDoc yaml.Node
	if err := yaml.Unmarshal(existingData, &existingDoc); err != nil {
		return nil, fmt.Errorf("parsing existing YAML: %w", err)
	}
	var freshDoc yaml.Node
	if err := yaml.Unmarshal(fresh, &freshDoc); err != nil {
		return nil, fmt.Errorf("parsing generated YAML: %w", err)
	}

	out, err := yaml.Marshal(mergeNodes(&existingDoc, &freshDoc))
	if err != nil {
		return nil, fmt.Errorf("marshaling merged YAML: %w", err)
	}

	if err := os.WriteFile(filePath, out, 0o644); err != nil {
		return nil, fmt.Errorf("writing merged file: %w", err)
	}
	return result, nil
}

// LoadSnapshot reads a snapshot written by SnapshotWriter back into a
// catalog. A missing snapshot is an empty catalog.
func LoadSnapshot(basePath string) (*ServiceCatalog, error) {
	dir := filepath.Join(basePath, "services")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return New(FormatV3, nil, TokenInfo{}), nil
	} else if err != nil {
		return nil, fmt.Errorf("reading services dir: %w", err)
	}

	var services []Service
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var sf ServiceFile
		if err := yaml.Unmarshal(data, &sf); err != nil {
			return nil, &MalformedCatalogError{Path: path, Reason: "decoding service file", Err: err}
		}
		for i, s := range sf.Services {
			if s.Type == "" {
				s.Type = sf.Type
			}
			if s.Type != sf.Type {
				return nil, malformed(fmt.Sprintf("%s: services[%d].type", path, i), "service type %q in file for %q", s.Type, sf.Type)
			}
			services = append(services, s)
		}
	}
	return New(FormatV3, services, TokenInfo{}), nil
}

// snapshotService drops the raw attributes; the normalized fields carry
// everything a snapshot compares.
func snapshotService(s Service) Service {
	s = cloneService(s)
	for i := range s.Endpoints {
		s.Endpoints[i].Attrs = nil
	}
	if s.Endpoints == nil {
		s.Endpoints = []Endpoint{}
	}
	return s
}

// mergeNodes overlays src mapping keys onto dst mapping, preserving dst order
// and any keys in dst not present in src.
func mergeNodes(dst, src *yaml.Node) *yaml.Node {
	// Handle document nodes
	if dst.Kind == yaml.DocumentNode && len(dst.Content) > 0 {
		dst = dst.Content[0]
	}
	if src.Kind == yaml.DocumentNode && len(src.Content) > 0 {
		src = src.Content[0]
	}

	if dst.Kind != yaml.MappingNode || src.Kind != yaml.MappingNode {
		return src
	}

	// Build src key→value index
	srcMap := make(map[string]*yaml.Node)
	for i := 0; i+1 < len(src.Content); i += 2 {
		srcMap[src.Content[i].Value] = src.Content[i+1]
	}

	// Update existing keys in dst order
	seen := make(map[string]bool)
	for i := 0; i+1 < len(dst.Content); i += 2 {
		key := dst.Content[i].Value
		if srcVal, ok := srcMap[key]; ok {
			dst.Content[i+1] = srcVal
			seen[key] = true
		}
	}

	// Append new keys from src not in dst
	for i := 0; i+1 < len(src.Content); i += 2 {
		key := src.Content[i].Value
		if !seen[key] {
			dst.Content = append(dst.Content, src.Content[i], src.Content[i+1])
		}
	}

	return dst
}
