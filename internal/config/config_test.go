package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source != "keystone" || cfg.Interface != "public" || !cfg.ServiceNameFallback {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.Discovery.AllowDeprecated || cfg.Discovery.AllowExperimental || cfg.Discovery.AllowUnknown {
		t.Errorf("unexpected discovery defaults: %+v", cfg.Discovery)
	}
	if len(cfg.VersionHacks) != 1 || cfg.VersionHacks[0].ServiceType != "identity" {
		t.Errorf("unexpected version hacks: %+v", cfg.VersionHacks)
	}
	if !filepath.IsAbs(cfg.Snapshot.Path) {
		t.Errorf("snapshot path should be absolute: %s", cfg.Snapshot.Path)
	}
}

func TestLoadOpenStackEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OS_AUTH_URL", "http://keystone:5000/v3")
	t.Setenv("OS_USERNAME", "admin")
	t.Setenv("OS_PASSWORD", "secret")
	t.Setenv("OS_PROJECT_NAME", "demo")
	t.Setenv("OS_REGION_NAME", "RegionTwo")
	t.Setenv("OS_INTERFACE", "internal")
	t.Setenv("GITHUB_TOKEN", "ghp_x")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Auth.AuthURL != "http://keystone:5000/v3" || cfg.Auth.Username != "admin" ||
		cfg.Auth.Password != "secret" || cfg.Auth.ProjectName != "demo" {
		t.Errorf("unexpected auth: %+v", cfg.Auth)
	}
	if cfg.Region != "RegionTwo" || cfg.Interface != "internal" {
		t.Errorf("region/interface = %q/%q", cfg.Region, cfg.Interface)
	}
	if cfg.GitHub.Token != "ghp_x" {
		t.Errorf("github token = %q", cfg.GitHub.Token)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compass.yaml")
	doc := `
source: file
catalog_file: /tmp/token.json
service_name_fallback: false
discovery:
  allow_experimental: true
version_hacks:
  - service_type: identity
    pattern: /v2.0/?$
    replacement: /
  - service_type: volume
    pattern: /v1/[^/]+$
    replacement: /
serve:
  refresh_interval: 5m
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source != "file" || cfg.CatalogFile != "/tmp/token.json" || cfg.ServiceNameFallback {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !cfg.Discovery.AllowExperimental || !cfg.Discovery.AllowDeprecated {
		t.Errorf("unexpected discovery options: %+v", cfg.Discovery)
	}
	if len(cfg.VersionHacks) != 2 || cfg.VersionHacks[1].ServiceType != "volume" {
		t.Errorf("unexpected version hacks: %+v", cfg.VersionHacks)
	}
	if got := Duration(cfg.Serve.RefreshInterval, time.Hour); got != 5*time.Minute {
		t.Errorf("refresh interval = %v", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad source", "source: swift\n"},
		{"bad ttl", "cache_ttl: forever\n"},
		{"bad rate", "rate_limit: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "compass.yaml")
			if err := os.WriteFile(path, []byte(tt.doc), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
