package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/everstacklabs/compass/internal/catalog"
	"github.com/everstacklabs/compass/internal/source"
)

func TestFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `
token:
  expires_at: "2030-01-01T00:00:00Z"
  catalog:
    - type: compute
      name: nova
      endpoints:
        - interface: public
          region: RegionOne
          url: https://compute.example.com/v2.1
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &File{}
	f.Configure(path)
	cat, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if cat.Format() != catalog.FormatV3 || cat.Len() != 1 {
		t.Errorf("unexpected catalog: format=%s len=%d", cat.Format(), cat.Len())
	}
}

func TestFetchErrors(t *testing.T) {
	f := &File{}
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Error("expected error without a path")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"nothing": "here"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	f.Configure(path)
	if _, err := f.Fetch(context.Background()); !errors.Is(err, catalog.ErrMalformedCatalog) {
		t.Errorf("error = %v, want ErrMalformedCatalog", err)
	}
}

func TestRegistered(t *testing.T) {
	if _, err := source.Get("file"); err != nil {
		t.Errorf("file source not registered: %v", err)
	}
}
