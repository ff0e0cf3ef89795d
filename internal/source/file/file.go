package file

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/everstacklabs/compass/internal/catalog"
	"github.com/everstacklabs/compass/internal/source"
)

func init() {
	source.Register(&File{})
}

// File reads a saved token response or catalog document from disk.
type File struct {
	path string
}

func (f *File) Name() string { return "file" }

// Configure sets the document path.
func (f *File) Configure(path string) {
	f.path = path
}

func (f *File) Fetch(ctx context.Context) (*catalog.ServiceCatalog, error) {
	if f.path == "" {
		return nil, fmt.Errorf("file source: no catalog_file configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cat, err := catalog.Load(f.path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", f.path, err)
	}
	slog.Debug("catalog loaded from file", "path", f.path, "format", cat.Format(), "services", cat.Len())
	return cat, nil
}
