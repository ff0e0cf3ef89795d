package source

import (
	"context"

	"github.com/everstacklabs/compass/internal/catalog"
)

// Source produces a service catalog.
type Source interface {
	// Name returns the registry name (e.g., "keystone").
	Name() string
	// Fetch returns a freshly built catalog.
	Fetch(ctx context.Context) (*catalog.ServiceCatalog, error)
}
