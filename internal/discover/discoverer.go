package discover

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/everstacklabs/compass/internal/httpclient"
)

// Discoverer fetches version documents.
type Discoverer struct {
	client *httpclient.Client
	hacks  *VersionHacks
}

// NewDiscoverer creates a Discoverer. A nil hacks table disables rewriting.
func NewDiscoverer(client *httpclient.Client, hacks *VersionHacks) *Discoverer {
	return &Discoverer{client: client, hacks: hacks}
}

// Discover fetches and parses the version document at url.
func (d *Discoverer) Discover(ctx context.Context, url string, headers map[string]string) (*Discovery, error) {
	resp, err := d.client.Get(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("fetching versions from %s: %w", url, err)
	}
	disc, err := Parse(resp.Body)
	if err != nil {
		// A cached copy of a bad document would keep failing.
		d.client.Invalidate(url, headers)
		return nil, fmt.Errorf("parsing versions from %s: %w", url, err)
	}
	slog.Debug("discovered versions", "url", url, "count", len(disc.raw), "from_cache", resp.FromCache)
	return disc, nil
}

// DiscoverService applies the version hacks for serviceType to url before
// discovering.
func (d *Discoverer) DiscoverService(ctx context.Context, serviceType, url string, headers map[string]string) (*Discovery, error) {
	target := d.hacks.Apply(serviceType, url)
	if target != url {
		slog.Debug("rewrote discovery url", "service_type", serviceType, "from", url, "to", target)
	}
	return d.Discover(ctx, target, headers)
}
