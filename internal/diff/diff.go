package diff

import (
	"sort"

	"github.com/everstacklabs/compass/internal/catalog"
)

// Compute compares two catalogs. Endpoints are matched on their key; a key
// with exactly one URL on each side whose URL moved is reported as
// Changed, anything else as Added or Removed. Either catalog may be nil.
func Compute(prev, next *catalog.ServiceCatalog) *ChangeSet {
	cs := &ChangeSet{}

	oldIdx := index(prev)
	newIdx := index(next)

	cs.AddedServices, cs.RemovedServices = serviceTypeDelta(prev, next)

	keys := make(map[EndpointKey]bool, len(oldIdx)+len(newIdx))
	for k := range oldIdx {
		keys[k] = true
	}
	for k := range newIdx {
		keys[k] = true
	}

	for k := range keys {
		before, after := oldIdx[k], newIdx[k]

		if len(before) == 1 && len(after) == 1 {
			if before[0] == after[0] {
				cs.Unchanged++
			} else {
				cs.Changed = append(cs.Changed, EndpointChange{Key: k, OldURL: before[0], NewURL: after[0]})
			}
			continue
		}

		inBefore := toSet(before)
		inAfter := toSet(after)
		for _, u := range after {
			if !inBefore[u] {
				cs.Added = append(cs.Added, EndpointChange{Key: k, NewURL: u})
			} else {
				cs.Unchanged++
			}
		}
		for _, u := range before {
			if !inAfter[u] {
				cs.Removed = append(cs.Removed, EndpointChange{Key: k, OldURL: u})
			}
		}
	}

	sortChanges(cs.Added)
	sortChanges(cs.Removed)
	sortChanges(cs.Changed)
	return cs
}

// index maps each key to its sorted, de-duplicated URLs.
func index(cat *catalog.ServiceCatalog) map[EndpointKey][]string {
	out := make(map[EndpointKey][]string)
	if cat == nil {
		return out
	}
	for _, s := range cat.Services() {
		for _, ep := range s.Endpoints {
			k := EndpointKey{
				ServiceType: s.Type,
				ServiceName: s.Name,
				Interface:   string(ep.Interface),
				Region:      ep.Region,
				TenantID:    ep.TenantID,
			}
			out[k] = append(out[k], ep.URL)
		}
	}
	for k, urls := range out {
		sort.Strings(urls)
		out[k] = dedupe(urls)
	}
	return out
}

func serviceTypeDelta(prev, next *catalog.ServiceCatalog) (added, removed []string) {
	before := make(map[string]bool)
	after := make(map[string]bool)
	if prev != nil {
		for _, t := range prev.Types() {
			before[t] = true
		}
	}
	if next != nil {
		for _, t := range next.Types() {
			after[t] = true
		}
	}
	for t := range after {
		if !before[t] {
			added = append(added, t)
		}
	}
	for t := range before {
		if !after[t] {
			removed = append(removed, t)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func sortChanges(changes []EndpointChange) {
	sort.Slice(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if a.Key.String() != b.Key.String() {
			return a.Key.String() < b.Key.String()
		}
		if a.OldURL != b.OldURL {
			return a.OldURL < b.OldURL
		}
		return a.NewURL < b.NewURL
	})
}

func toSet(urls []string) map[string]bool {
	set := make(map[string]bool, len(urls))
	for _, u := range urls {
		set[u] = true
	}
	return set
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, u := range sorted {
		if i == 0 || u != sorted[i-1] {
			out = append(out, u)
		}
	}
	return out
}
