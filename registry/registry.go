// Package registry folds the partial registries produced by individual feeds
// into the unified view the classifier runs against.
package registry

import (
	"sort"

	"github.com/samber/lo"

	"github.com/depwatch/depwatch/types"
)

// Merge folds any number of partial registries into one. Source sets are
// unioned per version, the highest severity seen wins, and the earliest
// publish date is kept. The fold is commutative: the merged result does not
// depend on feed processing order.
func Merge(partials ...types.Registry) types.Registry {
	merged := types.Registry{}
	for _, partial := range partials {
		for id, entry := range partial {
			for version, rec := range entry.Versions {
				for source := range rec.Sources {
					merged.Add(id, version, source, rec.Severity, rec.PublishedAt)
				}
			}
		}
	}
	return merged
}

// KnownVersions returns the sorted known-bad versions of an entry.
func KnownVersions(entry *types.CompromisedEntry) []string {
	versions := lo.Keys(entry.Versions)
	sort.Strings(versions)
	return versions
}

// Sources returns the sorted union of source names across every version of
// an entry.
func Sources(entry *types.CompromisedEntry) []string {
	set := map[string]struct{}{}
	for _, rec := range entry.Versions {
		for source := range rec.Sources {
			set[source] = struct{}{}
		}
	}
	sources := lo.Keys(set)
	sort.Strings(sources)
	return sources
}

// VersionSources returns the sorted source names for one version only.
func VersionSources(entry *types.CompromisedEntry, version string) []string {
	rec, ok := entry.Versions[version]
	if !ok {
		return nil
	}
	sources := lo.Keys(rec.Sources)
	sort.Strings(sources)
	return sources
}
