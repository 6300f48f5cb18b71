// Package classify cross-references installed packages against the unified
// registry and partitions them into compromised, suspicious and safe.
package classify

import (
	"github.com/depwatch/depwatch/registry"
	"github.com/depwatch/depwatch/types"
)

// Result partitions an installed set. Every installed package lands in
// exactly one bucket:
//
//	Compromised — the installed version is itself listed as compromised
//	Suspicious  — the identifier is known bad at some other version
//	safe        — the identifier is not in the registry at all (counted only)
type Result struct {
	Compromised []types.Compromised
	Suspicious  []types.Suspicious
	SafeCount   int
}

// TotalInstalled returns the number of packages that were classified.
func (r Result) TotalInstalled() int {
	return len(r.Compromised) + len(r.Suspicious) + r.SafeCount
}

// Classify audits every installed package against the registry. Matching is
// by exact version string: the feeds publish exact compromised releases, so
// no range logic applies. Input order is preserved within each bucket.
func Classify(reg types.Registry, installed []types.InstalledPackage) Result {
	var result Result
	for _, pkg := range installed {
		entry, ok := reg[pkg.Identifier]
		if !ok {
			result.SafeCount++
			continue
		}

		if rec, ok := entry.Versions[pkg.Version]; ok {
			result.Compromised = append(result.Compromised, types.Compromised{
				Installed:       pkg,
				MatchedVersions: registry.KnownVersions(entry),
				Sources:         registry.VersionSources(entry, pkg.Version),
				Severity:        rec.Severity,
			})
			continue
		}

		result.Suspicious = append(result.Suspicious, types.Suspicious{
			Installed:        pkg,
			KnownBadVersions: registry.KnownVersions(entry),
			Sources:          registry.Sources(entry),
		})
	}
	return result
}
