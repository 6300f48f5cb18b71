package types

import (
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// ErrMalformedIdentifier is returned when a package spec string has no
// version separator after the optional namespace prefix.
var ErrMalformedIdentifier = xerrors.New("malformed package identifier")

// PackageIdentifier is a package name with an optional namespace
// (e.g. "@babel"). Identifiers are comparable; two identifiers are equal
// only when both namespace and name match exactly.
type PackageIdentifier struct {
	Namespace string
	Name      string
}

func (p PackageIdentifier) String() string {
	if p.Namespace != "" {
		return p.Namespace + "/" + p.Name
	}
	return p.Name
}

// ParseIdentifier splits a bare package name into namespace and name.
// "@scope/bar" => {"@scope", "bar"}, "bar" => {"", "bar"}.
func ParseIdentifier(name string) PackageIdentifier {
	if strings.HasPrefix(name, "@") {
		if idx := strings.Index(name, "/"); idx > 0 {
			return PackageIdentifier{
				Namespace: name[:idx],
				Name:      name[idx+1:],
			}
		}
	}
	return PackageIdentifier{Name: name}
}

// ParsePackageSpec parses a combined "name@version" or "@scope/name@version"
// spec. The version separator is the last "@" in the string; a leading "@"
// starts a namespace and is never treated as the separator.
func ParsePackageSpec(spec string) (PackageIdentifier, string, error) {
	sep := strings.LastIndex(spec, "@")
	if sep <= 0 {
		// sep == 0 means the "@" is the namespace marker, not a separator
		return PackageIdentifier{}, "", xerrors.Errorf("no version in %q: %w", spec, ErrMalformedIdentifier)
	}
	name, version := spec[:sep], spec[sep+1:]
	if name == "" || version == "" {
		return PackageIdentifier{}, "", xerrors.Errorf("empty name or version in %q: %w", spec, ErrMalformedIdentifier)
	}
	return ParseIdentifier(name), version, nil
}

// InstalledPackage is one physical on-disk copy of a package. Two installed
// packages may share an identifier and even a version but never an install
// path.
type InstalledPackage struct {
	Identifier  PackageIdentifier
	Version     string
	InstallPath string
}

type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow
	case "medium", "moderate":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	}
	return SeverityUnknown
}

// VersionRecord holds everything the feeds reported about one compromised
// release: which feeds listed it, the highest severity seen, and the earliest
// publish date any feed attached to it.
type VersionRecord struct {
	Sources     map[string]struct{}
	Severity    Severity
	PublishedAt time.Time
}

// CompromisedEntry is the union of everything known about one identifier
// across all feeds. Versions only appear here when at least one feed reported
// them; the source set per version is never empty.
type CompromisedEntry struct {
	Identifier PackageIdentifier
	Versions   map[string]*VersionRecord
}

// Registry maps package identifiers to their compromised entries.
type Registry map[PackageIdentifier]*CompromisedEntry

// Add records that source reported identifier@version with the given
// severity. Repeated adds union into the same version record, keeping the
// highest severity and the earliest non-zero publish date.
func (r Registry) Add(id PackageIdentifier, version, source string, severity Severity, publishedAt time.Time) {
	if id.Name == "" || version == "" || source == "" {
		return
	}
	entry, ok := r[id]
	if !ok {
		entry = &CompromisedEntry{
			Identifier: id,
			Versions:   map[string]*VersionRecord{},
		}
		r[id] = entry
	}
	rec, ok := entry.Versions[version]
	if !ok {
		rec = &VersionRecord{Sources: map[string]struct{}{}}
		entry.Versions[version] = rec
	}
	rec.Sources[source] = struct{}{}
	if severity > rec.Severity {
		rec.Severity = severity
	}
	if !publishedAt.IsZero() && (rec.PublishedAt.IsZero() || publishedAt.Before(rec.PublishedAt)) {
		rec.PublishedAt = publishedAt
	}
}

// Compromised is an installed package whose version is itself listed as
// compromised.
type Compromised struct {
	Installed       InstalledPackage
	MatchedVersions []string // every known-bad version for the identifier
	Sources         []string // feeds that reported the matched version
	Severity        Severity
}

// Suspicious is an installed package whose identifier is known bad at some
// version other than the installed one.
type Suspicious struct {
	Installed        InstalledPackage
	KnownBadVersions []string
	Sources          []string // union across all bad versions of the entry
}
