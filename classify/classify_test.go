package classify_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depwatch/depwatch/classify"
	"github.com/depwatch/depwatch/types"
)

func installed(spec, path string) types.InstalledPackage {
	id, version, err := types.ParsePackageSpec(spec)
	if err != nil {
		panic(err)
	}
	return types.InstalledPackage{Identifier: id, Version: version, InstallPath: path}
}

func TestClassify(t *testing.T) {
	reg := types.Registry{}
	foo := types.PackageIdentifier{Name: "foo"}
	reg.Add(foo, "1.0.0", "feedX", types.SeverityCritical, time.Time{})

	result := classify.Classify(reg, []types.InstalledPackage{
		installed("foo@1.0.0", "/a/foo"),
		installed("foo@2.0.0", "/b/foo"),
		installed("baz@3.0.0", "/c/baz"),
	})

	require.Len(t, result.Compromised, 1)
	assert.Equal(t, "/a/foo", result.Compromised[0].Installed.InstallPath)
	assert.Equal(t, []string{"1.0.0"}, result.Compromised[0].MatchedVersions)
	assert.Equal(t, []string{"feedX"}, result.Compromised[0].Sources)
	assert.Equal(t, types.SeverityCritical, result.Compromised[0].Severity)

	require.Len(t, result.Suspicious, 1)
	assert.Equal(t, "/b/foo", result.Suspicious[0].Installed.InstallPath)
	assert.Equal(t, []string{"1.0.0"}, result.Suspicious[0].KnownBadVersions)
	assert.Equal(t, []string{"feedX"}, result.Suspicious[0].Sources)

	assert.Equal(t, 1, result.SafeCount)
	assert.Equal(t, 3, result.TotalInstalled())
}

func TestClassify_ScopedNeverMatchesUnscoped(t *testing.T) {
	reg := types.Registry{}
	reg.Add(types.PackageIdentifier{Namespace: "@scope", Name: "bar"}, "2.0.0", "feedX", types.SeverityHigh, time.Time{})

	result := classify.Classify(reg, []types.InstalledPackage{
		installed("bar@2.0.0", "/a/bar"),
		installed("@scope/bar@2.0.0", "/a/@scope/bar"),
	})

	require.Len(t, result.Compromised, 1)
	assert.Equal(t, "@scope", result.Compromised[0].Installed.Identifier.Namespace)
	assert.Equal(t, 1, result.SafeCount)
}

func TestClassify_CompromisedCarriesAllKnownVersions(t *testing.T) {
	reg := types.Registry{}
	id := types.PackageIdentifier{Name: "debug"}
	reg.Add(id, "4.4.2", "feedX", types.SeverityHigh, time.Time{})
	reg.Add(id, "4.4.3", "feedY", types.SeverityHigh, time.Time{})

	result := classify.Classify(reg, []types.InstalledPackage{installed("debug@4.4.2", "/a/debug")})

	require.Len(t, result.Compromised, 1)
	// all known-bad versions for operator context, sources for the match only
	assert.Equal(t, []string{"4.4.2", "4.4.3"}, result.Compromised[0].MatchedVersions)
	assert.Equal(t, []string{"feedX"}, result.Compromised[0].Sources)
}

func TestClassify_PartitionsExactly(t *testing.T) {
	reg := types.Registry{}
	for i := 0; i < 5; i++ {
		reg.Add(types.PackageIdentifier{Name: fmt.Sprintf("pkg%d", i)}, "1.0.0", "feedX", types.SeverityHigh, time.Time{})
	}

	var pkgs []types.InstalledPackage
	for i := 0; i < 20; i++ {
		pkgs = append(pkgs, installed(
			fmt.Sprintf("pkg%d@%d.0.0", i%10, i%3+1),
			fmt.Sprintf("/m/%d", i),
		))
	}

	result := classify.Classify(reg, pkgs)
	assert.Equal(t, len(pkgs), len(result.Compromised)+len(result.Suspicious)+result.SafeCount)
}

func TestClassify_EmptyInputs(t *testing.T) {
	result := classify.Classify(types.Registry{}, nil)
	assert.Zero(t, result.TotalInstalled())

	result = classify.Classify(types.Registry{}, []types.InstalledPackage{installed("foo@1.0.0", "/a/foo")})
	assert.Equal(t, 1, result.SafeCount)
}
