package registry_test

import (
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depwatch/depwatch/registry"
	"github.com/depwatch/depwatch/types"
)

func partial(source string, sev types.Severity, specs ...string) types.Registry {
	r := types.Registry{}
	for _, spec := range specs {
		id, version, err := types.ParsePackageSpec(spec)
		if err != nil {
			panic(err)
		}
		r.Add(id, version, source, sev, time.Time{})
	}
	return r
}

func TestMerge(t *testing.T) {
	a := partial("feedA", types.SeverityHigh, "pkgA@1.0.0", "pkgB@2.0.0")
	b := partial("feedB", types.SeverityCritical, "pkgA@1.0.0", "@scope/pkgC@3.0.0")

	merged := registry.Merge(a, b)
	require.Len(t, merged, 3)

	entry := merged[types.PackageIdentifier{Name: "pkgA"}]
	require.NotNil(t, entry)
	rec := entry.Versions["1.0.0"]
	require.NotNil(t, rec)

	// both feeds reported pkgA@1.0.0
	assert.Len(t, rec.Sources, 2)
	assert.Equal(t, types.SeverityCritical, rec.Severity)
}

func TestMerge_OrderIndependence(t *testing.T) {
	a := partial("feedA", types.SeverityLow, "pkgA@1.0.0", "pkgA@1.0.1")
	b := partial("feedB", types.SeverityCritical, "pkgA@1.0.0", "pkgB@2.0.0")
	c := partial("feedC", types.SeverityMedium, "pkgB@2.0.0")

	ab := registry.Merge(a, b, c)
	ba := registry.Merge(c, b, a)

	if diff := pretty.Compare(ab, ba); diff != "" {
		t.Errorf("merge order changed the result (-AB +BA):\n%s", diff)
	}
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, registry.Merge())
	assert.Empty(t, registry.Merge(types.Registry{}, types.Registry{}))
}

func TestEntryHelpers(t *testing.T) {
	r := partial("feedB", types.SeverityHigh, "pkgA@1.0.1")
	id, version, err := types.ParsePackageSpec("pkgA@1.0.0")
	require.NoError(t, err)
	r.Add(id, version, "feedA", types.SeverityHigh, time.Time{})

	entry := r[id]
	assert.Equal(t, []string{"1.0.0", "1.0.1"}, registry.KnownVersions(entry))
	assert.Equal(t, []string{"feedA", "feedB"}, registry.Sources(entry))
	assert.Equal(t, []string{"feedA"}, registry.VersionSources(entry, "1.0.0"))
	assert.Nil(t, registry.VersionSources(entry, "9.9.9"))
}
