package reporter_test

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/depwatch/depwatch/classify"
	"github.com/depwatch/depwatch/reporter"
	"github.com/depwatch/depwatch/types"
)

func TestReporter_Report(t *testing.T) {
	color.NoColor = true

	result := classify.Result{
		Compromised: []types.Compromised{
			{
				Installed: types.InstalledPackage{
					Identifier:  types.PackageIdentifier{Namespace: "@ctrl", Name: "tinycolor"},
					Version:     "4.1.1",
					InstallPath: "/proj/node_modules/@ctrl/tinycolor",
				},
				MatchedVersions: []string{"4.1.1"},
				Sources:         []string{"feedX", "ghsa-malware"},
				Severity:        types.SeverityCritical,
			},
		},
		Suspicious: []types.Suspicious{
			{
				Installed: types.InstalledPackage{
					Identifier:  types.PackageIdentifier{Name: "debug"},
					Version:     "4.4.0",
					InstallPath: "/proj/node_modules/debug",
				},
				KnownBadVersions: []string{"4.4.2"},
				Sources:          []string{"feedX"},
			},
		},
		SafeCount: 7,
	}

	var buf bytes.Buffer
	reporter.New(&buf).Report(result, 42)

	out := buf.String()
	assert.Contains(t, out, "42 known-bad packages loaded, 9 installed packages scanned")
	assert.Contains(t, out, "COMPROMISED (1)")
	assert.Contains(t, out, "/proj/node_modules/@ctrl/tinycolor")
	assert.Contains(t, out, "feedX, ghsa-malware")
	assert.Contains(t, out, "SUSPICIOUS (1)")
	assert.Contains(t, out, "known bad: 4.4.2")
	assert.Contains(t, out, "7 packages safe")
}

func TestReporter_Report_Clean(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	reporter.New(&buf).Report(classify.Result{SafeCount: 3}, 10)

	assert.Contains(t, buf.String(), "No compromised or suspicious packages found")
}
