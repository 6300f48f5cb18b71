// Package reporter renders a scan result for the terminal. The engine hands
// over plain data; all formatting and color lives here.
package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/depwatch/depwatch/classify"
)

var (
	redBold = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
)

type Reporter struct {
	w io.Writer
}

func New(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Report writes the verdict for one scan: every compromised install path,
// every suspicious one, and the totals.
func (r *Reporter) Report(result classify.Result, registrySize int) {
	fmt.Fprintf(r.w, "%d known-bad packages loaded, %d installed packages scanned\n\n",
		registrySize, result.TotalInstalled())

	if len(result.Compromised) > 0 {
		fmt.Fprintf(r.w, "%s\n", redBold(fmt.Sprintf("COMPROMISED (%d)", len(result.Compromised))))
		for _, c := range result.Compromised {
			fmt.Fprintf(r.w, "  %s@%s\n", c.Installed.Identifier, c.Installed.Version)
			fmt.Fprintf(r.w, "    path:     %s\n", c.Installed.InstallPath)
			fmt.Fprintf(r.w, "    severity: %s\n", c.Severity)
			fmt.Fprintf(r.w, "    reported: %s\n", strings.Join(c.Sources, ", "))
		}
		fmt.Fprintln(r.w)
	}

	if len(result.Suspicious) > 0 {
		fmt.Fprintf(r.w, "%s\n", yellow(fmt.Sprintf("SUSPICIOUS (%d)", len(result.Suspicious))))
		for _, s := range result.Suspicious {
			fmt.Fprintf(r.w, "  %s@%s\n", s.Installed.Identifier, s.Installed.Version)
			fmt.Fprintf(r.w, "    path:      %s\n", s.Installed.InstallPath)
			fmt.Fprintf(r.w, "    known bad: %s\n", strings.Join(s.KnownBadVersions, ", "))
			fmt.Fprintf(r.w, "    reported:  %s\n", strings.Join(s.Sources, ", "))
		}
		fmt.Fprintln(r.w)
	}

	if len(result.Compromised) == 0 && len(result.Suspicious) == 0 {
		fmt.Fprintf(r.w, "%s\n", green("No compromised or suspicious packages found"))
	}
	fmt.Fprintf(r.w, "%s\n", green(fmt.Sprintf("%d packages safe", result.SafeCount)))
}
