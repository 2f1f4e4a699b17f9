// cmd/reconductor/internal/format/summary.go
// Package format renders the end-of-run and status summaries.
package format

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/reconductor/reconductor/pkg/state"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// Header renders a bold section title over a divider line.
func Header(w io.Writer, title string) {
	divider := dividerStyle.Render("────────────────────────────────────────────────────────────")
	fmt.Fprintln(w, divider)
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, divider)
}

// PrintStatistics writes the per-stage breakdown and the headline buckets.
func PrintStatistics(w io.Writer, stats state.Statistics) {
	Header(w, "Scan State Summary")
	fmt.Fprintf(w, "Total targets: %d\n\n", stats.Total)

	fmt.Fprintln(w, "By stage:")
	stages := make([]state.Stage, 0, len(stats.ByStage))
	for stage := range stats.ByStage {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
	for _, stage := range stages {
		fmt.Fprintf(w, "  %-26s %d\n", stage, stats.ByStage[stage])
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %d\n", color.GreenString("✓ Completed:"), stats.Completed)
	fmt.Fprintf(w, "  %s %d\n", color.RedString("✗ Failed:"), stats.Failed)
	fmt.Fprintf(w, "  %s %d\n", color.YellowString("∅ No hosts:"), stats.NoHosts)
	fmt.Fprintf(w, "  %s %d\n", color.YellowString("∅ No ports:"), stats.NoPorts)
	fmt.Fprintf(w, "  %s %d\n", color.CyanString("… In progress:"), stats.InProgress)

	if len(stats.Secondary) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Nuclei status:")
		statuses := make([]state.SecondaryStatus, 0, len(stats.Secondary))
		for status := range stats.Secondary {
			statuses = append(statuses, status)
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
		for _, status := range statuses {
			fmt.Fprintf(w, "  %-26s %d\n", status, stats.Secondary[status])
		}
	}
}

// PrintScanSummary writes the discovery totals and run timing.
func PrintScanSummary(w io.Writer, sum state.ScanSummary) {
	Header(w, "Scan Results")
	fmt.Fprintf(w, "  Targets scanned:  %d\n", sum.TotalTargets)
	fmt.Fprintf(w, "  Live hosts found: %d\n", sum.TotalHosts)
	fmt.Fprintf(w, "  Open ports found: %d\n", sum.TotalPorts)
	fmt.Fprintf(w, "  Hosts with ports: %d\n", sum.HostsWithPorts)
	if sum.Duration > 0 {
		fmt.Fprintf(w, "  Duration:         %s\n", sum.Duration.Round(time.Second))
	}
}
