package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"gwprov/internal/inventory"
	"gwprov/internal/portdata"
	"gwprov/internal/provision"
	"gwprov/internal/store"
)

var (
	successColor = lipgloss.Color("#22c55e")
	failColor    = lipgloss.Color("#ef4444")
	skipColor    = lipgloss.Color("#eab308")
	mutedColor   = lipgloss.Color("#6b7280")

	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	failStyle    = lipgloss.NewStyle().Foreground(failColor)
	skipStyle    = lipgloss.NewStyle().Foreground(skipColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)
)

// renderResult summarizes a provisioning run with one line per failure.
func renderResult(res provision.Result) string {
	sum := res.Summary()
	header := titleStyle.Render(fmt.Sprintf("%s  gateway %s  from %s", res.Workflow, res.Gateway, res.Start))
	counts := lipgloss.JoinHorizontal(lipgloss.Top,
		successStyle.Render(fmt.Sprintf("%d success", sum.Success)), "  ",
		failStyle.Render(fmt.Sprintf("%d failed", sum.Failed)), "  ",
		skipStyle.Render(fmt.Sprintf("%d skipped", sum.Skipped)),
	)

	lines := []string{header, counts}
	for _, o := range res.Outcomes {
		if o.Kind == provision.KindFailed {
			lines = append(lines, failStyle.Render(fmt.Sprintf("  %-4s %s", o.Port, o)))
		}
	}
	if res.Aborted {
		lines = append(lines, failStyle.Bold(true).Render(fmt.Sprintf("aborted at %s; re-run with --start %d", res.AbortedAt, res.AbortedAt.Index())))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// renderInventory summarizes a report per gateway.
func renderInventory(r inventory.Report, paths inventory.Paths) string {
	lines := []string{titleStyle.Render("Gateway inventory " + r.Generated.Format("2006-01-02 15:04"))}
	for _, g := range r.Gateways {
		if g.Err != nil {
			lines = append(lines, failStyle.Render(fmt.Sprintf("  %s  FAILED  %v", g.Gateway, g.Err)))
			continue
		}
		counts := map[portdata.Status]int{}
		complete := 0
		for _, rec := range g.Dataset.Records() {
			counts[rec.Status]++
			if rec.Complete() {
				complete++
			}
		}
		lines = append(lines, statusLine(g.Gateway, counts)+"  "+
			mutedStyle.Render(fmt.Sprintf("%d/%d complete in %s", complete, portdata.PortCount, g.Elapsed.Round(time.Second))))
	}
	lines = append(lines, mutedStyle.Render("report: "+paths.Text))
	if paths.Errors != "" {
		lines = append(lines, failStyle.Render("errors: "+paths.Errors))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// renderInventoryCounts shows the stored status counts of one inventory run.
func renderInventoryCounts(id string, counts map[string]map[portdata.Status]int) string {
	gateways := make([]string, 0, len(counts))
	for gw := range counts {
		gateways = append(gateways, gw)
	}
	sort.Strings(gateways)

	lines := []string{titleStyle.Render("Inventory " + id)}
	for _, gw := range gateways {
		lines = append(lines, statusLine(gw, counts[gw]))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func statusLine(gateway string, counts map[portdata.Status]int) string {
	return fmt.Sprintf("  %s  %s %s %s %s",
		gateway,
		successStyle.Render(fmt.Sprintf("%2d active", counts[portdata.StatusActive])),
		skipStyle.Render(fmt.Sprintf("%2d weak", counts[portdata.StatusWeakSignal])),
		failStyle.Render(fmt.Sprintf("%2d error", counts[portdata.StatusError])),
		mutedStyle.Render(fmt.Sprintf("%2d inactive", counts[portdata.StatusInactive])),
	)
}

// renderRuns lists runs newest first.
func renderRuns(runs []store.Run) string {
	if len(runs) == 0 {
		return mutedStyle.Render("no runs recorded")
	}
	var b strings.Builder
	for _, r := range runs {
		state := successStyle.Render("done")
		switch {
		case r.Aborted:
			state = failStyle.Render("aborted@" + string(r.AbortedAt))
		case r.FinishedAt.IsZero():
			state = skipStyle.Render("unfinished")
		}
		fmt.Fprintf(&b, "%s  %-10s gw %-4s from A%-2d  %s  %s\n",
			mutedStyle.Render(r.StartedAt.Local().Format("2006-01-02 15:04")),
			r.Workflow, r.Gateway, r.StartPort, r.Summary, state)
	}
	return strings.TrimRight(b.String(), "\n")
}
