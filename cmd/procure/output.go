package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/procurement-inbox/internal/reconcile"
	"github.com/nhle/procurement-inbox/internal/sync"
	"github.com/nhle/procurement-inbox/internal/theme"
)

func renderKV(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		theme.LabelStyle.Render(label),
		theme.ValueStyle.Render(value),
	)
}

// renderSummary prints cycle totals followed by one line per processed
// message.
func renderSummary(s *sync.Summary) string {
	var b strings.Builder

	title := "Fetch complete"
	if s.Aborted {
		title = "Fetch aborted"
	}
	b.WriteString(theme.HeaderStyle.Render(title))
	b.WriteString("\n")

	totals := []string{
		renderKV("Fetched", fmt.Sprint(s.Fetched)),
		renderKV("Ignored", fmt.Sprint(s.Ignored)),
		renderKV("Created", theme.ActionStyle(string(reconcile.ActionCreated)).Render(fmt.Sprint(s.Created))),
		renderKV("Updated", theme.ActionStyle(string(reconcile.ActionUpdated)).Render(fmt.Sprint(s.Updated))),
		renderKV("Skipped", theme.ActionStyle(string(reconcile.ActionSkipped)).Render(fmt.Sprint(s.Skipped))),
		renderKV("Failed", theme.ActionStyle(string(reconcile.ActionFailed)).Render(fmt.Sprint(s.Failed))),
	}
	if s.Error != "" {
		totals = append(totals, renderKV("Error", theme.OutcomeStyle(false).Render(s.Error)))
	}
	b.WriteString(theme.PanelStyle.Render(strings.Join(totals, "\n")))

	for _, r := range s.Results {
		b.WriteString("\n")
		b.WriteString(renderResult(r))
	}
	return b.String()
}

func renderResult(r reconcile.Result) string {
	line := fmt.Sprintf("%s  %s  %s",
		theme.ActionStyle(string(r.Action)).Width(8).Render(string(r.Action)),
		r.From,
		r.Subject,
	)
	if r.Reason != "" {
		line += "  " + theme.HelpStyle.Render(r.Reason)
	}
	return line
}

func renderConnection(r *sync.ConnectionReport) string {
	lines := []string{
		renderKV("Connection", theme.OutcomeStyle(r.OK).Render(okText(r.OK))),
	}
	if r.OK {
		lines = append(lines,
			renderKV("Folder", fmt.Sprintf("%s (%d messages)", r.Folder, r.Messages)),
			renderKV("Mailboxes", strings.Join(r.Mailboxes, ", ")),
		)
	} else {
		lines = append(lines, renderKV("Error", r.Error))
	}
	return strings.Join(lines, "\n")
}

func okText(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
