package web

import (
	"fmt"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/datastorer/internal/core"
	"github.com/JonMunkholm/datastorer/internal/history"
	"github.com/JonMunkholm/datastorer/internal/web/templates"
)

// RunsPage renders the recent-runs dashboard.
func RunsPage(runs []history.Run, status core.LimiterStatus, now time.Time) templ.Component {
	rows := make([]templates.RunRow, len(runs))
	for i, run := range runs {
		rows[i] = runRow(run, now)
	}
	return templates.RunsPage(rows, templates.SlotUsage{
		Active:        status.Active,
		MaxConcurrent: status.MaxConcurrent,
	})
}

func runRow(run history.Run, now time.Time) templates.RunRow {
	resource := run.ResourceID
	if run.ResourceName != "" {
		resource = run.ResourceName + " (" + run.ResourceID + ")"
	}
	errText := run.Error
	if run.ErrorCode != "" {
		errText = run.ErrorCode + ": " + errText
	}

	return templates.RunRow{
		StartedAt: run.StartedAt.UTC().Format(time.RFC3339),
		Ago:       ago(now, run.StartedAt),
		Resource:  resource,
		Status:    string(run.Status),
		Records:   run.Records,
		Batches:   run.Batches,
		Duration:  run.Duration().Round(time.Millisecond).String(),
		Error:     errText,
	}
}

// ago renders t relative to now at a coarse granularity.
func ago(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return t.UTC().Format("2006-01-02")
}
