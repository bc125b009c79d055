package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/scheduler"
	"github.com/chris-regnier/wikifix/internal/store"
)

var (
	pageStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	appliedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6666"))

	skippedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	changeStyle = lipgloss.NewStyle().
			PaddingLeft(4).
			Foreground(lipgloss.Color("#626262"))

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// PrettyFormatter renders runs for an interactive terminal.
type PrettyFormatter struct{}

func statusStyle(s scheduler.Status) lipgloss.Style {
	switch s {
	case scheduler.StatusApplied:
		return appliedStyle
	case scheduler.StatusFailed, scheduler.StatusUnschedulable:
		return failedStyle
	}
	return skippedStyle
}

func (f *PrettyFormatter) Format(result *FixOutput) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("pretty formatter: result is required")
	}

	var b strings.Builder
	for _, run := range result.Runs {
		writeRunPretty(&b, run)
	}

	t := result.Totals()
	summary := fmt.Sprintf("%d page(s), %d changed · %d handler fix(es), %d typo fix(es), %d failed",
		t.Pages, t.Changed, t.Applied, t.Typos, t.Failed)
	b.WriteString(summaryStyle.Render(summary))
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func writeRunPretty(b *strings.Builder, run *store.Run) {
	b.WriteString(pageStyle.Render(run.Page))
	b.WriteString("\n")

	if cw := run.Checkwiki; cw != nil {
		for _, o := range cw.Outcomes {
			if !noteworthy(o) {
				continue
			}
			line := fmt.Sprintf("  %3d %-16s %s", o.ID, o.Status, o.Name)
			b.WriteString(statusStyle(o.Status).Render(line))
			b.WriteString("\n")
			if o.Error != "" {
				b.WriteString(changeStyle.Render(o.Error))
				b.WriteString("\n")
			}
			for _, opt := range o.Options {
				b.WriteString(changeStyle.Render("? " + truncate(opt, 100)))
				b.WriteString("\n")
			}
			for _, c := range o.Changes {
				b.WriteString(changeStyle.Render(truncate(c, 100)))
				b.WriteString("\n")
			}
		}
		for _, d := range cw.Diagnostics {
			b.WriteString(failedStyle.Render("  ! " + d))
			b.WriteString("\n")
		}
	}

	if ty := run.Typos; ty != nil {
		for _, o := range ty.Outcomes {
			switch o.Status {
			case rules.StatusApplied:
				b.WriteString(appliedStyle.Render(fmt.Sprintf("  typo %s", o.RuleID)))
				b.WriteString("\n")
				for _, c := range o.Changes {
					b.WriteString(changeStyle.Render(truncate(c, 100)))
					b.WriteString("\n")
				}
			case rules.StatusNeedsDecision:
				b.WriteString(skippedStyle.Render(fmt.Sprintf("  typo %s needs a decision: %s", o.RuleID, strings.Join(o.Options, " / "))))
				b.WriteString("\n")
			case rules.StatusFailed:
				b.WriteString(failedStyle.Render(fmt.Sprintf("  typo %s failed: %s", o.RuleID, o.Error)))
				b.WriteString("\n")
			}
		}
	}
	b.WriteString("\n")
}
