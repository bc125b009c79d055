package output

import (
	"fmt"
	"strings"

	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/scheduler"
	"github.com/chris-regnier/wikifix/internal/store"
)

// MarkdownFormatter renders runs as GitHub-Flavored Markdown, one section
// per page. Outcomes that did nothing are folded into a count.
type MarkdownFormatter struct{}

// statusEmoji returns the GitHub emoji shortcode for a handler status.
func statusEmoji(s scheduler.Status) string {
	switch s {
	case scheduler.StatusApplied:
		return ":white_check_mark:"
	case scheduler.StatusFailed:
		return ":x:"
	case scheduler.StatusUnschedulable:
		return ":warning:"
	case scheduler.StatusDecision:
		return ":grey_question:"
	default:
		return ":information_source:"
	}
}

// noteworthy reports whether an outcome deserves its own table row.
func noteworthy(o scheduler.Outcome) bool {
	switch o.Status {
	case scheduler.StatusNoOp, scheduler.StatusPending:
		return o.Error != ""
	}
	return true
}

func (f *MarkdownFormatter) Format(result *FixOutput) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("markdown formatter: result is required")
	}

	var b strings.Builder
	t := result.Totals()

	b.WriteString("## wikifix report\n\n")
	fmt.Fprintf(&b, "**Pages:** %d | **Changed:** %d | **Handlers applied:** %d | **Typos fixed:** %d | **Failed:** %d\n",
		t.Pages, t.Changed, t.Applied, t.Typos, t.Failed)

	if len(result.Runs) == 0 {
		b.WriteString("\nNo pages processed.\n")
	}
	for _, run := range result.Runs {
		writeRunMarkdown(&b, run)
	}

	b.WriteString("\n---\n*Generated by wikifix*\n")
	return []byte(b.String()), nil
}

func writeRunMarkdown(b *strings.Builder, run *store.Run) {
	fmt.Fprintf(b, "\n### %s\n", run.Page)
	if run.ID != "" {
		fmt.Fprintf(b, "Run `%s`\n", run.ID)
	}

	if cw := run.Checkwiki; cw != nil {
		quiet := 0
		var rows []scheduler.Outcome
		for _, o := range cw.Outcomes {
			if noteworthy(o) {
				rows = append(rows, o)
			} else {
				quiet++
			}
		}
		if len(rows) > 0 {
			b.WriteString("\n| | Handler | Status | Changes | Note |\n")
			b.WriteString("|---|---|---|---|---|\n")
			for _, o := range rows {
				note := o.Error
				if note == "" && len(o.Options) > 0 {
					note = "options: " + strings.Join(o.Options, " / ")
				}
				fmt.Fprintf(b, "| %s | %d %s | %s | %d | %s |\n",
					statusEmoji(o.Status), o.ID, escapeCell(o.Name), o.Status, len(o.Changes), escapeCell(note))
			}
		}
		if quiet > 0 {
			fmt.Fprintf(b, "\n%d handler(s) found nothing to fix.\n", quiet)
		}
		writeChanges(b, "Changes", cw.Changes)
		for _, d := range cw.Diagnostics {
			fmt.Fprintf(b, "\n> %s\n", d)
		}
	}

	if ty := run.Typos; ty != nil {
		writeChanges(b, "Typo fixes", ty.Changes)
		var pending []rules.Outcome
		for _, o := range ty.Outcomes {
			if o.Status == rules.StatusNeedsDecision {
				pending = append(pending, o)
			}
		}
		if len(pending) > 0 {
			b.WriteString("\n**Needs a decision:**\n\n")
			for _, o := range pending {
				fmt.Fprintf(b, "- `%s`: %s\n", o.RuleID, strings.Join(o.Options, " / "))
			}
		}
	}
}

func writeChanges(b *strings.Builder, title string, changes []string) {
	if len(changes) == 0 {
		return
	}
	fmt.Fprintf(b, "\n<details>\n<summary>%s (%d)</summary>\n\n", title, len(changes))
	for _, c := range changes {
		fmt.Fprintf(b, "- %s\n", truncate(strings.ReplaceAll(c, "\n", "⏎"), 120))
	}
	b.WriteString("\n</details>\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}

// truncate shortens a string to maxLen runes, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
