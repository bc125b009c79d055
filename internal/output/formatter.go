// Package output renders fix reports (JSON, Markdown, pretty terminal) and
// sets up the CLI logger.
package output

import (
	"fmt"

	"github.com/chris-regnier/wikifix/internal/scheduler"
	"github.com/chris-regnier/wikifix/internal/store"
)

// Formatter renders a FixOutput into a byte slice in a specific format.
type Formatter interface {
	Format(result *FixOutput) ([]byte, error)
}

// FixOutput holds the runs of one CLI invocation, one per page.
type FixOutput struct {
	Runs []*store.Run `json:"runs"`
}

// Totals sums handler outcomes across all runs.
type Totals struct {
	Pages   int
	Changed int
	Applied int
	Failed  int
	Typos   int
}

func (o *FixOutput) Totals() Totals {
	var t Totals
	for _, r := range o.Runs {
		t.Pages++
		changed := false
		if r.Checkwiki != nil {
			t.Applied += len(r.Checkwiki.Applied)
			c := r.Checkwiki.Counts()
			t.Failed += c[scheduler.StatusFailed] + c[scheduler.StatusUnschedulable]
			changed = changed || len(r.Checkwiki.Applied) > 0
		}
		if r.Typos != nil {
			t.Typos += len(r.Typos.Applied)
			changed = changed || len(r.Typos.Applied) > 0
		}
		if changed {
			t.Changed++
		}
	}
	return t
}

// ResolveFormat determines the output format to use. If flagValue is non-empty,
// it is returned directly. Otherwise, "pretty" is returned for TTY output and
// "json" for non-TTY (piped) output.
func ResolveFormat(flagValue string, stdoutIsTTY bool) string {
	if flagValue != "" {
		return flagValue
	}
	if stdoutIsTTY {
		return "pretty"
	}
	return "json"
}

// NewFormatter returns a Formatter for the given format name.
func NewFormatter(format string) (Formatter, error) {
	switch format {
	case "json":
		return &JSONFormatter{}, nil
	case "markdown":
		return &MarkdownFormatter{}, nil
	case "pretty":
		return &PrettyFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %q (supported: json, markdown, pretty)", format)
	}
}
