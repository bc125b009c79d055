package review

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

// contextBytes is how much text is shown on each side of a match.
const contextBytes = 60

// Collect turns the rules of rep that need a decision into review items for
// page. Rules whose matches are gone from the final text are dropped.
func Collect(page string, runner *rules.Runner, rep *rules.Report) []Item {
	var items []Item
	for _, o := range rep.Outcomes {
		if o.Status != rules.StatusNeedsDecision {
			continue
		}
		rule, ok := runner.Rule(o.RuleID)
		if !ok {
			continue
		}
		cands, err := runner.Candidates(rep.Text, o.RuleID)
		if err != nil {
			continue
		}

		it := Item{
			Page:         page,
			RuleID:       rule.ID,
			Label:        rule.Label,
			Replacements: rule.Replacements,
			Previews:     make([]string, len(cands)),
		}
		first := -1
		for i, edits := range cands {
			if len(edits) == 0 {
				continue
			}
			it.Previews[i] = edits[0].String()
			if first < 0 || edits[0].Start < first {
				first = edits[0].Start
			}
		}
		if first < 0 {
			continue
		}
		it.Context = snippet(rep.Text, first)
		items = append(items, it)
	}
	return items
}

// snippet returns the line around pos, cut to contextBytes on each side.
func snippet(text string, pos int) string {
	start := strings.LastIndexByte(text[:pos], '\n') + 1
	end := len(text)
	if i := strings.IndexByte(text[pos:], '\n'); i >= 0 {
		end = pos + i
	}

	prefix, suffix := "", ""
	if pos-start > contextBytes {
		start = pos - contextBytes
		for start < pos && !utf8.RuneStart(text[start]) {
			start++
		}
		prefix = "…"
	}
	if end-pos > contextBytes {
		end = pos + contextBytes
		for end > pos && !utf8.RuneStart(text[end]) {
			end--
		}
		suffix = "…"
	}
	return prefix + text[start:end] + suffix
}

// Apply carries out the accepted decisions for page on text, in order.
func Apply(ctx context.Context, runner *rules.Runner, page, text string, decisions []Decision) (string, []string, error) {
	var changes []string
	for _, d := range decisions {
		if d.Page != page || d.Status != StatusAccepted {
			continue
		}
		next, edits, err := runner.Choose(ctx, text, d.RuleID, d.Choice)
		if err != nil {
			return text, changes, fmt.Errorf("applying decision on %s: %w", d.Key(), err)
		}
		text = next
		changes = append(changes, safesub.Describe(edits)...)
	}
	return text, safesub.Dedupe(changes), nil
}
