package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chris-regnier/wikifix/internal/exclusion"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

// Status is the outcome of one rule over one text.
type Status string

const (
	StatusApplied       Status = "applied"
	StatusNoOp          Status = "no-op"
	StatusNeedsDecision Status = "needs-decision"
	StatusFailed        Status = "failed"
)

// Outcome reports what a single rule did.
type Outcome struct {
	RuleID  string   `json:"rule_id"`
	Status  Status   `json:"status"`
	Changes []string `json:"changes,omitempty"`
	// Options lists, for a rule that needs a decision, what its first match
	// would become under each replacement.
	Options []string `json:"options,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Report is the result of running a rule set over one text.
type Report struct {
	Text     string    `json:"text"`
	Applied  []string  `json:"applied,omitempty"`
	Changes  []string  `json:"changes,omitempty"`
	Outcomes []Outcome `json:"outcomes"`
}

// Runner applies rules in order, feeding each rule the output of the last.
// A Runner holds no per-text state and may be shared.
type Runner struct {
	rules []Rule
	sub   *safesub.Substituter
	kinds []exclusion.Kind
}

// NewRunner returns a Runner over rules. With no kinds, DefaultKinds are
// excluded.
func NewRunner(rules []Rule, sub *safesub.Substituter, kinds ...exclusion.Kind) *Runner {
	if len(kinds) == 0 {
		kinds = DefaultKinds
	}
	return &Runner{rules: rules, sub: sub, kinds: kinds}
}

// Rules returns the rules in application order.
func (r *Runner) Rules() []Rule { return r.rules }

// Run applies every rule to text. A rule that fails, including a match
// timeout, is recorded and skipped; only cancellation of ctx stops the run.
func (r *Runner) Run(ctx context.Context, text string) (*Report, error) {
	rep := &Report{Text: text}
	var changes []string
	for i := range r.rules {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rule := &r.rules[i]
		out := Outcome{RuleID: rule.ID}

		if rule.NeedsDecision() {
			cands, err := rule.Candidates(r.sub, rep.Text, r.kinds)
			switch {
			case err != nil:
				out.Status = StatusFailed
				out.Error = err.Error()
			default:
				out.Options = options(cands)
				out.Status = StatusNeedsDecision
				if len(out.Options) == 0 {
					out.Status = StatusNoOp
				}
			}
			rep.Outcomes = append(rep.Outcomes, out)
			continue
		}

		newText, edits, err := rule.Apply(r.sub, rep.Text, r.kinds)
		switch {
		case err != nil:
			slog.Warn("typo rule failed", "rule", rule.ID, "err", err)
			out.Status = StatusFailed
			out.Error = err.Error()
		case newText == rep.Text:
			out.Status = StatusNoOp
		default:
			out.Status = StatusApplied
			out.Changes = safesub.Dedupe(safesub.Describe(edits))
			rep.Text = newText
			rep.Applied = append(rep.Applied, rule.ID)
			changes = append(changes, out.Changes...)
		}
		rep.Outcomes = append(rep.Outcomes, out)
	}
	rep.Changes = safesub.Dedupe(changes)
	return rep, nil
}

// options takes the first edit of every candidate. Candidates without an
// edit at the first match position are left out.
func options(cands [][]safesub.Edit) []string {
	first := -1
	for _, edits := range cands {
		if len(edits) > 0 && (first < 0 || edits[0].Start < first) {
			first = edits[0].Start
		}
	}
	var out []string
	for _, edits := range cands {
		if len(edits) > 0 && edits[0].Start == first {
			out = append(out, edits[0].String())
		}
	}
	return out
}

// Rule returns the rule with the given id.
func (r *Runner) Rule(id string) (*Rule, bool) {
	for i := range r.rules {
		if r.rules[i].ID == id {
			return &r.rules[i], true
		}
	}
	return nil, false
}

// Candidates returns, for every replacement of rule id, the edits it would
// make to text.
func (r *Runner) Candidates(text, id string) ([][]safesub.Edit, error) {
	rule, ok := r.Rule(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRule, id)
	}
	return rule.Candidates(r.sub, text, r.kinds)
}

// Choose applies replacement choice of rule id to text. It is how a
// decision taken by a person is carried out.
func (r *Runner) Choose(ctx context.Context, text, id string, choice int) (string, []safesub.Edit, error) {
	if err := ctx.Err(); err != nil {
		return text, nil, err
	}
	rule, ok := r.Rule(id)
	if !ok {
		return text, nil, fmt.Errorf("%w: %s", ErrUnknownRule, id)
	}
	if choice < 0 || choice >= len(rule.Replacements) {
		return text, nil, fmt.Errorf("rule %s: no replacement %d", id, choice)
	}
	if rule.Pattern == nil {
		return text, nil, fmt.Errorf("rule %s: pattern not compiled", id)
	}
	return r.sub.Apply(text, safesub.Regexp2(rule.Pattern), safesub.Template(rule.Replacements[choice]), r.kinds)
}
