// Package rules holds typo rules: find/replace units with one or more
// candidate replacements, parsed from wiki rule pages or YAML rule files.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/chris-regnier/wikifix/internal/exclusion"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

var (
	ErrMissingFind   = errors.New("missing required field: find")
	ErrNoReplacement = errors.New("at least one replacement is required")
	ErrUnknownRule   = errors.New("unknown rule")
)

// DefaultMatchTimeout bounds a single regexp2 match attempt.
const DefaultMatchTimeout = 2 * time.Second

// DefaultKinds are the regions typo rules never edit.
var DefaultKinds = []exclusion.Kind{
	exclusion.Comment, exclusion.Nowiki, exclusion.Pre, exclusion.Source, exclusion.Math,
	exclusion.Gallery, exclusion.Timeline, exclusion.Template, exclusion.Link, exclusion.File,
	exclusion.Category, exclusion.Interwiki, exclusion.URL, exclusion.StartSpace, exclusion.Quote,
}

// Rule is a single find/replace unit. Replacements are templates in the
// safesub syntax (${1}); the first one is used when the rule applies itself.
type Rule struct {
	ID           string   `yaml:"id" json:"id"`
	Label        string   `yaml:"label,omitempty" json:"label,omitempty"`
	Find         string   `yaml:"find" json:"find"`
	Replacements []string `yaml:"replace" json:"replace"`
	Auto         bool     `yaml:"auto" json:"auto"`
	SearchQuery  string   `yaml:"search,omitempty" json:"search,omitempty"`

	Pattern *regexp2.Regexp `yaml:"-" json:"-"`
}

// NeedsDecision reports whether the rule cannot be applied unattended.
func (r *Rule) NeedsDecision() bool {
	return !r.Auto || len(r.Replacements) > 1
}

// Searchable reports whether the rule carries a query for sourcing pages.
func (r *Rule) Searchable() bool {
	return r.SearchQuery != ""
}

// compile validates the rule, translates $N references and compiles the
// pattern with the given per-match timeout.
func (r *Rule) compile(timeout time.Duration) error {
	if strings.TrimSpace(r.Find) == "" {
		return ErrMissingFind
	}
	var repls []string
	for _, repl := range r.Replacements {
		repls = append(repls, translateBackrefs(repl))
	}
	if len(repls) == 0 {
		return ErrNoReplacement
	}
	re, err := regexp2.Compile(r.Find, regexp2.None)
	if err != nil {
		return fmt.Errorf("invalid find pattern: %w", err)
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	r.Replacements = repls
	r.Pattern = re
	return nil
}

var backref = regexp.MustCompile(`^\$(?:(\d+)|\{\d+\}|\$)`)

// translateBackrefs rewrites $1 style references to ${1} so that a digit or
// letter following the reference is not read as part of it. Any other '$'
// is literal and comes out as "$$". The result is unchanged by a second pass.
func translateBackrefs(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '$' {
			b.WriteByte(s[i])
			continue
		}
		m := backref.FindStringSubmatch(s[i:])
		switch {
		case m == nil:
			b.WriteString("$$")
		case m[1] != "":
			b.WriteString("${" + m[1] + "}")
			i += len(m[0]) - 1
		default:
			b.WriteString(m[0])
			i += len(m[0]) - 1
		}
	}
	return b.String()
}

// Apply substitutes the first replacement outside the excluded kinds.
func (r *Rule) Apply(s *safesub.Substituter, text string, kinds []exclusion.Kind) (string, []safesub.Edit, error) {
	if r.Pattern == nil {
		return text, nil, fmt.Errorf("rule %s: pattern not compiled", r.ID)
	}
	return s.Apply(text, safesub.Regexp2(r.Pattern), safesub.Template(r.Replacements[0]), kinds)
}

// Candidates returns, for every replacement, the edits it would make. It is
// used to present the options of a rule that needs a decision.
func (r *Rule) Candidates(s *safesub.Substituter, text string, kinds []exclusion.Kind) ([][]safesub.Edit, error) {
	if r.Pattern == nil {
		return nil, fmt.Errorf("rule %s: pattern not compiled", r.ID)
	}
	out := make([][]safesub.Edit, 0, len(r.Replacements))
	for _, repl := range r.Replacements {
		_, edits, err := s.Apply(text, safesub.Regexp2(r.Pattern), safesub.Template(repl), kinds)
		if err != nil {
			return nil, err
		}
		out = append(out, edits)
	}
	return out, nil
}

// ParseError locates a rule definition that was skipped.
type ParseError struct {
	Index int
	Line  int
	ID    string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("rule %d (line %d): %v", e.Index, e.Line, e.Err)
	}
	return fmt.Sprintf("rule %q (index %d): %v", e.ID, e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// BySearchable returns the rules that carry a search query.
func BySearchable(rules []Rule) []Rule {
	var filtered []Rule
	for _, r := range rules {
		if r.Searchable() {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
