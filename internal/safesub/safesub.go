// Package safesub applies pattern substitutions to wikitext while leaving
// every match that intersects an excluded region untouched.
package safesub

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/chris-regnier/wikifix/internal/exclusion"
)

// Pattern finds non-overlapping matches, leftmost first. Each match is a
// submatch index slice in byte offsets, as returned by
// regexp.FindAllStringSubmatchIndex.
type Pattern interface {
	FindAll(text string) ([][]int, error)
	SubexpNames() []string
}

type stdPattern struct{ re *regexp.Regexp }

// Regexp adapts a standard library expression.
func Regexp(re *regexp.Regexp) Pattern { return stdPattern{re} }

func (p stdPattern) FindAll(text string) ([][]int, error) {
	return p.re.FindAllStringSubmatchIndex(text, -1), nil
}

func (p stdPattern) SubexpNames() []string { return p.re.SubexpNames() }

type pattern2 struct{ re *regexp2.Regexp }

// Regexp2 adapts a regexp2 expression. Its rune offsets are converted to
// byte offsets; a match timeout surfaces as an error.
func Regexp2(re *regexp2.Regexp) Pattern { return pattern2{re} }

func (p pattern2) SubexpNames() []string {
	names := make([]string, len(p.re.GetGroupNumbers()))
	for _, n := range p.re.GetGroupNumbers() {
		if n < len(names) {
			name := p.re.GroupNameFromNumber(n)
			if name != fmt.Sprint(n) {
				names[n] = name
			}
		}
	}
	return names
}

func (p pattern2) FindAll(text string) ([][]int, error) {
	offsets := runeOffsets(text)
	var out [][]int
	m, err := p.re.FindStringMatch(text)
	for m != nil && err == nil {
		groups := m.Groups()
		loc := make([]int, 2*len(groups))
		for i, g := range groups {
			if len(g.Captures) == 0 {
				loc[2*i], loc[2*i+1] = -1, -1
				continue
			}
			loc[2*i] = offsets[g.Index]
			loc[2*i+1] = offsets[g.Index+g.Length]
		}
		out = append(out, loc)
		m, err = p.re.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("matching %q: %w", p.re.String(), err)
	}
	return out, nil
}

// runeOffsets maps rune index to byte offset, with one extra entry for the
// end of the text.
func runeOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

// Match is one pattern match seen by a Replacer, with access to the whole
// subject text for context-sensitive decisions.
type Match struct {
	Text  string
	Index []int
	Names []string
}

func (m Match) Start() int     { return m.Index[0] }
func (m Match) End() int       { return m.Index[1] }
func (m Match) String() string { return m.Text[m.Index[0]:m.Index[1]] }

// Group returns the text of submatch i, or "" if it did not participate.
func (m Match) Group(i int) string {
	if 2*i+1 >= len(m.Index) || m.Index[2*i] < 0 {
		return ""
	}
	return m.Text[m.Index[2*i]:m.Index[2*i+1]]
}

// Named returns the text of the named submatch.
func (m Match) Named(name string) string {
	for i, n := range m.Names {
		if n == name && n != "" {
			return m.Group(i)
		}
	}
	return ""
}

// Before returns the text preceding the match.
func (m Match) Before() string { return m.Text[:m.Index[0]] }

// After returns the text following the match.
func (m Match) After() string { return m.Text[m.Index[1]:] }

// Replacer produces the replacement for a match.
type Replacer interface {
	Replace(m Match) string
}

// ReplaceFunc adapts a function to Replacer.
type ReplaceFunc func(m Match) string

func (f ReplaceFunc) Replace(m Match) string { return f(m) }

// Template is a replacement string referencing groups as ${1} or ${name}.
// A literal dollar is written $$. Bare $1 is accepted when followed by a
// non-word character.
type Template string

func (t Template) Replace(m Match) string {
	s := string(t)
	if !strings.Contains(s, "$") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '$' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		if s[i+1] == '$' {
			b.WriteByte('$')
			i++
			continue
		}
		name, rest, ok := templateRef(s[i+1:])
		if !ok {
			b.WriteByte(s[i])
			continue
		}
		b.WriteString(groupByName(m, name))
		i = len(s) - len(rest) - 1
	}
	return b.String()
}

func templateRef(s string) (name, rest string, ok bool) {
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return "", s, false
		}
		return s[1:end], s[end+1:], true
	}
	i := 0
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	if i == 0 {
		return "", s, false
	}
	return s[:i], s[i:], true
}

func isWordByte(c byte) bool {
	return c == '_' || '0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func groupByName(m Match, name string) string {
	n := 0
	for _, c := range name {
		if c < '0' || c > '9' {
			return m.Named(name)
		}
		n = n*10 + int(c-'0')
	}
	return m.Group(n)
}

// Edit records one substitution in original text offsets.
type Edit struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// String renders the edit as an "old → new" fragment.
func (e Edit) String() string { return e.Old + " → " + e.New }

// Substituter runs substitutions against one exclusion matcher.
type Substituter struct {
	matcher *exclusion.Matcher
}

// New returns a Substituter backed by matcher.
func New(matcher *exclusion.Matcher) *Substituter {
	return &Substituter{matcher: matcher}
}

// Matcher returns the exclusion matcher in use.
func (s *Substituter) Matcher() *exclusion.Matcher { return s.matcher }

// Apply replaces every match of p outside the regions of the given kinds.
// Regions are computed once from text; matches are found in the original
// text and replaced left to right.
func (s *Substituter) Apply(text string, p Pattern, r Replacer, kinds []exclusion.Kind) (string, []Edit, error) {
	locs, err := p.FindAll(text)
	if err != nil {
		return text, nil, err
	}
	if len(locs) == 0 {
		return text, nil, nil
	}
	regions := s.matcher.RegionsFor(text, kinds)
	names := p.SubexpNames()

	var b strings.Builder
	var edits []Edit
	last := 0
	for _, loc := range locs {
		if exclusion.Excluded(regions, loc[0], loc[1]) {
			continue
		}
		m := Match{Text: text, Index: loc, Names: names}
		repl := r.Replace(m)
		old := text[loc[0]:loc[1]]
		if repl == old {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(repl)
		last = loc[1]
		edits = append(edits, Edit{Start: loc[0], End: loc[1], Old: old, New: repl})
	}
	if len(edits) == 0 {
		return text, nil, nil
	}
	b.WriteString(text[last:])
	return b.String(), edits, nil
}
