package rules

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Fields names the template and parameters of a wiki rule block, e.g.
// {{Typo|find=...|replace1=...|auto=yes|searchHint=...}}.
type Fields struct {
	Template string `yaml:"template"`
	Find     string `yaml:"find"`
	Replace  string `yaml:"replace"`
	Auto     string `yaml:"auto"`
	Search   string `yaml:"search"`
}

// DefaultFields returns the field names used when none are configured.
func DefaultFields() Fields {
	return Fields{
		Template: "Typo",
		Find:     "find",
		Replace:  "replace",
		Auto:     "auto",
		Search:   "searchHint",
	}
}

// Parser turns wiki rule-definition text into rules.
type Parser struct {
	fields  Fields
	timeout time.Duration
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithFields overrides the template and parameter names. Empty fields keep
// their defaults.
func WithFields(f Fields) ParserOption {
	return func(p *Parser) {
		d := &p.fields
		if f.Template != "" {
			d.Template = f.Template
		}
		if f.Find != "" {
			d.Find = f.Find
		}
		if f.Replace != "" {
			d.Replace = f.Replace
		}
		if f.Auto != "" {
			d.Auto = f.Auto
		}
		if f.Search != "" {
			d.Search = f.Search
		}
	}
}

// WithMatchTimeout sets the per-match timeout of compiled patterns.
func WithMatchTimeout(d time.Duration) ParserOption {
	return func(p *Parser) { p.timeout = d }
}

// NewParser returns a Parser with the default field names.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{fields: DefaultFields(), timeout: DefaultMatchTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts every rule block from text in source order. Blocks that
// are malformed or whose pattern does not compile are skipped and reported
// in the returned diagnostics.
func (p *Parser) Parse(text string) ([]Rule, []error) {
	var out []Rule
	var diags []error
	for i, b := range p.blocks(text) {
		index := i + 1
		line := 1 + strings.Count(text[:b.start], "\n")
		if b.err != nil {
			diags = append(diags, &ParseError{Index: index, Line: line, Err: b.err})
			continue
		}
		r, err := p.rule(index, b.params)
		if err != nil {
			slog.Warn("skipping rule definition", "index", index, "line", line, "err", err)
			diags = append(diags, &ParseError{Index: index, Line: line, Err: err})
			continue
		}
		out = append(out, r)
	}
	return out, diags
}

func (p *Parser) rule(index int, params map[string]string) (Rule, error) {
	r := Rule{
		ID:          "typo-" + strconv.Itoa(index),
		Find:        params[p.fields.Find],
		Auto:        truthy(params[p.fields.Auto]),
		SearchQuery: params[p.fields.Search],
	}
	for n := 1; ; n++ {
		repl, ok := params[p.fields.Replace+strconv.Itoa(n)]
		if !ok {
			break
		}
		r.Replacements = append(r.Replacements, repl)
	}
	if err := r.compile(p.timeout); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "true", "1", "on", "ano":
		return true
	}
	return false
}

type block struct {
	start  int
	params map[string]string
	err    error
}

// blocks finds the invocations of the rule template. Parameters are split on
// top-level pipes; pipes inside nested templates, links or nowiki do not
// split.
func (p *Parser) blocks(text string) []block {
	opener := regexp.MustCompile(`\{\{\s*(?:` + nameExpr(p.fields.Template) + `)\s*(\||\}\})`)
	var out []block
	pos := 0
	for {
		loc := opener.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			return out
		}
		start := pos + loc[0]
		if text[pos+loc[2]:pos+loc[3]] == "}}" {
			out = append(out, block{start: start, params: map[string]string{}})
			pos = pos + loc[1]
			continue
		}
		parts, end, ok := splitParams(text, pos+loc[1])
		if !ok {
			return append(out, block{start: start, err: fmt.Errorf("unterminated rule block")})
		}
		out = append(out, block{start: start, params: params(parts)})
		pos = end
	}
}

// nameExpr matches a template name with a case-insensitive first letter and
// spaces or underscores interchangeable.
func nameExpr(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return regexp.QuoteMeta(name)
	}
	first := "[" + regexp.QuoteMeta(string(unicode.ToUpper(r))+string(unicode.ToLower(r))) + "]"
	rest := regexp.QuoteMeta(name[size:])
	rest = strings.NewReplacer(`\ `, `[ _]`, " ", "[ _]", "_", "[ _]").Replace(rest)
	return first + rest
}

// splitParams scans from just after the first pipe to the closing braces of
// the block and returns the raw parameters and the offset after the block.
func splitParams(text string, from int) ([]string, int, bool) {
	var parts []string
	braces, brackets := 1, 0
	last := from
	for i := from; i < len(text); {
		switch {
		case hasPrefixFold(text[i:], "<nowiki>"):
			end := closingNowiki(text[i:])
			if end < 0 {
				return nil, 0, false
			}
			i += end
		case strings.HasPrefix(text[i:], "{{"):
			braces++
			i += 2
		case strings.HasPrefix(text[i:], "}}"):
			braces--
			if braces == 0 {
				parts = append(parts, text[last:i])
				return parts, i + 2, true
			}
			i += 2
		case strings.HasPrefix(text[i:], "[["):
			brackets++
			i += 2
		case strings.HasPrefix(text[i:], "]]") && brackets > 0:
			brackets--
			i += 2
		case text[i] == '|' && braces == 1 && brackets == 0:
			parts = append(parts, text[last:i])
			i++
			last = i
		default:
			i++
		}
	}
	return nil, 0, false
}

func params(parts []string) map[string]string {
	out := make(map[string]string, len(parts))
	positional := 0
	for _, part := range parts {
		key, value, ok := splitKey(part)
		if !ok {
			positional++
			out[strconv.Itoa(positional)] = stripNowiki(strings.TrimSpace(part))
			continue
		}
		out[strings.TrimSpace(key)] = stripNowiki(strings.TrimSpace(value))
	}
	return out
}

// splitKey splits a parameter at its first '=' outside nowiki.
func splitKey(part string) (string, string, bool) {
	for i := 0; i < len(part); i++ {
		if hasPrefixFold(part[i:], "<nowiki>") {
			end := closingNowiki(part[i:])
			if end < 0 {
				return "", "", false
			}
			i += end - 1
			continue
		}
		if part[i] == '=' {
			return part[:i], part[i+1:], true
		}
	}
	return "", "", false
}

var nowikiTag = regexp.MustCompile(`(?i)<nowiki\s*/?>|</nowiki\s*>`)

func stripNowiki(s string) string {
	return nowikiTag.ReplaceAllString(s, "")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

var nowikiClose = regexp.MustCompile(`(?i)</nowiki\s*>`)

// closingNowiki returns the offset just past the first closing nowiki tag.
func closingNowiki(s string) int {
	loc := nowikiClose.FindStringIndex(s)
	if loc == nil {
		return -1
	}
	return loc[1]
}
