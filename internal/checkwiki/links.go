package checkwiki

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/chris-regnier/wikifix/internal/exclusion"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

// urlKinds leaves references in scope: most broken external links live in
// them.
var urlKinds = []exclusion.Kind{
	exclusion.Comment, exclusion.Nowiki, exclusion.Pre, exclusion.Source, exclusion.Math,
	exclusion.Template,
}

var linkKinds = []exclusion.Kind{
	exclusion.Comment, exclusion.Nowiki, exclusion.Pre, exclusion.Source, exclusion.Math,
	exclusion.Gallery,
}

func linkHandlers() []*Handler {
	return []*Handler{
		{
			ID:      4,
			Name:    "HTML text style element <a>",
			Pattern: htmlAnchor,
			Replace: safesub.ReplaceFunc(replaceAnchor),
		},
		{
			ID:            10,
			Name:          "square brackets not correct end",
			Exclude:       linkKinds,
			NeedsDecision: true,
			Options:       unbalancedBracketOptions,
		},
		{
			ID:      32,
			Name:    "double pipe in one link",
			Exclude: linkKinds,
			Custom:  each(doublePipeLink, fixDoublePipe),
		},
		{
			ID:   48,
			Name: "title linked in text",
			Exclude: []exclusion.Kind{
				exclusion.Comment, exclusion.Nowiki, exclusion.Pre, exclusion.Source, exclusion.Math,
				exclusion.Gallery, exclusion.Template, exclusion.Ref,
			},
			Custom: each(internalLink, unlinkSelf),
		},
		{
			ID:      64,
			Name:    "link equal to link text",
			Exclude: linkKinds,
			Custom:  each(internalLink, collapseLink),
		},
		{
			ID:      65,
			Name:    "image description with break",
			Exclude: linkKinds,
			Custom:  dropCaptionBreaks,
		},
		{
			ID:         80,
			Name:       "external link with line break",
			NeedsFirst: []int{86},
			Exclude:    urlKinds,
			Custom:     repairExternalLinks,
		},
		{
			ID:      86,
			Name:    "link with two brackets to external source",
			Exclude: urlKinds,
			Pattern: doubleBracketURL,
			Replace: safesub.ReplaceFunc(singleBracketURL),
		},
		{
			ID:      90,
			Name:    "internal link written as external link",
			Exclude: urlKinds,
			Custom:  internalizeLinks,
		},
		{
			ID:      93,
			Name:    "external link with double http://",
			Exclude: urlKinds,
			Pattern: doubleScheme,
			Replace: safesub.Template("${1}"),
		},
		{
			ID:                102,
			Name:              "PMC/PMID/RFC magic links",
			HandledExternally: true,
		},
	}
}

var htmlAnchor = regexp.MustCompile(`(?is)<a\s+href\s*=\s*["']?((?:https?:)?//[^"'\s>]+)["']?[^>]*>(.*?)</a\s*>`)

func replaceAnchor(m safesub.Match) string {
	label := strings.TrimSpace(m.Group(2))
	if strings.ContainsAny(label, "[]\n") {
		return m.String()
	}
	if label == "" {
		return "[" + m.Group(1) + "]"
	}
	return "[" + m.Group(1) + " " + label + "]"
}

var internalLink = regexp.MustCompile(`\[\[([^\[\]|\n]+)(?:\|([^\[\]\n]*))?\]\]`)

// isNamespaced reports whether target starts with one of names and a colon.
func isNamespaced(target string, names []string) bool {
	t := strings.TrimLeft(target, " :")
	i := strings.IndexByte(t, ':')
	if i < 0 {
		return false
	}
	ns := strings.TrimSpace(strings.ReplaceAll(t[:i], "_", " "))
	for _, n := range names {
		if strings.EqualFold(ns, n) {
			return true
		}
	}
	return false
}

var doublePipeLink = regexp.MustCompile(`\[\[([^\[\]|\n]+)\|\|([^\[\]\n]*)\]\]`)

func fixDoublePipe(c *Context, m safesub.Match) string {
	if isNamespaced(m.Group(1), c.Site.fileNames()) {
		return m.String()
	}
	return "[[" + m.Group(1) + "|" + m.Group(2) + "]]"
}

func unlinkSelf(c *Context, m safesub.Match) string {
	target := m.Group(1)
	if c.Page.Title == "" || strings.Contains(target, "#") {
		return m.String()
	}
	if c.Site.NormalizeTitle(target) != c.Site.NormalizeTitle(c.Page.Title) {
		return m.String()
	}
	if m.Index[4] >= 0 {
		label := m.Group(2)
		if strings.TrimSpace(label) == "" {
			return m.String()
		}
		return label
	}
	return strings.TrimSpace(target)
}

func collapseLink(c *Context, m safesub.Match) string {
	if m.Index[4] < 0 {
		return m.String()
	}
	target, label := m.Group(1), m.Group(2)
	if strings.TrimSpace(label) == "" || strings.ContainsAny(label, "'{}<>") {
		return m.String()
	}
	if c.Site.NormalizeTitle(target) != c.Site.NormalizeTitle(label) {
		return m.String()
	}
	return "[[" + label + "]]"
}

func dropCaptionBreaks(c *Context, text string) (string, []safesub.Edit, error) {
	re, err := regexp.Compile(`(?i)(\[\[[ \t]*(?:` + namesExpr(c.Site.fileNames()) + `)[ \t]*:[^\[\]\n]*?)(?:[ \t]*<br\s*/?>)+[ \t]*\]\]`)
	if err != nil {
		return text, nil, fmt.Errorf("building caption pattern: %w", err)
	}
	return c.Substitute(text, re, safesub.Template("${1}]]"))
}

var doubleBracketURL = regexp.MustCompile(`(?i)\[\[((?:https?:)?//[^\[\]\n]*)\]\]`)

func singleBracketURL(m safesub.Match) string {
	inner := m.Group(1)
	if i := strings.IndexByte(inner, '|'); i >= 0 {
		inner = inner[:i] + " " + inner[i+1:]
	}
	return "[" + inner + "]"
}

var doubleScheme = regexp.MustCompile(`(?i)\bhttps?:/{1,2}[ \t]*(https?://)`)

// URLs end at whitespace, brackets, a tag or a quote mark.
var bareURL = regexp.MustCompile(`(?i)(?:https?:)?//[^\s\[\]<>"{}|]+`)

// repairExternalLinks closes external links whose closing bracket is
// missing, and opens bare URLs followed by a stray closing bracket.
//
// "[URL" directly followed by a line break, "[", "<ref", "</ref" or the end
// of the text gets "]" after the URL. "[URL label" is closed only when the
// label runs into a reference boundary; otherwise the end of the label is
// ambiguous and the link is left alone. "URL]" with no unclosed "[" earlier
// on its line gets "[" in front.
func repairExternalLinks(c *Context, text string) (string, []safesub.Edit, error) {
	regions := c.Regions(text)
	var edits []safesub.Edit
	for _, loc := range bareURL.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if exclusion.Excluded(regions, start, end) {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(text[start:]), "http") && (start == 0 || text[start-1] != '[') {
			// protocol relative URLs only count inside brackets
			continue
		}
		bracketed := start > 0 && text[start-1] == '['
		if bracketed && start > 1 && text[start-2] == '[' {
			continue
		}
		rest := text[end:]

		if !bracketed {
			if strings.HasPrefix(rest, "]") && !strings.HasPrefix(rest, "]]") && !unclosedBracket(text[lineStart(text, start):start]) {
				edits = append(edits, edit(text, start, start, "["))
			}
			continue
		}

		switch {
		case rest == "", strings.HasPrefix(rest, "\n"), strings.HasPrefix(rest, "["), refBoundary(rest):
			edits = append(edits, edit(text, end, end, "]"))
		case strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, "\t"):
			if at, ok := labelEnd(rest); ok {
				edits = append(edits, edit(text, end+at, end+at, "]"))
			}
		}
	}
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].Start < edits[j].Start })
	return finish(text, edits)
}

func refBoundary(s string) bool {
	l := strings.ToLower(s[:min(len(s), 5)])
	return strings.HasPrefix(l, "<ref") || strings.HasPrefix(l, "</ref")
}

// labelEnd scans the label after a URL. It reports where to close the link
// when the label ends at a reference boundary, and false when the link is
// already closed or its end cannot be told.
func labelEnd(rest string) (int, bool) {
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case ']', '\n', '[':
			return 0, false
		case '<':
			if refBoundary(rest[i:]) {
				j := i
				for j > 0 && (rest[j-1] == ' ' || rest[j-1] == '\t') {
					j--
				}
				if strings.TrimSpace(rest[:j]) == "" {
					return 0, false
				}
				return j, true
			}
		}
	}
	return 0, false
}

func lineStart(text string, i int) int {
	return strings.LastIndexByte(text[:i], '\n') + 1
}

// unclosedBracket reports whether s leaves a single "[" open.
func unclosedBracket(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		}
	}
	return depth > 0
}

func internalizeLinks(c *Context, text string) (string, []safesub.Edit, error) {
	if c.Site.Domain == "" {
		return text, nil, nil
	}
	re, err := regexp.Compile(`(?i)\[(?:https?:)?//` + regexp.QuoteMeta(c.Site.Domain) + `/wiki/([^\s\[\]<>?]+)(?:[ \t]+([^\[\]\n]*?))?[ \t]*\]`)
	if err != nil {
		return text, nil, fmt.Errorf("building site link pattern: %w", err)
	}
	return c.Substitute(text, re, safesub.ReplaceFunc(func(m safesub.Match) string {
		title, err := url.PathUnescape(m.Group(1))
		if err != nil || strings.ContainsAny(title, "[]{}|<>") {
			return m.String()
		}
		title = strings.ReplaceAll(title, "_", " ")
		label := strings.TrimSpace(m.Group(2))
		if label == "" || label == title {
			return "[[" + title + "]]"
		}
		return "[[" + title + "|" + label + "]]"
	}))
}

// unbalancedBracketOptions lists, per line, the internal links that are
// opened but not closed.
func unbalancedBracketOptions(c *Context, text string) []string {
	regions := c.Regions(text)
	var out []string
	line := 1
	for i := 0; i < len(text); {
		end := strings.IndexByte(text[i:], '\n')
		if end < 0 {
			end = len(text)
		} else {
			end += i
		}
		if at, ok := unclosedLink(text, i, end, regions); ok {
			cut := min(end, at+30)
			for cut > at && cut < len(text) && !utf8.RuneStart(text[cut]) {
				cut--
			}
			snippet := text[at:cut]
			out = append(out,
				fmt.Sprintf("line %d: close %q with ]]", line, snippet),
				fmt.Sprintf("line %d: remove the [[ of %q", line, snippet))
		}
		line++
		i = end + 1
	}
	return out
}

func unclosedLink(text string, start, end int, regions []exclusion.Region) (int, bool) {
	var open []int
	for i := start; i+1 < end; i++ {
		switch text[i : i+2] {
		case "[[":
			if !exclusion.Excluded(regions, i, i+2) {
				open = append(open, i)
			}
			i++
		case "]]":
			if len(open) > 0 && !exclusion.Excluded(regions, i, i+2) {
				open = open[:len(open)-1]
			}
			i++
		}
	}
	if len(open) == 0 {
		return 0, false
	}
	return open[0], true
}
