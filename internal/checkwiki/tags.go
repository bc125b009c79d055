package checkwiki

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chris-regnier/wikifix/internal/exclusion"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

// templateKinds keeps template parameters in scope.
var templateKinds = []exclusion.Kind{
	exclusion.Comment, exclusion.Nowiki, exclusion.Pre, exclusion.Source, exclusion.Math,
}

func tagHandlers() []*Handler {
	return []*Handler{
		{
			ID:      2,
			Name:    "tag with incorrect syntax",
			Pattern: badBreak,
			Replace: safesub.ReplaceFunc(fixBreak),
		},
		{
			ID:            5,
			Name:          "comment not correct end",
			Exclude:       []exclusion.Kind{exclusion.Nowiki, exclusion.Pre, exclusion.Source, exclusion.Math},
			NeedsDecision: true,
			Options:       unclosedCommentOptions,
		},
		{
			ID:      26,
			Name:    "HTML text style element <b>",
			Pattern: htmlBold,
			Replace: quoteMarkup("'''"),
		},
		{
			ID:      38,
			Name:    "HTML text style element <i>",
			Pattern: htmlItalic,
			Replace: quoteMarkup("''"),
		},
		{
			ID:      42,
			Name:    "HTML text style element <strike>",
			Pattern: strikeTag,
			Replace: safesub.Template("<${1}s${2}>"),
		},
		{
			ID:         54,
			Name:       "break in list",
			NeedsFirst: []int{2},
			Pattern:    listBreak,
			Replace:    safesub.Template("${1}"),
		},
		{
			ID:         59,
			Name:       "template value ends with break",
			NeedsFirst: []int{2},
			Exclude:    templateKinds,
			Pattern:    paramBreak,
			Replace:    safesub.Template("${1}${2}"),
		},
		{
			ID:     85,
			Name:   "tag without content",
			Custom: dropEmptyTags,
		},
		{
			ID:      101,
			Name:    "ordinal numbers in <sup>",
			Pattern: supOrdinal,
			Replace: safesub.Template("${1}${2}"),
		},
	}
}

var badBreak = regexp.MustCompile(`(?i)<[\s/\\.]*br[\s/\\.]*>`)

func fixBreak(m safesub.Match) string {
	switch strings.ToLower(m.String()) {
	case "<br>", "<br />", "<br/>":
		return m.String()
	}
	return "<br />"
}

var (
	htmlBold   = regexp.MustCompile(`(?i)<b>([^<>\n]+?)</b>`)
	htmlItalic = regexp.MustCompile(`(?i)<i>([^<>\n]+?)</i>`)
)

// quoteMarkup rewrites an HTML style element as wiki quote markup, unless
// the content touches a quote mark and the result would be ambiguous.
func quoteMarkup(marks string) safesub.Replacer {
	return safesub.ReplaceFunc(func(m safesub.Match) string {
		inner := m.Group(1)
		if strings.HasPrefix(inner, "'") || strings.HasSuffix(inner, "'") || strings.Contains(inner, "''") {
			return m.String()
		}
		return marks + inner + marks
	})
}

var (
	strikeTag  = regexp.MustCompile(`(?i)<(/?)strike\b([^<>]*)>`)
	listBreak  = regexp.MustCompile(`(?im)^([*#:;][^\n]*?)(?:[ \t]*<br\s*/?>)+[ \t]*$`)
	paramBreak = regexp.MustCompile(`(?i)(?:[ \t]*<br\s*/?>)+([ \t]*)(\||\}\})`)
	supOrdinal = regexp.MustCompile(`(?i)(\d)<sup>(st|nd|rd|th)</sup>`)
	emptyTag   = regexp.MustCompile(`(?i)<([a-z]+)\s*>\s*</([a-z]+)\s*>`)
)

var droppable = map[string]bool{
	"b": true, "i": true, "u": true, "s": true, "small": true, "big": true, "center": true,
	"sup": true, "sub": true, "code": true, "tt": true, "em": true, "strong": true,
	"span": true, "div": true, "blockquote": true, "gallery": true, "includeonly": true,
	"noinclude": true, "onlyinclude": true,
}

// dropEmptyTags removes attribute-less tags with nothing inside. Removing an
// inner pair can empty its parent, so the pass repeats until stable; edits of
// a later pass are in that pass's offsets.
func dropEmptyTags(c *Context, text string) (string, []safesub.Edit, error) {
	replace := safesub.ReplaceFunc(func(m safesub.Match) string {
		name := strings.ToLower(m.Group(1))
		if name != strings.ToLower(m.Group(2)) || !droppable[name] {
			return m.String()
		}
		return ""
	})
	var all []safesub.Edit
	for pass := 0; pass < 8; pass++ {
		out, edits, err := c.Substitute(text, emptyTag, replace)
		if err != nil {
			return text, nil, err
		}
		if len(edits) == 0 {
			break
		}
		text = out
		all = append(all, edits...)
	}
	return text, all, nil
}

func unclosedCommentOptions(c *Context, text string) []string {
	regions := c.Regions(text)
	for i := 0; ; {
		j := strings.Index(text[i:], "<!--")
		if j < 0 {
			return nil
		}
		start := i + j
		if exclusion.Excluded(regions, start, start+4) {
			i = start + 4
			continue
		}
		end := strings.Index(text[start+4:], "-->")
		if end >= 0 {
			i = start + 4 + end + 3
			continue
		}
		line := 1 + strings.Count(text[:start], "\n")
		return []string{
			fmt.Sprintf("line %d: close the comment at the end of the line", line),
			fmt.Sprintf("line %d: remove the unclosed <!--", line),
		}
	}
}
