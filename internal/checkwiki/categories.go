package checkwiki

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chris-regnier/wikifix/internal/exclusion"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

var categoryKinds = []exclusion.Kind{
	exclusion.Comment, exclusion.Nowiki, exclusion.Pre, exclusion.Source, exclusion.Math,
	exclusion.Template, exclusion.Ref,
}

func categoryHandlers() []*Handler {
	return []*Handler{
		{
			ID:         9,
			Name:       "categories more at one line",
			NeedsFirst: []int{17},
			Exclude:    categoryKinds,
			Custom:     splitCategoryLines,
		},
		{
			ID:         17,
			Name:       "category duplication",
			NeedsFirst: []int{22, 18},
			Exclude:    categoryKinds,
			Custom:     dedupeCategories,
		},
		{
			ID:      18,
			Name:    "category first letter small",
			Exclude: categoryKinds,
			Custom:  capitalizeCategoryNamespace,
		},
		{
			ID:      21,
			Name:    "category is English",
			Exclude: categoryKinds,
			Custom:  localizeCategoryNamespace,
		},
		{
			ID:      22,
			Name:    "category with space",
			Exclude: categoryKinds,
			Custom:  trimCategorySpaces,
		},
	}
}

// catLink is one category link. ns, name and key are byte ranges into the
// text; key is [-1,-1] when the link has no sort key.
type catLink struct {
	start, end int
	ns, name   [2]int
	key        [2]int
}

func (l catLink) hasKey() bool { return l.key[0] >= 0 }

func (l catLink) keyText(text string) string {
	if !l.hasKey() {
		return ""
	}
	return text[l.key[0]:l.key[1]]
}

func (l catLink) render(ns, name, key string, withKey bool) string {
	s := "[[" + ns + ":" + name
	if withKey {
		s += "|" + key
	}
	return s + "]]"
}

func categoryPattern(s *Site) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`(?i)\[\[[ \t]*(` + namesExpr(s.categoryNames()) + `)[ \t]*:[ \t]*([^\[\]|\n]*?)[ \t]*(?:\|([^\[\]\n]*))?\]\]`)
	if err != nil {
		return nil, fmt.Errorf("building category pattern: %w", err)
	}
	return re, nil
}

// categoryLinks returns the category links outside the excluded regions.
func categoryLinks(c *Context, text string) ([]catLink, error) {
	re, err := categoryPattern(c.Site)
	if err != nil {
		return nil, err
	}
	regions := c.Regions(text)
	var out []catLink
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		if exclusion.Excluded(regions, loc[0], loc[1]) {
			continue
		}
		out = append(out, catLink{
			start: loc[0], end: loc[1],
			ns:   [2]int{loc[2], loc[3]},
			name: [2]int{loc[4], loc[5]},
			key:  [2]int{loc[6], loc[7]},
		})
	}
	return out, nil
}

func splitCategoryLines(c *Context, text string) (string, []safesub.Edit, error) {
	links, err := categoryLinks(c, text)
	if err != nil {
		return text, nil, err
	}
	var edits []safesub.Edit
	for i := 0; i+1 < len(links); i++ {
		gap := text[links[i].end:links[i+1].start]
		if strings.TrimSpace(gap) != "" || strings.Contains(gap, "\n") {
			continue
		}
		edits = append(edits, edit(text, links[i].end, links[i+1].start, "\n"))
	}
	return finish(text, edits)
}

// dedupeCategories keeps the first link to each category and removes the
// rest, together with their line when nothing else is on it. A sort key
// found only on a later duplicate moves to the first link. Duplicates with
// different sort keys are left alone.
func dedupeCategories(c *Context, text string) (string, []safesub.Edit, error) {
	links, err := categoryLinks(c, text)
	if err != nil {
		return text, nil, err
	}
	var order []string
	groups := make(map[string][]catLink)
	for _, l := range links {
		name := c.Site.NormalizeTitle(text[l.name[0]:l.name[1]])
		if name == "" {
			continue
		}
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], l)
	}

	var edits []safesub.Edit
	for _, name := range order {
		g := groups[name]
		if len(g) < 2 {
			continue
		}
		key := ""
		conflict := false
		for _, l := range g {
			k := l.keyText(text)
			if k == "" {
				continue
			}
			if key != "" && k != key {
				conflict = true
				break
			}
			key = k
		}
		if conflict {
			continue
		}
		first := g[0]
		if key != "" && first.keyText(text) == "" {
			repl := first.render(text[first.ns[0]:first.ns[1]], text[first.name[0]:first.name[1]], key, true)
			edits = append(edits, edit(text, first.start, first.end, repl))
		}
		for _, l := range g[1:] {
			start, end := lineDeletion(text, l.start, l.end)
			edits = append(edits, edit(text, start, end, ""))
		}
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].Start < edits[j].Start })
	return finish(text, edits)
}

// lineDeletion widens [start, end) to its whole line, newline included, when
// the rest of the line is blank.
func lineDeletion(text string, start, end int) (int, int) {
	ls := lineStart(text, start)
	le := strings.IndexByte(text[end:], '\n')
	if le < 0 {
		le = len(text)
	} else {
		le += end
	}
	if strings.TrimSpace(text[ls:start]) != "" || strings.TrimSpace(text[end:le]) != "" {
		return start, end
	}
	if le < len(text) {
		return ls, le + 1
	}
	return ls, le
}

func capitalizeCategoryNamespace(c *Context, text string) (string, []safesub.Edit, error) {
	links, err := categoryLinks(c, text)
	if err != nil {
		return text, nil, err
	}
	var edits []safesub.Edit
	for _, l := range links {
		ns := text[l.ns[0]:l.ns[1]]
		r, size := utf8.DecodeRuneInString(ns)
		if !unicode.IsLower(r) {
			continue
		}
		edits = append(edits, edit(text, l.ns[0], l.ns[1], string(unicode.ToUpper(r))+ns[size:]))
	}
	return finish(text, edits)
}

func localizeCategoryNamespace(c *Context, text string) (string, []safesub.Edit, error) {
	local := c.Site.Category()
	if strings.EqualFold(local, "Category") {
		return text, nil, nil
	}
	links, err := categoryLinks(c, text)
	if err != nil {
		return text, nil, err
	}
	var edits []safesub.Edit
	for _, l := range links {
		if strings.EqualFold(text[l.ns[0]:l.ns[1]], "Category") {
			edits = append(edits, edit(text, l.ns[0], l.ns[1], local))
		}
	}
	return finish(text, edits)
}

func trimCategorySpaces(c *Context, text string) (string, []safesub.Edit, error) {
	links, err := categoryLinks(c, text)
	if err != nil {
		return text, nil, err
	}
	var edits []safesub.Edit
	for _, l := range links {
		repl := l.render(text[l.ns[0]:l.ns[1]], text[l.name[0]:l.name[1]], l.keyText(text), l.hasKey())
		if repl != text[l.start:l.end] {
			edits = append(edits, edit(text, l.start, l.end, repl))
		}
	}
	return finish(text, edits)
}
