package checkwiki

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/chris-regnier/wikifix/internal/exclusion"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

var headerKinds = []exclusion.Kind{
	exclusion.Comment, exclusion.Nowiki, exclusion.Pre, exclusion.Source, exclusion.Math,
}

func headerHandlers() []*Handler {
	return []*Handler{
		{
			ID:         7,
			Name:       "headlines start with three '='",
			NeedsFirst: []int{8},
			Exclude:    headerKinds,
			Custom:     renormalize(func(min int) bool { return min >= 3 }),
		},
		{
			ID:      8,
			Name:    "headline should end with '='",
			Exclude: headerKinds,
			Custom:  fixAsymmetricHeaders,
		},
		{
			ID:         19,
			Name:       "headline starts with one '='",
			NeedsFirst: []int{8},
			Exclude:    headerKinds,
			Custom:     renormalize(func(min int) bool { return min == 1 }),
		},
		{
			ID:         25,
			Name:       "headline hierarchy",
			NeedsFirst: []int{7, 8, 19, 49},
			Exclude:    headerKinds,
			Custom:     repairHierarchy,
		},
		{
			ID:      44,
			Name:    "headline with bold",
			Exclude: headerKinds,
			Custom:  unboldHeaders,
		},
		{
			ID:      49,
			Name:    "headline with HTML",
			Exclude: headerKinds,
			Pattern: htmlHeader,
			Replace: safesub.ReplaceFunc(replaceHTMLHeader),
		},
		{
			ID:      57,
			Name:    "headline ends with colon",
			Exclude: headerKinds,
			Custom:  dropHeaderColons,
		},
	}
}

var headerLine = regexp.MustCompile(`(?m)^=+[^\n]*$`)

// header is one "== title ==" line. start and end span the markers; inner is
// the text between them, spaces included.
type header struct {
	start, end  int
	open, close int
	inner       string
}

func (h header) symmetric() bool { return h.open == h.close }

func (h header) innerStart() int { return h.start + h.open }

func (h header) render(level int, inner string) string {
	m := strings.Repeat("=", level)
	return m + inner + m
}

// scanHeader reads one line starting with '='. The closing marker is the
// last run of '=' on the line. A line where a run at least as long as the
// opening marker is followed by more text is not a header.
func scanHeader(line string, start int) (header, bool) {
	open := len(line) - len(strings.TrimLeft(line, "="))
	body := strings.TrimRight(line[open:], " \t")
	close := len(body) - len(strings.TrimRight(body, "="))
	if close == 0 {
		if i := strings.LastIndexByte(body, '='); i >= 0 {
			j := i
			for j > 0 && body[j-1] == '=' {
				j--
			}
			if i+1-j >= open {
				return header{}, false
			}
		}
	}
	inner := body[:len(body)-close]
	if strings.TrimSpace(inner) == "" {
		return header{}, false
	}
	return header{
		start: start,
		end:   start + open + len(body),
		open:  open,
		close: close,
		inner: inner,
	}, true
}

// parseHeaders returns the headers of text outside the excluded regions.
func parseHeaders(c *Context, text string) []header {
	regions := c.Regions(text)
	var out []header
	for _, loc := range headerLine.FindAllStringIndex(text, -1) {
		h, ok := scanHeader(text[loc[0]:loc[1]], loc[0])
		if !ok || exclusion.Excluded(regions, h.start, h.end) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func fixAsymmetricHeaders(c *Context, text string) (string, []safesub.Edit, error) {
	var edits []safesub.Edit
	for _, h := range parseHeaders(c, text) {
		if h.symmetric() || (h.close == 0 && h.open < 2) {
			continue
		}
		inner := h.inner
		if h.close == 0 && strings.HasPrefix(inner, " ") {
			inner += " "
		}
		edits = append(edits, edit(text, h.start, h.end, h.render(h.open, inner)))
	}
	return finish(text, edits)
}

// renormalize shifts every header so the shallowest becomes level 2, when
// the minimum level satisfies when. Any asymmetric header aborts the fix, as
// does a shift that would push a header past level 6.
func renormalize(when func(min int) bool) func(*Context, string) (string, []safesub.Edit, error) {
	return func(c *Context, text string) (string, []safesub.Edit, error) {
		hs := parseHeaders(c, text)
		if len(hs) == 0 {
			return text, nil, nil
		}
		min, max := hs[0].open, hs[0].open
		for _, h := range hs {
			if !h.symmetric() {
				return text, nil, nil
			}
			if h.open < min {
				min = h.open
			}
			if h.open > max {
				max = h.open
			}
		}
		shift := 2 - min
		if !when(min) || max+shift > 6 {
			return text, nil, nil
		}
		edits := make([]safesub.Edit, 0, len(hs))
		for _, h := range hs {
			edits = append(edits, edit(text, h.start, h.end, h.render(h.open+shift, h.inner)))
		}
		return finish(text, edits)
	}
}

// hierarchy returns target levels in which no header is more than one level
// deeper than its predecessor. A header that jumps is raised together with
// the following headers at least as deep as it.
func hierarchy(levels []int) []int {
	t := append([]int(nil), levels...)
	for i := 1; i < len(t); i++ {
		prev := t[i-1]
		if t[i] <= prev+1 {
			continue
		}
		diff := t[i] - prev - 1
		top := t[i]
		for j := i; j < len(t) && t[j] >= top; j++ {
			t[j] -= diff
		}
	}
	return t
}

// repairHierarchy computes the target level of every header first and then
// rewrites headers by position, so duplicate titles are handled.
func repairHierarchy(c *Context, text string) (string, []safesub.Edit, error) {
	hs := parseHeaders(c, text)
	levels := make([]int, len(hs))
	for i, h := range hs {
		if !h.symmetric() {
			return text, nil, nil
		}
		levels[i] = h.open
	}
	targets := hierarchy(levels)

	var edits []safesub.Edit
	for i, h := range hs {
		if targets[i] != h.open {
			edits = append(edits, edit(text, h.start, h.end, h.render(targets[i], h.inner)))
		}
	}
	return finish(text, edits)
}

func unboldHeaders(c *Context, text string) (string, []safesub.Edit, error) {
	var edits []safesub.Edit
	for _, h := range parseHeaders(c, text) {
		n := strings.Count(h.inner, "'''")
		if n == 0 || n%2 != 0 || strings.Contains(h.inner, "''''") {
			continue
		}
		inner := strings.ReplaceAll(h.inner, "'''", "")
		if strings.TrimSpace(inner) == "" {
			continue
		}
		start := h.innerStart()
		edits = append(edits, edit(text, start, start+len(h.inner), inner))
	}
	return finish(text, edits)
}

func dropHeaderColons(c *Context, text string) (string, []safesub.Edit, error) {
	var edits []safesub.Edit
	for _, h := range parseHeaders(c, text) {
		trimmed := strings.TrimRight(h.inner, " \t")
		if !strings.HasSuffix(trimmed, ":") || strings.HasSuffix(trimmed, "::") {
			continue
		}
		title := strings.TrimSuffix(trimmed, ":")
		if strings.TrimSpace(title) == "" {
			continue
		}
		start := h.innerStart() + len(title)
		edits = append(edits, edit(text, start, start+1, ""))
	}
	return finish(text, edits)
}

var htmlHeader = regexp.MustCompile(`(?im)^<h([1-6])\s*>([^<\n]*)</h([1-6])\s*>[ \t]*$`)

func replaceHTMLHeader(m safesub.Match) string {
	if m.Group(1) != m.Group(3) {
		return m.String()
	}
	title := strings.TrimSpace(m.Group(2))
	if title == "" {
		return m.String()
	}
	level, _ := strconv.Atoi(m.Group(1))
	marks := strings.Repeat("=", level)
	return marks + " " + title + " " + marks
}
