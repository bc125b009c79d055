package exclusion

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// patternRecognizer compiles its expression on first use. A malformed
// expression is logged once and yields no spans.
type patternRecognizer struct {
	kind Kind
	expr string

	once sync.Once
	re   *regexp.Regexp
}

func newPatternRecognizer(kind Kind, expr string) *patternRecognizer {
	return &patternRecognizer{kind: kind, expr: expr}
}

func (p *patternRecognizer) Find(text string) [][2]int {
	p.once.Do(func() {
		re, err := regexp.Compile(p.expr)
		if err != nil {
			slog.Warn("exclusion pattern does not compile, kind contributes no regions",
				"kind", p.kind, "pattern", p.expr, "err", err)
			return
		}
		p.re = re
	})
	if p.re == nil {
		return nil
	}
	var spans [][2]int
	for _, loc := range p.re.FindAllStringIndex(text, -1) {
		spans = append(spans, [2]int{loc[0], loc[1]})
	}
	return spans
}

func findComments(text string) [][2]int {
	var spans [][2]int
	pos := 0
	for {
		i := strings.Index(text[pos:], "<!--")
		if i < 0 {
			return spans
		}
		start := pos + i
		j := strings.Index(text[start+4:], "-->")
		if j < 0 {
			return append(spans, [2]int{start, len(text)})
		}
		end := start + 4 + j + 3
		spans = append(spans, [2]int{start, end})
		pos = end
	}
}

// tagRecognizer matches paired extension tags such as <nowiki>...</nowiki>.
// Nested tags of the same name are balanced; an unclosed tag runs to the end
// of the text.
type tagRecognizer struct {
	re *regexp.Regexp
}

func newTagRecognizer(names ...string) *tagRecognizer {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	expr := `(?i)<(/?)(` + strings.Join(quoted, "|") + `)\b(?:\s[^<>]*?)?\s*(/?)>`
	return &tagRecognizer{re: regexp.MustCompile(expr)}
}

func (t *tagRecognizer) Find(text string) [][2]int {
	var spans [][2]int
	depth, start := 0, 0
	open := ""
	for _, m := range t.re.FindAllStringSubmatchIndex(text, -1) {
		closing := m[3] > m[2]
		name := strings.ToLower(text[m[4]:m[5]])
		selfClosing := m[7] > m[6]
		switch {
		case depth == 0 && !closing && selfClosing:
			spans = append(spans, [2]int{m[0], m[1]})
		case depth == 0 && !closing:
			depth, start, open = 1, m[0], name
		case depth > 0 && name == open && !closing && !selfClosing:
			depth++
		case depth > 0 && name == open && closing:
			depth--
			if depth == 0 {
				spans = append(spans, [2]int{start, m[1]})
			}
		}
	}
	if depth > 0 {
		spans = append(spans, [2]int{start, len(text)})
	}
	return spans
}

// findTemplates balances runs of braces: a run of n opening braces opens
// n/2 levels, so {{{param}}} and nested templates stay in one region.
func findTemplates(text string) [][2]int {
	var spans [][2]int
	depth, start := 0, 0
	for i := 0; i < len(text); {
		c := text[i]
		if c != '{' && c != '}' {
			i++
			continue
		}
		j := i
		for j < len(text) && text[j] == c {
			j++
		}
		pairs := (j - i) / 2
		if c == '{' {
			if depth == 0 && pairs > 0 {
				start = i
			}
			depth += pairs
			i = j
			continue
		}
		for p := 0; p < pairs && depth > 0; p++ {
			depth--
			if depth == 0 {
				spans = append(spans, [2]int{start, i + 2*(p+1)})
			}
		}
		i = j
	}
	if depth > 0 {
		spans = append(spans, [2]int{start, len(text)})
	}
	return spans
}

// linkSpan is one [[...]] construct: the whole span, the end of its target
// (first top-level pipe or the closing brackets) and the inner text start.
type linkSpan struct {
	start, end int
	targetEnd  int
}

func (l linkSpan) target(text string) string {
	return text[l.start+2 : l.targetEnd]
}

func scanLinks(text string) []linkSpan {
	var links []linkSpan
	depth := 0
	cur := linkSpan{}
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '|' && depth == 1 && cur.targetEnd == 0:
			cur.targetEnd = i
			i++
			continue
		case c != '[' && c != ']':
			i++
			continue
		}
		j := i
		for j < len(text) && text[j] == c {
			j++
		}
		pairs := (j - i) / 2
		if c == '[' {
			if depth == 0 && pairs > 0 {
				cur = linkSpan{start: j - 2*pairs}
			}
			depth += pairs
			i = j
			continue
		}
		for p := 0; p < pairs && depth > 0; p++ {
			depth--
			if depth == 0 {
				if cur.targetEnd == 0 {
					cur.targetEnd = i + 2*p
				}
				cur.end = i + 2*(p+1)
				links = append(links, cur)
			}
		}
		i = j
	}
	if depth > 0 {
		if cur.targetEnd == 0 {
			cur.targetEnd = len(text)
		}
		cur.end = len(text)
		links = append(links, cur)
	}
	return links
}

// findLinkTargets excludes the target part of wikilinks; the label after the
// pipe stays editable.
func findLinkTargets(text string) [][2]int {
	var spans [][2]int
	for _, l := range scanLinks(text) {
		end := l.targetEnd
		if end == l.end-2 || end >= len(text) {
			end = l.end
		}
		spans = append(spans, [2]int{l.start, end})
	}
	return spans
}

// namespacePrefix reports whether a link target starts with one of names
// followed by a colon, ignoring case, spaces and a leading colon.
func namespacePrefix(target string, names []string) bool {
	t := strings.TrimLeft(target, " :")
	colon := strings.IndexByte(t, ':')
	if colon < 0 {
		return false
	}
	ns := strings.ReplaceAll(strings.TrimSpace(t[:colon]), "_", " ")
	for _, n := range names {
		if strings.EqualFold(ns, n) {
			return true
		}
	}
	return false
}

func namespaceLinks(names []string) Recognizer {
	return RecognizerFunc(func(text string) [][2]int {
		var spans [][2]int
		for _, l := range scanLinks(text) {
			if namespacePrefix(l.target(text), names) {
				spans = append(spans, [2]int{l.start, l.end})
			}
		}
		return spans
	})
}

var interwikiPrefix = regexp.MustCompile(`^\s*[a-z]{2,3}(?:-[a-z0-9]+)*\s*:`)

func interwikiLinks(namespaces []string) Recognizer {
	return RecognizerFunc(func(text string) [][2]int {
		var spans [][2]int
		for _, l := range scanLinks(text) {
			target := l.target(text)
			if interwikiPrefix.MatchString(target) && !namespacePrefix(target, namespaces) {
				spans = append(spans, [2]int{l.start, l.end})
			}
		}
		return spans
	})
}
