package checkwiki

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/chris-regnier/wikifix/internal/exclusion"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

// refKinds excludes regions in which a <ref> is not a live reference.
var refKinds = []exclusion.Kind{
	exclusion.Comment, exclusion.Nowiki, exclusion.Pre, exclusion.Source, exclusion.Math,
	exclusion.References,
}

func referenceHandlers() []*Handler {
	return []*Handler{
		{
			ID:            3,
			Name:          "article with <ref> and no <references />",
			Exclude:       refKinds,
			NeedsDecision: true,
			Options:       missingReferencesOptions,
		},
		{
			ID:         61,
			Name:       "reference before punctuation",
			NeedsFirst: []int{81},
			Exclude:    refKinds,
			Custom:     moveRefPunctuation,
		},
		{
			ID:      63,
			Name:    "<small> in <ref>",
			Exclude: refKinds,
			Custom:  unsmallRefs,
		},
		{
			ID:         81,
			Name:       "reference duplication",
			NeedsFirst: []int{104},
			Exclude:    refKinds,
			Custom:     mergeDuplicateRefs,
		},
		{
			ID:      104,
			Name:    "quote marks in reference name",
			Exclude: refKinds,
			Pattern: unbalancedRefName,
			Replace: safesub.ReplaceFunc(balanceRefName),
		},
	}
}

var (
	refTag  = regexp.MustCompile(`(?is)<ref\b([^>]*?)(?:/\s*>|>(.*?)</ref\s*>)`)
	refAttr = regexp.MustCompile(`(?i)\b(name|group)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'/>]+))`)
)

// ref is one <ref> occurrence. content is nil for the self-closing form.
type ref struct {
	start, end int
	name       string
	group      string
	content    *string
}

func (r ref) definition() bool {
	return r.content != nil && strings.TrimSpace(*r.content) != ""
}

// parseRefs returns the live references of text in document order.
func parseRefs(c *Context, text string) []ref {
	regions := c.Regions(text)
	var out []ref
	for _, loc := range refTag.FindAllStringSubmatchIndex(text, -1) {
		if exclusion.Excluded(regions, loc[0], loc[1]) {
			continue
		}
		r := ref{start: loc[0], end: loc[1]}
		for _, a := range refAttr.FindAllStringSubmatch(text[loc[2]:loc[3]], -1) {
			v := strings.TrimSpace(a[2] + a[3] + a[4])
			switch strings.ToLower(a[1]) {
			case "name":
				r.name = v
			case "group":
				r.group = v
			}
		}
		if loc[4] >= 0 {
			content := text[loc[4]:loc[5]]
			r.content = &content
		}
		out = append(out, r)
	}
	return out
}

func refTagFor(name, group string) string {
	s := `<ref name="` + name + `"`
	if group != "" {
		s += ` group="` + group + `"`
	}
	return s
}

func numeric(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// cluster is the set of definitions in one group with identical content.
type cluster struct {
	group     string
	members   []int
	canonical string
}

// mergeDuplicateRefs collapses identical reference definitions. The first
// pass picks a canonical name per cluster of identical content and records
// which names it supersedes; the second pass rewrites every occurrence,
// including self-closing references to superseded names.
func mergeDuplicateRefs(c *Context, text string) (string, []safesub.Edit, error) {
	refs := parseRefs(c, text)
	if len(refs) < 2 && !(len(refs) == 1 && numeric(refs[0].name)) {
		return text, nil, nil
	}

	// names in use anywhere, and the content each name defines per group
	used := make(map[string]bool)
	defined := make(map[string]map[string]string)
	conflicting := make(map[string]map[string]bool)
	var clusters []*cluster
	byContent := make(map[string]*cluster)
	for i, r := range refs {
		if r.name != "" {
			used[r.name] = true
		}
		if !r.definition() {
			continue
		}
		content := strings.TrimSpace(*r.content)
		if r.name != "" {
			if defined[r.group] == nil {
				defined[r.group] = make(map[string]string)
				conflicting[r.group] = make(map[string]bool)
			}
			if prev, ok := defined[r.group][r.name]; ok && prev != content {
				conflicting[r.group][r.name] = true
			} else {
				defined[r.group][r.name] = content
			}
		}
		key := r.group + "\x00" + content
		cl := byContent[key]
		if cl == nil {
			cl = &cluster{group: r.group}
			byContent[key] = cl
			clusters = append(clusters, cl)
		}
		cl.members = append(cl.members, i)
	}

	auto := 0
	generate := func() string {
		for {
			auto++
			name := "auto" + strconv.Itoa(auto)
			if !used[name] {
				used[name] = true
				return name
			}
		}
	}

	// pass 1: canonical names and the rename map
	rename := make(map[string]map[string]string)
	inCluster := make(map[int]*cluster)
	for _, cl := range clusters {
		hasNumeric := false
		for _, i := range cl.members {
			if numeric(refs[i].name) {
				hasNumeric = true
			}
		}
		if len(cl.members) < 2 && !hasNumeric {
			continue
		}
		for _, i := range cl.members {
			n := refs[i].name
			if n != "" && !numeric(n) && !conflicting[cl.group][n] {
				cl.canonical = n
				break
			}
		}
		if cl.canonical == "" {
			cl.canonical = generate()
		}
		for _, i := range cl.members {
			inCluster[i] = cl
			n := refs[i].name
			if n == "" || n == cl.canonical || conflicting[cl.group][n] {
				continue
			}
			if rename[cl.group] == nil {
				rename[cl.group] = make(map[string]string)
			}
			rename[cl.group][n] = cl.canonical
		}
	}
	if len(inCluster) == 0 {
		return text, nil, nil
	}

	// pass 2: rewrite every occurrence
	var edits []safesub.Edit
	for i, r := range refs {
		var repl string
		if cl := inCluster[i]; cl != nil {
			if i == cl.members[0] {
				if r.name == cl.canonical {
					continue
				}
				repl = refTagFor(cl.canonical, r.group) + ">" + *r.content + "</ref>"
			} else {
				repl = refTagFor(cl.canonical, r.group) + " />"
			}
		} else if r.content == nil || !r.definition() {
			target, ok := rename[r.group][r.name]
			if !ok {
				continue
			}
			repl = refTagFor(target, r.group) + " />"
		} else {
			continue
		}
		if repl != text[r.start:r.end] {
			edits = append(edits, edit(text, r.start, r.end, repl))
		}
	}
	return finish(text, edits)
}

// moveRefPunctuation moves a period, comma, semicolon or colon that follows
// a run of adjacent references in front of the run. A run preceded by
// whitespace or by the same punctuation, and punctuation that starts an
// ellipsis or is followed by a digit, are left alone.
func moveRefPunctuation(c *Context, text string) (string, []safesub.Edit, error) {
	refs := parseRefs(c, text)
	var edits []safesub.Edit
	for i := 0; i < len(refs); {
		j := i
		for j+1 < len(refs) && adjacent(text, refs[j].end, refs[j+1].start) {
			j++
		}
		start, end := refs[i].start, refs[j].end
		i = j + 1

		if end >= len(text) || !strings.ContainsRune(".,;:", rune(text[end])) {
			continue
		}
		p := text[end]
		if end+1 < len(text) && (strings.ContainsRune(".,;:!?", rune(text[end+1])) || isDigit(text[end+1])) {
			continue
		}
		if start == 0 {
			continue
		}
		before := text[start-1]
		if before == ' ' || before == '\t' || before == '\n' || strings.ContainsRune(".,;:!?", rune(before)) {
			continue
		}
		edits = append(edits, edit(text, start, end+1, string(p)+text[start:end]))
	}
	return finish(text, edits)
}

func adjacent(text string, end, next int) bool {
	return strings.TrimSpace(text[end:next]) == ""
}

func isDigit(b byte) bool { return '0' <= b && b <= '9' }

var smallWrap = regexp.MustCompile(`(?is)^(\s*)<small\s*>(.*)</small\s*>(\s*)$`)

func unsmallRefs(c *Context, text string) (string, []safesub.Edit, error) {
	var edits []safesub.Edit
	for _, r := range parseRefs(c, text) {
		if r.content == nil {
			continue
		}
		m := smallWrap.FindStringSubmatch(*r.content)
		if m == nil || strings.Contains(strings.ToLower(m[2]), "small>") {
			continue
		}
		open := strings.Index(text[r.start:r.end], ">") + 1
		start := r.start + open
		end := start + len(*r.content)
		edits = append(edits, edit(text, start, end, m[1]+m[2]+m[3]))
	}
	return finish(text, edits)
}

var unbalancedRefName = regexp.MustCompile(`(?i)(<ref\s+name\s*=\s*)(?:"([^"<>/\n]+)|([^"'<>/\s]+)")(\s*/?>)`)

func balanceRefName(m safesub.Match) string {
	name := strings.TrimSpace(m.Group(2) + m.Group(3))
	if name == "" {
		return m.String()
	}
	return m.Group(1) + `"` + name + `"` + m.Group(4)
}

var referencesList = regexp.MustCompile(`(?i)<references\b|\{\{\s*(?:reflist|references|refs|reference list|citace|poznámky)\b`)

func missingReferencesOptions(c *Context, text string) []string {
	if len(parseRefs(c, text)) == 0 {
		return nil
	}
	regions := c.sub.Matcher().RegionsFor(text, headerKinds)
	for _, loc := range referencesList.FindAllStringIndex(text, -1) {
		if !exclusion.Excluded(regions, loc[0], loc[1]) {
			return nil
		}
	}
	return []string{
		"append <references /> in a new references section",
		fmt.Sprintf("append {{Reflist}} before the first category of %q", c.Page.Title),
	}
}
