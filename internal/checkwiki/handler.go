// Package checkwiki implements the fixed catalog of CheckWiki error handlers.
// Each handler repairs one class of wikitext defect, identified by the
// numeric id used by the CheckWiki project.
package checkwiki

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chris-regnier/wikifix/internal/exclusion"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

var ErrUnknownHandler = errors.New("unknown handler")

// Handler is one catalog entry. It either carries a declarative Pattern and
// Replace pair or a Custom transform; decision and delegated handlers carry
// neither and are never applied.
type Handler struct {
	ID   int
	Name string

	// NeedsFirst lists handlers that must be attempted before this one when
	// they are part of the same batch.
	NeedsFirst []int

	// Exclude is the set of regions the handler never edits. Nil means
	// exclusion.DefaultKinds.
	Exclude []exclusion.Kind

	NeedsDecision     bool
	HandledExternally bool

	Pattern *regexp.Regexp
	Replace safesub.Replacer
	Custom  func(c *Context, text string) (string, []safesub.Edit, error)

	// Options describes the candidate fixes of a decision handler.
	Options func(c *Context, text string) []string
}

func (h *Handler) String() string {
	return fmt.Sprintf("%d (%s)", h.ID, h.Name)
}

// Kinds returns the excluded region kinds of the handler.
func (h *Handler) Kinds() []exclusion.Kind {
	if h.Exclude == nil {
		return exclusion.DefaultKinds
	}
	return h.Exclude
}

// Declarative reports whether the handler is a plain pattern substitution.
func (h *Handler) Declarative() bool {
	return h.Custom == nil && h.Pattern != nil
}

// Apply runs the handler over text. Decision and delegated handlers return
// the text unchanged.
func (h *Handler) Apply(c *Context, text string) (string, []safesub.Edit, error) {
	if h.NeedsDecision || h.HandledExternally {
		return text, nil, nil
	}
	hc := c.withKinds(h.Kinds())
	switch {
	case h.Custom != nil:
		return h.Custom(hc, text)
	case h.Pattern != nil && h.Replace != nil:
		return hc.Substitute(text, h.Pattern, h.Replace)
	}
	return text, nil, fmt.Errorf("handler %d has no behavior", h.ID)
}

// Decide returns the candidate fixes of a decision handler.
func (h *Handler) Decide(c *Context, text string) []string {
	if h.Options == nil {
		return nil
	}
	return h.Options(c.withKinds(h.Kinds()), text)
}

// Site describes the wiki a page belongs to.
type Site struct {
	Project string `yaml:"project" json:"project"`
	Domain  string `yaml:"domain" json:"domain"`

	// Local namespace names; the first entry is the preferred spelling.
	CategoryNames []string `yaml:"category_names" json:"category_names"`
	FileNames     []string `yaml:"file_names" json:"file_names"`
	TemplateNames []string `yaml:"template_names" json:"template_names"`

	// CaseSensitive is true on wikis whose titles keep a lowercase first
	// letter (e.g. Wiktionary).
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`
}

// DefaultSite is English Wikipedia.
func DefaultSite() *Site {
	return &Site{
		Project:       "enwiki",
		Domain:        "en.wikipedia.org",
		CategoryNames: []string{"Category"},
		FileNames:     []string{"File", "Image"},
		TemplateNames: []string{"Template"},
	}
}

// Category returns the preferred local category namespace name.
func (s *Site) Category() string {
	if len(s.CategoryNames) > 0 {
		return s.CategoryNames[0]
	}
	return "Category"
}

func (s *Site) categoryNames() []string { return withCanonical("Category", s.CategoryNames) }
func (s *Site) fileNames() []string {
	return withCanonical("File", withCanonical("Image", s.FileNames))
}
func (s *Site) templateNames() []string { return withCanonical("Template", s.TemplateNames) }

func withCanonical(name string, names []string) []string {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return names
		}
	}
	return append(append([]string(nil), names...), name)
}

// Matcher builds an exclusion matcher that knows the site's namespaces.
func (s *Site) Matcher(opts ...exclusion.Option) *exclusion.Matcher {
	base := []exclusion.Option{
		exclusion.WithCategoryNames(s.CategoryNames...),
		exclusion.WithFileNames(s.FileNames...),
	}
	return exclusion.New(append(base, opts...)...)
}

// NormalizeTitle canonicalizes a link target for comparison: underscores
// become spaces, runs of spaces collapse and, on case-insensitive sites, the
// first letter is upper-cased.
func (s *Site) NormalizeTitle(title string) string {
	title = strings.Join(strings.Fields(strings.ReplaceAll(title, "_", " ")), " ")
	if s.CaseSensitive || title == "" {
		return title
	}
	r, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(r)) + title[size:]
}

// namesExpr is an alternation of the given namespace names, matching case
// insensitively when compiled with (?i).
func namesExpr(names []string) string {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, strings.ReplaceAll(regexp.QuoteMeta(n), " ", "[ _]"))
	}
	return strings.Join(quoted, "|")
}

// Page is the metadata of the page being fixed.
type Page struct {
	Title     string `json:"title"`
	Namespace int    `json:"namespace"`
	Site      *Site  `json:"-"`
}

// Context is what a handler sees besides the text: the page and a
// substituter configured with the handler's exclusions.
type Context struct {
	Page  Page
	Site  *Site
	sub   *safesub.Substituter
	kinds []exclusion.Kind
}

// NewContext returns a context for page. A nil site falls back to the
// page's site and then to DefaultSite; a nil sub uses the site's matcher.
func NewContext(page Page, sub *safesub.Substituter) *Context {
	site := page.Site
	if site == nil {
		site = DefaultSite()
		page.Site = site
	}
	if sub == nil {
		sub = safesub.New(site.Matcher())
	}
	return &Context{Page: page, Site: site, sub: sub, kinds: exclusion.DefaultKinds}
}

func (c *Context) withKinds(kinds []exclusion.Kind) *Context {
	cc := *c
	cc.kinds = kinds
	return &cc
}

// Kinds returns the exclusions in effect.
func (c *Context) Kinds() []exclusion.Kind { return c.kinds }

// Substitute replaces matches of re outside the excluded regions.
func (c *Context) Substitute(text string, re *regexp.Regexp, r safesub.Replacer) (string, []safesub.Edit, error) {
	return c.sub.Apply(text, safesub.Regexp(re), r, c.kinds)
}

// Regions returns the excluded regions of text.
func (c *Context) Regions(text string) []exclusion.Region {
	return c.sub.Matcher().RegionsFor(text, c.kinds)
}

// splice applies non-overlapping edits, sorted by Start, to text.
func splice(text string, edits []safesub.Edit) string {
	if len(edits) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, e := range edits {
		b.WriteString(text[last:e.Start])
		b.WriteString(e.New)
		last = e.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// edit records replacing text[start:end] with repl.
func edit(text string, start, end int, repl string) safesub.Edit {
	return safesub.Edit{Start: start, End: end, Old: text[start:end], New: repl}
}

// finish splices edits into text, returning text itself when nothing changed.
func finish(text string, edits []safesub.Edit) (string, []safesub.Edit, error) {
	if len(edits) == 0 {
		return text, nil, nil
	}
	return splice(text, edits), edits, nil
}

// each runs a replacement over every match of re outside the excluded
// regions; a convenience for declarative handlers that need the context.
func each(re *regexp.Regexp, fn func(c *Context, m safesub.Match) string) func(*Context, string) (string, []safesub.Edit, error) {
	return func(c *Context, text string) (string, []safesub.Edit, error) {
		return c.Substitute(text, re, safesub.ReplaceFunc(func(m safesub.Match) string { return fn(c, m) }))
	}
}
