// Package exclusion computes the spans of wikitext that substitutions must
// never touch: comments, nowiki and pre blocks, references, templates, link
// targets, URLs and similar constructs.
package exclusion

import (
	"log/slog"
	"sort"
)

// Kind names a class of wikitext construct that can be excluded.
type Kind string

const (
	Comment    Kind = "comment"
	Nowiki     Kind = "nowiki"
	Pre        Kind = "pre"
	Source     Kind = "source"
	Math       Kind = "math"
	Ref        Kind = "ref"
	References Kind = "references"
	Gallery    Kind = "gallery"
	Timeline   Kind = "timeline"
	Template   Kind = "template"
	Link       Kind = "link"
	File       Kind = "file"
	Category   Kind = "category"
	Interwiki  Kind = "interwiki"
	URL        Kind = "url"
	Header     Kind = "header"
	StartSpace Kind = "startspace"
	Quote      Kind = "quote"
)

// DefaultKinds is the exclusion set used by handlers that do not declare
// their own.
var DefaultKinds = []Kind{Comment, Nowiki, Pre, Source, Math, Ref}

// Region is a half-open span [Start, End) of the subject text.
type Region struct {
	Start int  `json:"start"`
	End   int  `json:"end"`
	Kind  Kind `json:"kind"`
}

// Overlaps reports whether [start, end) intersects the region. An empty span
// is treated as an insertion point and only overlaps when strictly inside.
func (r Region) Overlaps(start, end int) bool {
	if start == end {
		return r.Start < start && start < r.End
	}
	return start < r.End && r.Start < end
}

// Recognizer finds the spans of one construct in text.
type Recognizer interface {
	Find(text string) [][2]int
}

// RecognizerFunc adapts a plain function to Recognizer.
type RecognizerFunc func(text string) [][2]int

func (f RecognizerFunc) Find(text string) [][2]int { return f(text) }

// Matcher maps kinds to recognizers. It is immutable after construction and
// safe for concurrent use.
type Matcher struct {
	recognizers map[Kind]Recognizer
}

// Option configures a Matcher.
type Option func(*options)

type options struct {
	categoryNames []string
	fileNames     []string
	extra         map[Kind]string
}

// WithCategoryNames sets the namespace names (including aliases) that mark a
// link as a category link. "Category" is always recognized.
func WithCategoryNames(names ...string) Option {
	return func(o *options) { o.categoryNames = append(o.categoryNames, names...) }
}

// WithFileNames sets the namespace names that mark a link as a file link.
// "File" and "Image" are always recognized.
func WithFileNames(names ...string) Option {
	return func(o *options) { o.fileNames = append(o.fileNames, names...) }
}

// WithPattern registers an additional kind recognized by a regular
// expression. A pattern that does not compile contributes no regions.
func WithPattern(kind Kind, expr string) Option {
	return func(o *options) {
		if o.extra == nil {
			o.extra = make(map[Kind]string)
		}
		o.extra[kind] = expr
	}
}

// New builds a Matcher with the built-in recognizers.
func New(opts ...Option) *Matcher {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	cats := append([]string{"Category"}, o.categoryNames...)
	files := append([]string{"File", "Image"}, o.fileNames...)

	m := &Matcher{recognizers: map[Kind]Recognizer{
		Comment:    RecognizerFunc(findComments),
		Nowiki:     newTagRecognizer("nowiki"),
		Pre:        newTagRecognizer("pre"),
		Source:     newTagRecognizer("source", "syntaxhighlight", "code"),
		Math:       newTagRecognizer("math", "chem", "ce"),
		Ref:        newTagRecognizer("ref"),
		References: newTagRecognizer("references"),
		Gallery:    newTagRecognizer("gallery"),
		Timeline:   newTagRecognizer("timeline", "graph", "score", "hiero", "mapframe"),
		Template:   RecognizerFunc(findTemplates),
		Link:       RecognizerFunc(findLinkTargets),
		File:       namespaceLinks(files),
		Category:   namespaceLinks(cats),
		Interwiki:  interwikiLinks(append(cats, files...)),
		URL:        newPatternRecognizer(URL, `(?i)\b(?:https?|ftp)://[^\s\[\]<>"{}|]+`),
		Header:     newPatternRecognizer(Header, `(?m)^=+[^\n]*=+[ \t]*$`),
		StartSpace: newPatternRecognizer(StartSpace, `(?m)^ [^\n]*$`),
		Quote:      newPatternRecognizer(Quote, `"[^"\n]*"|„[^“\n]*“|“[^”\n]*”|»[^«\n]*«`),
	}}
	for kind, expr := range o.extra {
		m.recognizers[kind] = newPatternRecognizer(kind, expr)
	}
	return m
}

// Kinds returns the kinds this matcher knows, sorted by name.
func (m *Matcher) Kinds() []Kind {
	kinds := make([]Kind, 0, len(m.recognizers))
	for k := range m.recognizers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// RegionsFor returns the excluded regions of text for the given kinds,
// sorted by start offset and merged so that no two regions overlap.
func (m *Matcher) RegionsFor(text string, kinds []Kind) []Region {
	var all []Region
	seen := make(map[Kind]bool, len(kinds))
	for _, kind := range kinds {
		if seen[kind] {
			continue
		}
		seen[kind] = true
		rec, ok := m.recognizers[kind]
		if !ok {
			slog.Warn("unknown exclusion kind", "kind", kind)
			continue
		}
		for _, span := range rec.Find(text) {
			if span[1] > span[0] {
				all = append(all, Region{Start: span[0], End: span[1], Kind: kind})
			}
		}
	}
	return merge(all)
}

// Excluded reports whether [start, end) intersects any of regions, which must
// be sorted and non-overlapping as returned by RegionsFor.
func Excluded(regions []Region, start, end int) bool {
	// first region that ends after start
	i := sort.Search(len(regions), func(i int) bool { return regions[i].End > start })
	for ; i < len(regions) && regions[i].Start <= end; i++ {
		if regions[i].Overlaps(start, end) {
			return true
		}
	}
	return false
}

func merge(regions []Region) []Region {
	if len(regions) == 0 {
		return nil
	}
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Start != regions[j].Start {
			return regions[i].Start < regions[j].Start
		}
		return regions[i].End > regions[j].End
	})
	out := []Region{regions[0]}
	for _, r := range regions[1:] {
		last := &out[len(out)-1]
		if r.Start < last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
