package checkwiki

import (
	"fmt"
	"regexp"

	"github.com/chris-regnier/wikifix/internal/safesub"
)

func miscHandlers() []*Handler {
	return []*Handler{
		{
			ID:      1,
			Name:    "template with keyword Template:",
			Exclude: templateKinds,
			Custom:  dropTemplatePrefix,
		},
		{
			ID:      69,
			Name:    "ISBN wrong syntax",
			Pattern: isbnColon,
			Replace: safesub.Template("ISBN ${1}"),
		},
		{
			ID:      88,
			Name:    "DEFAULTSORT with blank at first position",
			Exclude: templateKinds,
			Pattern: defaultSortSpace,
			Replace: safesub.Template("{{${1}:"),
		},
	}
}

var (
	isbnColon        = regexp.MustCompile(`\bISBN[ \t]*:[ \t]*([0-9])`)
	defaultSortSpace = regexp.MustCompile(`(?i)\{\{[ \t]*(DEFAULTSORT|DEFAULTSORTKEY|DEFAULTCATEGORYSORT)[ \t]*:[ \t]+`)
)

func dropTemplatePrefix(c *Context, text string) (string, []safesub.Edit, error) {
	re, err := regexp.Compile(`(?i)\{\{[ \t]*(?:msg[ \t]*:[ \t]*)?(?:` + namesExpr(c.Site.templateNames()) + `)[ \t]*:[ \t]*`)
	if err != nil {
		return text, nil, fmt.Errorf("building template prefix pattern: %w", err)
	}
	return c.Substitute(text, re, safesub.Template("{{"))
}
