package wiki

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/chris-regnier/wikifix/internal/settings"
)

var (
	whitelistLink = regexp.MustCompile(`\[\[([^\[\]|\n]+)(?:\|[^\[\]\n]*)?\]\]`)
	whitelistItem = regexp.MustCompile(`(?m)^[*#]+[ \t]*([^\[\]\n]+?)[ \t]*$`)
)

// WhitelistTitles returns the article titles listed on a whitelist page,
// either as links or as bare list items, in page order without repeats.
func WhitelistTitles(text string) []string {
	type found struct {
		at    int
		title string
	}
	var all []found
	for _, m := range whitelistLink.FindAllStringSubmatchIndex(text, -1) {
		all = append(all, found{m[0], text[m[2]:m[3]]})
	}
	for _, m := range whitelistItem.FindAllStringSubmatchIndex(text, -1) {
		all = append(all, found{m[0], text[m[2]:m[3]]})
	}
	// items never contain brackets, so they cannot overlap a link
	slices.SortFunc(all, func(a, b found) int { return a.at - b.at })

	seen := make(map[string]bool)
	var out []string
	for _, f := range all {
		title := strings.TrimPrefix(strings.TrimSpace(f.title), ":")
		if i := strings.IndexByte(title, '#'); i >= 0 {
			title = title[:i]
		}
		title = strings.TrimSpace(title)
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		out = append(out, title)
	}
	return out
}

// FetchWhitelists resolves the whitelist pages named in st into the titles
// each handler must leave alone. A page that cannot be fetched is reported
// as a diagnostic and the other pages still load.
func (c *Client) FetchWhitelists(ctx context.Context, st *settings.Settings, ids []int) (map[int][]string, []error) {
	if st == nil {
		return nil, nil
	}
	out := make(map[int][]string)
	pages := make(map[string][]string)
	var diags []error
	for _, id := range ids {
		for _, page := range st.Whitelist(id) {
			titles, ok := pages[page]
			if !ok {
				rev, err := c.Fetch(ctx, page)
				if err != nil {
					diags = append(diags, fmt.Errorf("whitelist of handler %d: %w", id, err))
					pages[page] = nil
					continue
				}
				titles = WhitelistTitles(rev.Text)
				pages[page] = titles
			}
			out[id] = append(out[id], titles...)
		}
	}
	return out, diags
}
