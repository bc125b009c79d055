package checkwiki

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/chris-regnier/wikifix/internal/safesub"
)

func entityHandlers() []*Handler {
	return []*Handler{
		{
			ID:         11,
			Name:       "HTML named entities",
			NeedsFirst: []int{20, 50},
			Pattern:    namedEntity,
			Replace:    safesub.ReplaceFunc(decodeNamedEntity),
		},
		{
			ID:      16,
			Name:    "Unicode control characters",
			Pattern: invisibleChars,
			Replace: safesub.Template(""),
		},
		{
			ID:      20,
			Name:    "symbol for dead",
			Pattern: daggerEntity,
			Replace: safesub.ReplaceFunc(decodeEntity),
		},
		{
			ID:      27,
			Name:    "Unicode syntax",
			Pattern: numericEntity,
			Replace: safesub.ReplaceFunc(decodeEntity),
		},
		{
			ID:      50,
			Name:    "en dash or em dash",
			Pattern: dashEntity,
			Replace: safesub.ReplaceFunc(decodeEntity),
		},
	}
}

var (
	namedEntity    = regexp.MustCompile(`&([A-Za-z][A-Za-z0-9]*);`)
	numericEntity  = regexp.MustCompile(`&#(?:[0-9]+|[xX][0-9A-Fa-f]+);`)
	daggerEntity   = regexp.MustCompile(`&[dD]agger;`)
	dashEntity     = regexp.MustCompile(`&[nm]dash;`)
	invisibleChars = regexp.MustCompile(`[\x{200B}\x{FEFF}\x{2028}\x{2029}\x{202A}-\x{202E}]`)
)

// keptEntities are named entities that stay as written: decoding them would
// change markup or leave an invisible or easily confused character.
var keptEntities = map[string]bool{
	"nbsp": true, "amp": true, "lt": true, "gt": true, "quot": true, "apos": true,
	"shy": true, "thinsp": true, "ensp": true, "emsp": true, "hairsp": true, "numsp": true,
	"zwj": true, "zwnj": true, "zwsp": true, "lrm": true, "rlm": true, "minus": true,
	"NewLine": true, "Tab": true, "lbrack": true, "rbrack": true, "lsqb": true, "rsqb": true,
	"lbrace": true, "rbrace": true, "lcub": true, "rcub": true, "verbar": true, "vert": true,
	"equals": true, "ast": true, "num": true, "colon": true, "semi": true, "excl": true,
	"lowbar": true, "prime": true, "Prime": true,
}

func decodeNamedEntity(m safesub.Match) string {
	name := m.Group(1)
	if keptEntities[name] {
		return m.String()
	}
	decoded := html.UnescapeString(m.String())
	if decoded == m.String() {
		slog.Debug("unrecognized HTML entity", "entity", m.String())
		return m.String()
	}
	if !safeToDecode(decoded) {
		return m.String()
	}
	return decoded
}

func decodeEntity(m safesub.Match) string {
	decoded := html.UnescapeString(m.String())
	if decoded == m.String() || !safeToDecode(decoded) {
		return m.String()
	}
	return decoded
}

// safeToDecode reports whether s can stand in the text for its entity:
// wiki syntax characters, whitespace, control and format characters cannot.
func safeToDecode(s string) bool {
	if s == "" || strings.ContainsAny(s, "[]{}|=*#:;'\"<>&~_!") {
		return false
	}
	for _, r := range s {
		if r == utf8.RuneError || unicode.IsSpace(r) || unicode.IsControl(r) ||
			unicode.In(r, unicode.Cf, unicode.Zs, unicode.Co, unicode.Mn) {
			return false
		}
	}
	return true
}
