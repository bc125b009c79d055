package output

import (
	"strings"

	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
)

// ForTerminal dresses formatted output for an interactive terminal: JSON is
// syntax highlighted and Markdown rendered. Other formats, and anything that
// fails to render, come back unchanged.
func ForTerminal(format string, data []byte, width int) string {
	var (
		out string
		err error
	)
	switch format {
	case "json":
		out, err = highlight(string(data), "json")
	case "markdown":
		out, err = renderMarkdown(string(data), width)
	default:
		return string(data)
	}
	if err != nil {
		return string(data)
	}
	return out
}

func highlight(text, language string) (string, error) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := lexer.Tokenise(nil, text)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}
	if err := formatters.TTY256.Format(&b, style, iterator); err != nil {
		return "", err
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

func renderMarkdown(text string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
