package output

import (
	"strings"
	"testing"
)

func TestForTerminal(t *testing.T) {
	got := ForTerminal("json", []byte(`{"page": "Example"}`), 80)
	if !strings.Contains(got, "Example") {
		t.Errorf("highlighted JSON lost content: %q", got)
	}

	got = ForTerminal("markdown", []byte("## wikifix report\n\nSome **text**."), 80)
	if !strings.Contains(got, "wikifix report") || !strings.Contains(got, "text") {
		t.Errorf("rendered markdown lost content: %q", got)
	}

	if got := ForTerminal("pretty", []byte("as is"), 80); got != "as is" {
		t.Errorf("pretty output changed: %q", got)
	}
}
