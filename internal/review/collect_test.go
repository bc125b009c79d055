package review

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/chris-regnier/wikifix/internal/exclusion"
	"github.com/chris-regnier/wikifix/internal/rules"
	"github.com/chris-regnier/wikifix/internal/safesub"
)

func runner(t *testing.T) *rules.Runner {
	t.Helper()
	rf, err := rules.ParseRuleFile([]byte(`rules:
  - id: their
    label: "their is"
    find: '\btheir is\b'
    replace: ['there is', 'their are']
    auto: true
  - id: teh
    find: '\bteh\b'
    replace: ['the']
    auto: true
  - id: alot
    find: '\balot\b'
    replace: ['a lot']
    auto: false
`))
	if err != nil {
		t.Fatal(err)
	}
	return rules.NewRunner(rf.Rules, safesub.New(exclusion.New()))
}

func TestCollectAndApply(t *testing.T) {
	r := runner(t)
	text := "teh dog thinks their is a cat.\nSecond line."
	rep, err := r.Run(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}

	items := Collect("Dogs", r, rep)
	if len(items) != 1 {
		t.Fatalf("Expected 1 item (alot has no match), got %d: %+v", len(items), items)
	}
	it := items[0]
	if it.Key() != "Dogs#their" || it.Label != "their is" {
		t.Errorf("Unexpected item: %+v", it)
	}
	if it.Context != "the dog thinks their is a cat." {
		t.Errorf("Unexpected context: %q", it.Context)
	}
	if it.Previews[1] != "their is → their are" {
		t.Errorf("Unexpected preview: %q", it.Previews[1])
	}

	decisions := []Decision{
		{Page: "Dogs", RuleID: "their", Status: StatusAccepted, Choice: 0},
		{Page: "Other", RuleID: "their", Status: StatusAccepted, Choice: 1},
		{Page: "Dogs", RuleID: "alot", Status: StatusRejected},
	}
	got, changes, err := Apply(context.Background(), r, "Dogs", rep.Text, decisions)
	if err != nil {
		t.Fatal(err)
	}
	if got != "the dog thinks there is a cat.\nSecond line." {
		t.Errorf("Unexpected text: %q", got)
	}
	if len(changes) != 1 || changes[0] != "their is → there is" {
		t.Errorf("Unexpected changes: %v", changes)
	}
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("x", 100) + "MATCH" + strings.Repeat("y", 100)
	got := snippet("first\n"+long+"\nlast", 6+100)
	if !strings.HasPrefix(got, "…") || !strings.HasSuffix(got, "…") || !strings.Contains(got, "MATCH") {
		t.Errorf("Unexpected snippet: %q", got)
	}
	if n := len(strings.Trim(got, "…")); n != 2*contextBytes {
		t.Errorf("Expected %d bytes of context, got %d", 2*contextBytes, n)
	}
	// the cut point falls inside "é"
	text := strings.Repeat("a", 11) + "é" + strings.Repeat("a", 59) + "b"
	if got := snippet(text, 72); !utf8.ValidString(got) {
		t.Errorf("snippet split a rune: %q", got)
	}
}
