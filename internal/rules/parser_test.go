package rules

import (
	"errors"
	"testing"
)

const ruleDefinitions = `== Typos ==
{{Typo|find=<nowiki>\b([Tt])eh\b</nowiki>|replace1=$1he|auto=yes|searchHint=teh}}
{{Typo|replace1=x}}
{{Typo|find=(unclosed|replace1=x}}
{{typo|find=<nowiki>(colou?r|grey)ish</nowiki>|replace1=$1-ish|replace2=$1|auto=no}}
{{Typo
 | find = alot
 | replace1 = a lot
 | auto = ano
}}
`

func TestParse(t *testing.T) {
	rules, diags := NewParser().Parse(ruleDefinitions)

	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d: %v", len(diags), diags)
	}

	teh := rules[0]
	if teh.ID != "typo-1" {
		t.Errorf("ID = %q, want typo-1", teh.ID)
	}
	if teh.Find != `\b([Tt])eh\b` {
		t.Errorf("Find = %q, nowiki not stripped", teh.Find)
	}
	if len(teh.Replacements) != 1 || teh.Replacements[0] != "${1}he" {
		t.Errorf("Replacements = %q, want [${1}he]", teh.Replacements)
	}
	if !teh.Auto || teh.NeedsDecision() {
		t.Error("expected an auto rule that needs no decision")
	}
	if !teh.Searchable() || teh.SearchQuery != "teh" {
		t.Errorf("SearchQuery = %q, want teh", teh.SearchQuery)
	}

	colour := rules[1]
	if colour.ID != "typo-4" {
		t.Errorf("ID = %q, want typo-4", colour.ID)
	}
	if colour.Find != `(colou?r|grey)ish` {
		t.Errorf("pipe inside nowiki split the parameter: Find = %q", colour.Find)
	}
	if len(colour.Replacements) != 2 || !colour.NeedsDecision() {
		t.Errorf("expected two replacements needing a decision, got %q", colour.Replacements)
	}

	alot := rules[2]
	if alot.Find != "alot" || alot.Replacements[0] != "a lot" || !alot.Auto {
		t.Errorf("multi-line block parsed as %+v", alot)
	}
}

func TestParse_Diagnostics(t *testing.T) {
	_, diags := NewParser().Parse(ruleDefinitions)
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(diags))
	}

	var pe *ParseError
	if !errors.As(diags[0], &pe) {
		t.Fatalf("expected *ParseError, got %T", diags[0])
	}
	if pe.Index != 2 || pe.Line != 3 {
		t.Errorf("diagnostic at index %d line %d, want index 2 line 3", pe.Index, pe.Line)
	}
	if !errors.Is(diags[0], ErrMissingFind) {
		t.Errorf("expected ErrMissingFind, got %v", diags[0])
	}

	if !errors.As(diags[1], &pe) || pe.Line != 4 {
		t.Errorf("expected compile failure on line 4, got %v", diags[1])
	}
}

func TestParse_CustomFields(t *testing.T) {
	text := `{{Překlep|co=kterak|čím1=jak|auto=ano}}`
	p := NewParser(WithFields(Fields{Template: "Překlep", Find: "co", Replace: "čím"}))

	rules, diags := p.Parse(text)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if rules[0].Find != "kterak" || rules[0].Replacements[0] != "jak" || !rules[0].Auto {
		t.Errorf("rule = %+v", rules[0])
	}
}

func TestParse_Unterminated(t *testing.T) {
	rules, diags := NewParser().Parse("{{Typo|find=a|replace1=b|auto=yes}}\n{{Typo|find=c|replace1=d")
	if len(rules) != 1 {
		t.Errorf("expected the terminated block to parse, got %d rules", len(rules))
	}
	if len(diags) != 1 {
		t.Errorf("expected 1 diagnostic for the unterminated block, got %d", len(diags))
	}
}

func TestTranslateBackrefs(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"$1he", "${1}he"},
		{"$1$2", "${1}${2}"},
		{"$12x", "${12}x"},
		{"no refs", "no refs"},
		{"${1}", "${1}"},
		{"$USD 5", "$$USD 5"},
		{"${name}", "$${name}"},
		{"costs $", "costs $$"},
		{"$$1", "$$1"},
		{"$1 in $USD", "${1} in $$USD"},
	}
	for _, tt := range tests {
		if got := translateBackrefs(tt.in); got != tt.want {
			t.Errorf("translateBackrefs(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got := translateBackrefs(tt.want); got != tt.want {
			t.Errorf("translateBackrefs(%q) = %q, want it unchanged", tt.want, got)
		}
	}
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"yes", "Yes", " ano ", "1", "true"} {
		if !truthy(v) {
			t.Errorf("truthy(%q) = false", v)
		}
	}
	for _, v := range []string{"", "no", "ne", "0"} {
		if truthy(v) {
			t.Errorf("truthy(%q) = true", v)
		}
	}
}
