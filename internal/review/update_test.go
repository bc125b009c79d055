package review

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func testItems() []Item {
	return []Item{
		{Page: "A", RuleID: "their", Replacements: []string{"there", "they're"}},
		{Page: "A", RuleID: "its", Replacements: []string{"it's"}},
		{Page: "B", RuleID: "their", Replacements: []string{"there", "they're"}},
	}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "ctrl+c":
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func TestUpdate_Navigation(t *testing.T) {
	m := press(t, NewModel(testItems(), nil), "n")
	if m.cursor != 1 {
		t.Errorf("Expected cursor=1, got %d", m.cursor)
	}
	m = press(t, m, "p", "p")
	if m.cursor != 2 {
		t.Errorf("Expected cursor to wrap to 2, got %d", m.cursor)
	}
}

func TestUpdate_ChooseAndReject(t *testing.T) {
	m := press(t, NewModel(testItems(), nil), "2", "r")

	got := m.Decisions()
	if len(got) != 2 {
		t.Fatalf("Expected 2 decisions, got %d", len(got))
	}
	if got[0] != (Decision{Page: "A", RuleID: "their", Status: StatusAccepted, Choice: 1}) {
		t.Errorf("Unexpected first decision: %+v", got[0])
	}
	if got[1].Status != StatusRejected || got[1].RuleID != "its" {
		t.Errorf("Unexpected second decision: %+v", got[1])
	}
	if m.cursor != 2 {
		t.Errorf("Expected cursor to advance to 2, got %d", m.cursor)
	}
}

func TestUpdate_ChoiceOutOfRange(t *testing.T) {
	m := press(t, NewModel(testItems(), nil), "n", "2")
	if len(m.Decisions()) != 0 {
		t.Errorf("rule with one replacement accepted choice 2: %+v", m.Decisions())
	}
	if m.cursor != 1 {
		t.Errorf("cursor moved on an invalid choice: %d", m.cursor)
	}
}

func TestUpdate_Undo(t *testing.T) {
	m := press(t, NewModel(testItems(), nil), "1", "p", "u")
	if len(m.Decisions()) != 0 {
		t.Errorf("Expected undo to clear the decision, got %+v", m.Decisions())
	}
}

func TestUpdate_QuitAndAbort(t *testing.T) {
	m := NewModel(testItems(), nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Error("Expected quit command on q")
	}
	if m.Aborted() {
		t.Error("q must not abort")
	}

	m = press(t, m, "ctrl+c")
	if !m.Aborted() {
		t.Error("Expected ctrl+c to abort")
	}
}

func TestNewModel_PriorDecisions(t *testing.T) {
	prior := &State{Decisions: map[string]Decision{
		"A#their": {Page: "A", RuleID: "their", Status: StatusAccepted, Choice: 1},
		"A#its":   {Page: "A", RuleID: "its", Status: StatusAccepted, Choice: 4}, // no longer valid
		"C#x":     {Page: "C", RuleID: "x", Status: StatusRejected},
	}}
	m := NewModel(testItems(), prior)
	got := m.Decisions()
	if len(got) != 1 || got[0].Key() != "A#their" {
		t.Errorf("Expected only the valid matching decision, got %+v", got)
	}
}
