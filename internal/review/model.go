// Package review is the terminal interface for typo rules that cannot be
// applied unattended: each pending rule is shown with its context and its
// replacements, and a person picks one or rejects the rule.
package review

// Item is one rule awaiting a decision on one page.
type Item struct {
	Page         string
	RuleID       string
	Label        string
	Replacements []string
	// Previews holds, per replacement, what the first match would become.
	// Empty when the replacement does not touch it.
	Previews []string
	Context  string
}

// Key identifies the item across sessions.
func (i Item) Key() string { return i.Page + "#" + i.RuleID }

type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Decision is what a reviewer chose for an item. Choice indexes the rule's
// replacements and is meaningful only when accepted.
type Decision struct {
	Page   string `json:"page"`
	RuleID string `json:"rule_id"`
	Status Status `json:"status"`
	Choice int    `json:"choice"`
}

func (d Decision) Key() string { return d.Page + "#" + d.RuleID }

// Model is the bubbletea model of a review session.
type Model struct {
	items     []Item
	cursor    int
	decisions map[string]Decision
	aborted   bool

	width  int
	height int
}

// NewModel starts a session over items. Decisions from prior that match an
// item are shown as already taken.
func NewModel(items []Item, prior *State) Model {
	m := Model{items: items, decisions: make(map[string]Decision)}
	if prior != nil {
		for _, it := range items {
			if d, ok := prior.Decisions[it.Key()]; ok && d.Choice < len(it.Replacements) {
				m.decisions[it.Key()] = d
			}
		}
	}
	return m
}

// Decisions returns the decisions taken, in item order.
func (m Model) Decisions() []Decision {
	var out []Decision
	for _, it := range m.items {
		if d, ok := m.decisions[it.Key()]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Aborted reports whether the session was left with ctrl+c, discarding it.
func (m Model) Aborted() bool { return m.aborted }

func (m Model) current() (Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return Item{}, false
	}
	return m.items[m.cursor], true
}
