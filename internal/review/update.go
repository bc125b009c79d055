package review

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "ctrl+c":
			m.aborted = true
			return m, tea.Quit

		case "q", "esc":
			return m, tea.Quit

		case "n", "j", "down":
			m.move(1)

		case "p", "k", "up":
			m.move(-1)

		case "r", "x": // reject
			if it, ok := m.current(); ok {
				m.decisions[it.Key()] = Decision{Page: it.Page, RuleID: it.RuleID, Status: StatusRejected}
				m.move(1)
			}

		case "u": // undo
			if it, ok := m.current(); ok {
				delete(m.decisions, it.Key())
			}

		default:
			if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
				m.choose(int(key[0] - '1'))
			}
		}
	}

	return m, nil
}

func (m *Model) move(delta int) {
	if len(m.items) == 0 {
		return
	}
	m.cursor = (m.cursor + delta + len(m.items)) % len(m.items)
}

func (m *Model) choose(choice int) {
	it, ok := m.current()
	if !ok || choice >= len(it.Replacements) {
		return
	}
	m.decisions[it.Key()] = Decision{Page: it.Page, RuleID: it.RuleID, Status: StatusAccepted, Choice: choice}
	m.move(1)
}
