package review

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	acceptedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	rejectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	detailsStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// listHeight is the number of items shown around the cursor.
const listHeight = 10

// View implements tea.Model
func (m Model) View() string {
	if len(m.items) == 0 {
		return "Nothing to review.\n\nPress q to quit"
	}

	var b strings.Builder
	itemText := "decisions"
	if len(m.items) == 1 {
		itemText = "decision"
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("Typo review: %d %s, %d taken", len(m.items), itemText, len(m.decisions))))
	b.WriteString("\n\n")

	from := max(0, m.cursor-listHeight/2)
	to := min(len(m.items), from+listHeight)
	for i := from; i < to; i++ {
		it := m.items[i]
		marker := "  "
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
		}
		fmt.Fprintf(&b, "%s%s %s  %s\n", marker, m.badge(it), it.Page, dimStyle.Render(label(it)))
	}

	if it, ok := m.current(); ok {
		b.WriteString("\n")
		b.WriteString(m.details(it))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("1-9 choose · r reject · u undo · n/p move · q done · ctrl+c abort"))
	return b.String()
}

func (m Model) badge(it Item) string {
	d, ok := m.decisions[it.Key()]
	switch {
	case !ok:
		return dimStyle.Render("[ ]")
	case d.Status == StatusRejected:
		return rejectedStyle.Render("[x]")
	}
	return acceptedStyle.Render(fmt.Sprintf("[%d]", d.Choice+1))
}

func label(it Item) string {
	if it.Label != "" {
		return it.Label
	}
	return it.RuleID
}

func (m Model) details(it Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", titleStyle.Render(label(it)))
	if it.Context != "" {
		fmt.Fprintf(&b, "%s\n\n", it.Context)
	}
	d, decided := m.decisions[it.Key()]
	for i, r := range it.Replacements {
		line := fmt.Sprintf("%d. %s", i+1, r)
		if i < len(it.Previews) && it.Previews[i] != "" {
			line += dimStyle.Render("   " + it.Previews[i])
		}
		if decided && d.Status == StatusAccepted && d.Choice == i {
			line = acceptedStyle.Render("✓ ") + line
		}
		b.WriteString(line + "\n")
	}
	style := detailsStyle
	if m.width > 4 {
		style = style.Width(m.width - 4)
	}
	return style.Render(strings.TrimRight(b.String(), "\n"))
}
