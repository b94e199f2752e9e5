package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"gitlab.bluewillows.net/root/zonedeck/internal/view"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

const maxCell = 40

var helpBindings = map[view.Screen][]key.Binding{
	view.ScreenAccountList:  {keys.Open, keys.Refresh, keys.Quit},
	view.ScreenZoneList:     {keys.Open, keys.Back, keys.Refresh, keys.Quit},
	view.ScreenRecordList:   {keys.Edit, keys.New, keys.Delete, keys.Search, keys.Refresh, keys.Retry, keys.Discard, keys.KeepLocal, keys.KeepTheir, keys.Merge, keys.Back, keys.Quit},
	view.ScreenRecordEditor: {keys.NextField, keys.Save, keys.Close},
	view.ScreenConfirm:      {keys.Confirm, keys.Decline},
	view.ScreenAuthPrompt:   {keys.Submit, keys.Close},
}

func (m *Model) View() string {
	s := m.snap
	if s.Screen == view.ScreenQuit {
		return ""
	}
	parts := []string{m.title(), ""}

	switch {
	case s.Screen == view.ScreenAuthPrompt && s.Auth != nil:
		parts = append(parts, m.form(s.Auth, &m.token, "token"))
	case s.Screen == view.ScreenRecordEditor && s.Editor != nil:
		parts = append(parts, m.form(s.Editor, &m.field, m.fieldName))
	case s.Screen == view.ScreenConfirm && s.Under == view.ScreenRecordEditor && s.Editor != nil:
		parts = append(parts, m.form(s.Editor, nil, ""))
	default:
		parts = append(parts, renderTable(s, m.width, m.height))
	}

	if s.Screen == view.ScreenConfirm {
		parts = append(parts, "", promptStyle.Render(s.Prompt+" [y/n]"))
	}
	if m.searching {
		parts = append(parts, "", m.search.View())
	} else if s.Filter != "" {
		parts = append(parts, "", "filter: "+s.Filter)
	}
	if s.Status != "" {
		parts = append(parts, "", statusStyle.Render(s.Status))
	}
	if bindings := helpBindings[s.Screen]; len(bindings) > 0 {
		parts = append(parts, "", m.help.ShortHelpView(bindings))
	}
	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m *Model) title() string {
	s := m.snap
	t := s.Title
	if t == "" {
		t = "zonedeck"
	}
	out := titleStyle.Render(t)
	var flags []string
	if s.Loading {
		flags = append(flags, m.spinner.View()+"loading")
	}
	if s.Stale {
		flags = append(flags, "stale")
	}
	if len(flags) > 0 {
		out += " " + flagStyle.Render("("+strings.Join(flags, ", ")+")")
	}
	return out
}

// renderTable draws the rows of a list screen with the cursor row
// highlighted. Only the rows around the cursor that fit height are drawn.
func renderTable(s view.Snapshot, width, height int) string {
	if len(s.Rows) == 0 {
		if s.Loading {
			return ""
		}
		return headerStyle.Render("  (none)")
	}

	first, last := window(height, len(s.Rows), s.Cursor)
	widths := make([]int, len(s.Header))
	grow := func(cols []string) {
		for j, c := range cols {
			if j >= len(widths) {
				widths = append(widths, 0)
			}
			widths[j] = max(widths[j], lipgloss.Width(clip(c, maxCell)))
		}
	}
	grow(s.Header)
	for i := first; i < last; i++ {
		grow(s.Rows[i].Columns)
	}
	line := func(prefix string, cols []string) string {
		cells := make([]string, len(cols))
		for j, c := range cols {
			cells[j] = lipgloss.NewStyle().Width(widths[j] + 2).Render(clip(c, maxCell))
		}
		return prefix + lipgloss.JoinHorizontal(lipgloss.Top, cells...)
	}
	fit := lipgloss.NewStyle()
	if width > 0 {
		fit = fit.MaxWidth(width)
	}

	lines := []string{fit.Render(headerStyle.Render(line("   ", s.Header)))}
	for i := first; i < last; i++ {
		row := s.Rows[i]
		cursor, state := " ", " "
		if i == s.Cursor {
			cursor = ">"
		}
		switch {
		case row.Busy:
			state = "~"
		case row.State != "" && row.State != model.StateClean:
			state = "*"
		}
		text := line(cursor+state+" ", row.Columns)
		if i == s.Cursor {
			text = selectedRowStyle.Render(text)
		}
		lines = append(lines, fit.Render(text))
		if row.Error != "" {
			lines = append(lines, errorStyle.Render("    ! "+clip(row.Error, width-6)))
		}
	}
	return strings.Join(lines, "\n")
}

// window returns the range of rows that fits the screen around cursor.
func window(height, n, cursor int) (int, int) {
	rows := height - 10
	if height == 0 || rows >= n {
		return 0, n
	}
	rows = max(rows, 3)
	first := max(cursor-rows/2, 0)
	if first+rows > n {
		first = n - rows
	}
	return first, first + rows
}

// form draws an editor or the login prompt. input is the live text input
// of the field named live, if any.
func (m *Model) form(ev *view.EditorView, input interface{ View() string }, live string) string {
	lines := []string{titleStyle.Render(ev.Title), ""}
	for i, f := range ev.Fields {
		prefix, label, value := "  ", labelStyle, f.Value
		if i == ev.Focus {
			prefix, label = "> ", focusedLabelStyle
			if input != nil && live == f.Name {
				value = input.View()
			}
		}
		lines = append(lines, prefix+label.Render(f.Label+":")+" "+value)
	}
	if ev.Remote != nil {
		lines = append(lines, "", "  remote:   "+ev.Remote.Content)
	}
	if ev.Saving {
		lines = append(lines, "", "  "+m.spinner.View()+"saving...")
	}
	if ev.Err != "" {
		lines = append(lines, "", errorStyle.Render("  ! "+ev.Err))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func clip(s string, width int) string {
	if width <= 0 {
		return s
	}
	rs := []rune(s)
	if len(rs) <= width {
		return s
	}
	if width <= 1 {
		return string(rs[:width])
	}
	return string(rs[:width-1]) + "…"
}
