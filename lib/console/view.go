package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const cellWidth = 10

var (
	colorFocus   = lipgloss.Color("12")
	colorDirty   = lipgloss.Color("214")
	colorError   = lipgloss.Color("9")
	colorSubtle  = lipgloss.Color("245")
	colorSuccess = lipgloss.Color("35")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorFocus)
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true).Width(cellWidth)
	labelStyle    = lipgloss.NewStyle().Bold(true).Width(cellWidth)
	cellStyle     = lipgloss.NewStyle().Width(cellWidth)
	readOnlyStyle = cellStyle.Foreground(colorSubtle)
	dirtyStyle    = cellStyle.Foreground(colorDirty)
	onStyle       = cellStyle.Foreground(colorSuccess)
	selectedStyle = cellStyle.Reverse(true)
	statusStyle   = lipgloss.NewStyle().Foreground(colorSubtle)
	errorStyle    = lipgloss.NewStyle().Foreground(colorError)
)

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("HV Control Interface"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Channel"))
	for _, p := range m.cols {
		b.WriteString(headerStyle.Render(p.String()))
	}
	b.WriteString("\n")

	switch {
	case !m.loaded:
		b.WriteString(statusStyle.Render("Reading devices…"))
		b.WriteString("\n")
	case len(m.rows) == 0:
		b.WriteString(statusStyle.Render("No devices."))
		b.WriteString("\n")
	}

	for i, r := range m.rows {
		b.WriteString(labelStyle.Render(r.label()))
		for j, p := range m.cols {
			b.WriteString(m.renderCell(i, j, cellKey{r.dev, r.ch, p}))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		st := statusStyle
		if m.statusErr {
			st = errorStyle
		}
		if m.width > 0 {
			st = st.Width(m.width)
		}
		b.WriteString(st.Render(m.status))
		b.WriteString("\n")
	}
	if m.editing {
		b.WriteString(m.help.View(editKeys{m.keys}))
	} else {
		b.WriteString(m.help.View(m.keys))
	}
	return b.String()
}

func (m *Model) renderCell(i, j int, k cellKey) string {
	selected := i == m.curRow && j == m.curCol
	if selected && m.editing {
		return cellStyle.Render(m.input.View())
	}

	var (
		text  string
		style = cellStyle
	)
	if k.p.ReadOnly() {
		text, style = m.labels[k], readOnlyStyle
	} else {
		text = m.buffers[k]
		if m.dirty(k) {
			style = dirtyStyle
		} else if k.p.Toggle() && strings.EqualFold(text, "On") {
			style = onStyle
		}
	}
	if text == "" {
		text = "-"
	}
	if selected {
		style = selectedStyle
	}
	return style.Render(ansi.Truncate(text, cellWidth-1, "…"))
}

// dirty reports whether a writable cell differs from the device.
func (m *Model) dirty(k cellKey) bool {
	text, ok := m.buffers[k]
	if !ok {
		return false
	}
	old, known := m.previous[k]
	if !known {
		return text != ""
	}
	v, err := k.p.Parse(text)
	return err != nil || v != old
}
