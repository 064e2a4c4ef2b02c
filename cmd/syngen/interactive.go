package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/syngen/props"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	containerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type entry struct {
	value props.Value
	key   string
}

type frame struct {
	key      string
	entries  []entry
	selected int
}

type explorerModel struct {
	title     string
	stack     []frame
	filter    textinput.Model
	filtering bool
}

func newExplorerModel(report *props.Map, title string) *explorerModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "filter keys"
	ti.Width = 40
	return &explorerModel{
		title:  title,
		stack:  []frame{{entries: mapEntries(report)}},
		filter: ti,
	}
}

func mapEntries(m *props.Map) []entry {
	var out []entry
	for k, v := range m.All() {
		out = append(out, entry{key: k, value: v})
	}
	return out
}

func seqEntries(items []props.Value) []entry {
	out := make([]entry, len(items))
	for i, v := range items {
		out[i] = entry{key: "[" + strconv.Itoa(i) + "]", value: v}
	}
	return out
}

func (m *explorerModel) top() *frame { return &m.stack[len(m.stack)-1] }

// visible returns the entries of the current level that match the filter.
func (m *explorerModel) visible() []entry {
	f := m.top()
	q := strings.ToLower(m.filter.Value())
	if q == "" {
		return f.entries
	}
	var out []entry
	for _, e := range f.entries {
		if strings.Contains(strings.ToLower(e.key), q) {
			out = append(out, e)
		}
	}
	return out
}

func (m *explorerModel) path() string {
	var parts []string
	for _, f := range m.stack[1:] {
		parts = append(parts, f.key)
	}
	return "/" + strings.Join(parts, "/")
}

func (m *explorerModel) Init() tea.Cmd { return nil }

func (m *explorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.filtering {
		switch key.String() {
		case "enter":
			m.filtering = false
			m.filter.Blur()
		case "esc":
			m.filtering = false
			m.filter.Blur()
			m.filter.SetValue("")
		default:
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.top().selected = 0
			return m, cmd
		}
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if f := m.top(); f.selected > 0 {
			f.selected--
		}

	case "down", "j":
		if f := m.top(); f.selected < len(m.visible())-1 {
			f.selected++
		}

	case "enter", "right", "l":
		m.descend()

	case "esc", "left", "h", "backspace":
		if m.filter.Value() != "" {
			m.filter.SetValue("")
			m.top().selected = 0
		} else if len(m.stack) > 1 {
			m.stack = m.stack[:len(m.stack)-1]
		}

	case "/":
		m.filtering = true
		m.filter.Focus()
	}
	return m, nil
}

func (m *explorerModel) descend() {
	vis := m.visible()
	sel := m.top().selected
	if sel >= len(vis) {
		return
	}
	e := vis[sel]
	var entries []entry
	switch e.value.Kind() {
	case props.KindMapping:
		entries = mapEntries(e.value.Map())
	case props.KindSequence:
		entries = seqEntries(e.value.Items())
	default:
		return
	}
	if len(entries) == 0 {
		return
	}
	m.filter.SetValue("")
	m.stack = append(m.stack, frame{key: e.key, entries: entries})
}

func summary(v props.Value) string {
	switch v.Kind() {
	case props.KindMapping:
		return containerStyle.Render(fmt.Sprintf("{%d keys}", v.Map().Len()))
	case props.KindSequence:
		return containerStyle.Render(fmt.Sprintf("[%d items]", len(v.Items())))
	case props.KindScalar:
		s, _ := v.Text()
		return valueStyle.Render(s)
	default:
		return helpStyle.Render("null")
	}
}

func (m *explorerModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Report Explorer"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("\n")
	b.WriteString(pathStyle.Render(m.path()))
	b.WriteString("\n\n")

	vis := m.visible()
	if len(vis) == 0 {
		b.WriteString(helpStyle.Render("(no keys)"))
		b.WriteString("\n")
	}
	sel := m.top().selected
	for i, e := range vis {
		if i == sel {
			b.WriteString(selectedStyle.Render("> " + e.key))
		} else {
			b.WriteString("  " + keyStyle.Render(e.key))
		}
		b.WriteString("  ")
		b.WriteString(summary(e.value))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ select • enter open • esc back • / filter • q quit"))
	return b.String()
}

func runInteractive(report *props.Map, title string) error {
	p := tea.NewProgram(newExplorerModel(report, title), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
