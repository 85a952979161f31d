// Package tui provides the interactive hunk picker behind `kvit-patch review`.
package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kvit-s/kvit-patch/internal/patch"
)

// ErrAborted is returned by Review when the user quits without applying.
var ErrAborted = errors.New("review aborted")

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("136"))
	cursorStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	addStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	delStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	bodyBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	defaultWidth  = 80
	defaultHeight = 24
)

// model is the Bubbletea model for the hunk picker.
type model struct {
	file     string
	hunks    []patch.Hunk
	selected []bool
	cursor   int

	body viewport.Model
	help help.Model
	keys keyMap

	width  int
	height int

	done    bool
	aborted bool
}

func newModel(file string, hunks []patch.Hunk) model {
	selected := make([]bool, len(hunks))
	for i := range selected {
		selected[i] = true
	}
	m := model{
		file:     file,
		hunks:    hunks,
		selected: selected,
		body:     viewport.New(defaultWidth, 10),
		help:     help.New(),
		keys:     defaultKeyMap(),
		width:    defaultWidth,
		height:   defaultHeight,
	}
	m.resize()
	return m
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.aborted = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Apply):
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.refreshBody()
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.hunks)-1 {
				m.cursor++
				m.refreshBody()
			}
		case key.Matches(msg, m.keys.Toggle):
			if len(m.selected) > 0 {
				m.selected[m.cursor] = !m.selected[m.cursor]
			}
		case key.Matches(msg, m.keys.All):
			m.setAll(true)
		case key.Matches(msg, m.keys.None):
			m.setAll(false)
		case key.Matches(msg, m.keys.Scroll):
			var cmd tea.Cmd
			m.body, cmd = m.body.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *model) setAll(v bool) {
	for i := range m.selected {
		m.selected[i] = v
	}
}

// resize splits the screen between the hunk list and the body pane.
func (m *model) resize() {
	listHeight := min(len(m.hunks), max(m.height/3, 3))
	bodyHeight := max(m.height-listHeight-6, 3) // title, borders, help
	m.body.Width = max(m.width-2, 20)
	m.body.Height = bodyHeight
	m.refreshBody()
}

func (m *model) refreshBody() {
	if len(m.hunks) == 0 {
		m.body.SetContent(dimStyle.Render("(no hunks)"))
		return
	}
	m.body.SetContent(renderHunk(m.hunks[m.cursor]))
	m.body.GotoTop()
}

// Selected returns the 0-based indexes of the chosen hunks, in order.
func (m model) Selected() []int {
	out := []int{}
	for i, ok := range m.selected {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

func (m model) View() string {
	if m.done || m.aborted {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Review %s (%d of %d hunks selected)", m.file, len(m.Selected()), len(m.hunks))))
	b.WriteString("\n")

	// Keep the cursor visible when there are more hunks than list rows
	rows := min(len(m.hunks), max(m.height/3, 3))
	first := 0
	if m.cursor >= rows {
		first = m.cursor - rows + 1
	}
	for i := first; i < first+rows && i < len(m.hunks); i++ {
		b.WriteString(m.renderRow(i))
		b.WriteString("\n")
	}

	b.WriteString(bodyBoxStyle.Render(m.body.View()))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m model) renderRow(i int) string {
	h := m.hunks[i]
	check := "[ ]"
	if m.selected[i] {
		check = "[x]"
	}
	summary := "context only, changes nothing"
	if !h.IsNoop() {
		oldCount, newCount := h.BodyCounts()
		adds, dels := newCount, oldCount
		for _, l := range h.Lines {
			if l.Kind == patch.Context {
				adds--
				dels--
			}
		}
		summary = fmt.Sprintf("+%d -%d", adds, dels)
	}
	row := fmt.Sprintf("%s #%d %s  %s", check, i+1, h.Header(), dimStyle.Render(summary))
	if i == m.cursor {
		return cursorStyle.Render("> " + row)
	}
	return "  " + row
}

func renderHunk(h patch.Hunk) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(h.Header()))
	for _, l := range h.Lines {
		b.WriteString("\n")
		switch l.Kind {
		case patch.Add:
			b.WriteString(addStyle.Render("+" + l.Content))
		case patch.Delete:
			b.WriteString(delStyle.Render("-" + l.Content))
		case patch.Context:
			b.WriteString(" " + l.Content)
		}
		if l.NoNewline {
			b.WriteString("\n")
			b.WriteString(dimStyle.Render(patch.NoNewlineMarker))
		}
	}
	return b.String()
}

// Review shows the hunks of a parsed diff and lets the user pick which to apply.
// It returns the chosen 0-based indexes, or ErrAborted. Keys are read from the
// terminal so the diff itself may arrive on stdin.
func Review(file string, hunks []patch.Hunk) ([]int, error) {
	p := tea.NewProgram(newModel(file, hunks),
		tea.WithAltScreen(),
		tea.WithInputTTY(),
		tea.WithOutput(os.Stderr),
	)
	result, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}
	final := result.(model)
	if final.aborted || !final.done {
		return nil, ErrAborted
	}
	return final.Selected(), nil
}
