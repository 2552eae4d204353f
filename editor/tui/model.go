// Package tui is the terminal front end of the settings editor.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hazyhaar/chanlight/editor"
)

// StatusTimeout is how long "Settings saved!" stays on screen.
const StatusTimeout = 1500 * time.Millisecond

type focus int

const (
	focusRows focus = iota
	focusChannels
	focusColor
)

// Model is the editor screen.
type Model struct {
	ctx context.Context
	ed  *editor.Editor

	focus     focus
	rowCursor int
	optCursor int // 0 is the placeholder
	color     textinput.Model

	// inputErr is a local validation error, shown instead of the editor
	// status until the next key.
	inputErr  string
	statusSeq int
	width     int

	// saving is set while a change is being persisted; edits wait for it.
	saving bool
}

// New creates the screen for an editor that has already been loaded.
func New(ctx context.Context, ed *editor.Editor) Model {
	ti := textinput.New()
	ti.Placeholder = "#rrggbb"
	ti.CharLimit = 7
	ti.Width = 8
	ti.SetValue(ed.Color())

	return Model{ctx: ctx, ed: ed, color: ti}
}

// Init starts the cursor blink and the first channel list request.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, fetchChannels(m.ctx, m.ed))
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case ClearStatusMsg:
		if msg.Seq == m.statusSeq && m.ed.Status() == editor.StatusSaved {
			m.ed.ClearStatus()
		}
		return m, nil

	case PersistedMsg:
		m.saving = false
		return m.afterPersist(m.ed.Commit(msg.Change, msg.Err))

	case ChannelsMsg:
		m.ed.ApplyChannelNames(msg.List)
		m.optCursor = 0
		return m, nil

	case tea.KeyMsg:
		m.inputErr = ""
		return m.handleKeyPress(msg)
	}

	if m.focus == focusColor {
		var cmd tea.Cmd
		m.color, cmd = m.color.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		return m.setFocus((m.focus + 1) % 3)
	case "shift+tab":
		return m.setFocus((m.focus + 2) % 3)
	}

	switch m.focus {
	case focusRows:
		return m.handleRowsKey(msg)
	case focusChannels:
		return m.handleChannelsKey(msg)
	default:
		return m.handleColorKey(msg)
	}
}

func (m Model) handleRowsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := m.ed.Rows()
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.rowCursor > 0 {
			m.rowCursor--
		}
	case "down", "j":
		if m.rowCursor < len(rows)-1 {
			m.rowCursor++
		}
	case "enter":
		if m.ed.BeginEdit(m.rowCursor) {
			m.color.SetValue(m.ed.Color())
			return m.setFocus(focusColor)
		}
	case "d", "x", "delete":
		if m.saving {
			return m, nil
		}
		c, ok := m.ed.PrepareRemove(m.rowCursor)
		if !ok {
			return m, nil
		}
		return m.save(c)
	case "r":
		return m, fetchChannels(m.ctx, m.ed)
	}
	return m, nil
}

func (m Model) handleChannelsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	opts := m.ed.Options()
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.optCursor > 0 {
			m.optCursor--
		}
	case "down", "j":
		if m.optCursor < len(opts) {
			m.optCursor++
		}
	case "r":
		return m, fetchChannels(m.ctx, m.ed)
	case "enter":
		if m.saving {
			return m, nil
		}
		if m.optCursor == 0 {
			m.ed.Select("")
			m.color.SetValue(m.ed.Color())
			return m, nil
		}
		if !m.ed.Select(opts[m.optCursor-1]) {
			return m, nil
		}
		// Picking a channel adds it at once with the current color.
		if err := m.ed.SetColor(m.color.Value()); err != nil {
			m.inputErr = fmt.Sprintf("Invalid color %q.", m.color.Value())
			return m, nil
		}
		m.optCursor = 0
		return m.submit()
	}
	return m, nil
}

func (m Model) handleColorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.setFocus(focusRows)
	case "enter":
		if m.saving {
			return m, nil
		}
		if err := m.ed.SetColor(m.color.Value()); err != nil {
			m.inputErr = fmt.Sprintf("Invalid color %q.", m.color.Value())
			return m, nil
		}
		m.color.SetValue(m.ed.Color())
		if m.ed.Selected() == "" {
			return m.setFocus(focusChannels)
		}
		return m.submit()
	}

	var cmd tea.Cmd
	m.color, cmd = m.color.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	c, ok := m.ed.PrepareSubmit()
	if !ok {
		return m, nil
	}
	return m.save(c)
}

func (m Model) save(c editor.Change) (tea.Model, tea.Cmd) {
	m.saving = true
	return m, persist(m.ctx, m.ed, c)
}

// afterPersist syncs the form with the editor and schedules the status
// clear.
func (m Model) afterPersist(err error) (tea.Model, tea.Cmd) {
	m.color.SetValue(m.ed.Color())
	if n := len(m.ed.Rows()); m.rowCursor >= n && n > 0 {
		m.rowCursor = n - 1
	}
	if err != nil {
		return m, nil
	}
	m.statusSeq++
	seq := m.statusSeq
	var cmd tea.Cmd
	if m.ed.Mode() == editor.Adding && m.focus == focusColor {
		m, cmd = m.focusOn(focusRows)
	}
	return m, tea.Batch(cmd, tea.Tick(StatusTimeout, func(time.Time) tea.Msg {
		return ClearStatusMsg{Seq: seq}
	}))
}

func (m Model) setFocus(f focus) (tea.Model, tea.Cmd) {
	return m.focusOn(f)
}

func (m Model) focusOn(f focus) (Model, tea.Cmd) {
	m.focus = f
	if f == focusColor {
		return m, m.color.Focus()
	}
	m.color.Blur()
	return m, nil
}

// View renders the screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Channel highlights"))
	b.WriteString("\n\n")

	rows := m.ed.Rows()
	if len(rows) == 0 {
		b.WriteString(italicStyle.Render("No channels configured yet."))
		b.WriteString("\n")
	}
	for _, r := range rows {
		cur := "  "
		if m.focus == focusRows && r.Index == m.rowCursor {
			cur = cursorStyle.Render("> ")
		}
		line := cur + swatch(r.Color) + " " + pill(r.Name, r.Color)
		if r.Editing {
			line += mutedStyle.Render("  (editing)")
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Channel"))
	b.WriteString("\n")
	b.WriteString(m.viewSelector())

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Color"))
	b.WriteString("  ")
	b.WriteString(m.color.View())
	if c := m.ed.Color(); c != "" {
		b.WriteString(" " + swatch(c))
	}
	b.WriteString("\n\n")
	b.WriteString(buttonStyle.Render(m.ed.SubmitLabel()))
	b.WriteString("\n")

	switch {
	case m.inputErr != "":
		b.WriteString(errorStyle.Render(m.inputErr))
	case m.saving:
		b.WriteString(mutedStyle.Render("Saving..."))
	case strings.HasPrefix(m.ed.Status(), "Error") || m.ed.Status() == editor.StatusOpenTab:
		b.WriteString(errorStyle.Render(m.ed.Status()))
	default:
		b.WriteString(successStyle.Render(m.ed.Status()))
	}
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("tab: switch  enter: select  d: remove  r: refresh channels  q: quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewSelector() string {
	var b strings.Builder
	active := m.focus == focusChannels

	if m.ed.Mode() == editor.Editing {
		b.WriteString("  " + mutedStyle.Render(m.ed.Selected()+" (locked)") + "\n")
	}

	line := func(i int, text string, style func(...string) string) {
		cur := "  "
		if active && i == m.optCursor {
			cur = cursorStyle.Render("> ")
		}
		b.WriteString(cur + style(text) + "\n")
	}

	line(0, m.ed.Placeholder(), mutedStyle.Render)
	if m.ed.SelectorDisabled() {
		return b.String()
	}
	for i, name := range m.ed.Options() {
		line(i+1, name, plainStyle.Render)
	}
	return b.String()
}
