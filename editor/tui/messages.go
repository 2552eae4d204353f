package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hazyhaar/chanlight/editor"
)

// ClearStatusMsg clears the status line if no newer status replaced it.
type ClearStatusMsg struct {
	Seq int
}

// PersistedMsg carries the result of saving a change.
type PersistedMsg struct {
	Change editor.Change
	Err    error
}

// ChannelsMsg carries the channel names fetched from the page.
type ChannelsMsg struct {
	List editor.ChannelList
}

// persist saves c and notifies the page off the update loop.
func persist(ctx context.Context, ed *editor.Editor, c editor.Change) tea.Cmd {
	return func() tea.Msg {
		return PersistedMsg{Change: c, Err: ed.Persist(ctx, c)}
	}
}

// fetchChannels asks the page for its channel names.
func fetchChannels(ctx context.Context, ed *editor.Editor) tea.Cmd {
	return func() tea.Msg {
		return ChannelsMsg{List: ed.FetchChannelNames(ctx)}
	}
}
