package views

import (
	"fmt"

	"github.com/matheus3301/precinct/internal/rpc"
	"github.com/matheus3301/precinct/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays detailed information about a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().SetDynamicColors(true)
	framed(tv.Box, theme, " Conversation Details ")
	tv.SetTextColor(theme.FgColor)
	return &ConversationInfo{TextView: tv, theme: theme}
}

func (ci *ConversationInfo) Title() string { return "Details" }

func (ci *ConversationInfo) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "Esc", Action: "Back"},
		{Key: ":", Action: "Command"},
		{Key: "?", Action: "Help"},
	}
}

func (ci *ConversationInfo) FocusTarget() tview.Primitive { return ci.TextView }

// Update renders conversation details.
func (ci *ConversationInfo) Update(c rpc.Conversation, status *rpc.StatusResponse) {
	ci.Clear()
	if c.ID == "" {
		return
	}

	fg := colorHex(ci.theme.FgColor)
	ct := colorHex(ci.theme.CounterColor)

	participant := c.ParticipantID
	if participant == "" {
		participant = "-"
	}
	lastActive := formatTimestamp(lastActivity(c))
	if lastActive == "" {
		lastActive = "-"
	}
	link := c.ConnectionState
	if c.ConnectionError != "" {
		link += " (" + c.ConnectionError + ")"
	}
	view := "-"
	if status != nil && status.ActiveID == c.ID {
		view = status.ViewState
	}

	rows := [][2]string{
		{"Name", displayName(c)},
		{"ID", c.ID},
		{"Type", kind(c)},
		{"Participant", participant},
		{"Unread", fmt.Sprint(c.Unread)},
		{"Connection", link},
		{"View", view},
		{"Last Active", lastActive},
		{"Last Message", preview(c)},
	}
	_, _ = fmt.Fprintln(ci)
	for _, r := range rows {
		_, _ = fmt.Fprintf(ci, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, r[0]+":", ct, tview.Escape(sanitizeForTerminal(r[1])))
	}
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(displayName(c))))
}
