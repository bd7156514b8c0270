package views

import (
	"fmt"

	"github.com/matheus3301/precinct/internal/rpc"
	"github.com/matheus3301/precinct/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the conversation directory table.
type ConversationList struct {
	*tview.Table
	theme  *ui.Theme
	convs  []rpc.Conversation
	shown  []rpc.Conversation
	filter string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	return &ConversationList{Table: themedTable(theme, " Conversations "), theme: theme}
}

func (cl *ConversationList) Title() string { return "Conversations" }

func (cl *ConversationList) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "Enter", Action: "Open"},
		{Key: "/", Action: "Filter"},
		{Key: "s", Action: "Search"},
		{Key: ":", Action: "Command"},
		{Key: "?", Action: "Help"},
		{Key: "q", Action: "Quit"},
		{Key: "1-9", Action: "Jump", Numeric: true},
	}
}

func (cl *ConversationList) FocusTarget() tview.Primitive { return cl.Table }

// Update refreshes the list with a new directory snapshot.
func (cl *ConversationList) Update(convs []rpc.Conversation) {
	cl.convs = convs
	cl.render()
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.filter = ""
	cl.render()
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" LINK", 0},
		{" TYPE", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, headerCell(cl.theme, h.text).SetExpansion(h.exp))
	}

	cl.shown = cl.shown[:0]
	for _, c := range cl.convs {
		name := displayName(c)
		if cl.filter != "" && !containsFold(name, cl.filter) && !containsFold(preview(c), cl.filter) {
			continue
		}
		cl.shown = append(cl.shown, c)
		row := len(cl.shown)

		if c.Unread > 0 {
			name = fmt.Sprintf("(%d) %s", c.Unread, name)
		}
		link, linkColor := c.ConnectionState, cl.theme.LinkDownColor
		switch link {
		case "OPEN":
			linkColor = cl.theme.LinkUpColor
		case "DISCONNECTED":
			link, linkColor = "-", cl.theme.CounterColor
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(preview(c)))).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(lastActivity(c))).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(" "+link).SetTextColor(linkColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 4, tview.NewTableCell(" "+kind(c)).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.shown), len(cl.convs), cl.filter))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// Selected returns the conversation under the cursor.
func (cl *ConversationList) Selected() (rpc.Conversation, bool) {
	row, _ := cl.GetSelection()
	return cl.ByIndex(row)
}

// ByIndex returns the Nth visible conversation (1-based).
func (cl *ConversationList) ByIndex(n int) (rpc.Conversation, bool) {
	if n < 1 || n > len(cl.shown) {
		return rpc.Conversation{}, false
	}
	return cl.shown[n-1], true
}
