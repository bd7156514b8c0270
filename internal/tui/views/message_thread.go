package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/precinct/internal/rpc"
	"github.com/matheus3301/precinct/internal/tui/ui"
	"github.com/rivo/tview"
)

// Consecutive messages from one sender closer than this share a header.
const groupGap = 5 * time.Minute

// MessageThread shows the active conversation: a link banner, the ordered
// messages and the composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	banner   *tview.TextView
	messages *tview.TextView
	composer *tview.InputField
	conv     rpc.Conversation
	onSend   func(text string)
}

func NewMessageThread(theme *ui.Theme) *MessageThread {
	banner := tview.NewTextView().SetDynamicColors(true)
	banner.SetBackgroundColor(theme.BgColor)

	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	framed(messages.Box, theme, " Messages ")
	messages.SetTextColor(theme.FgColor)

	composer := themedInput(theme, " > ")
	framed(composer.Box, theme, " Compose (i) ")

	mt := &MessageThread{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(banner, 1, 0, false).
			AddItem(messages, 0, 1, true).
			AddItem(composer, 3, 0, false),
		theme:    theme,
		banner:   banner,
		messages: messages,
		composer: composer,
	}
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		if text := strings.TrimSpace(composer.GetText()); text != "" {
			mt.onSend(text)
			composer.SetText("")
		}
	})
	return mt
}

func (mt *MessageThread) Title() string {
	if mt.conv.ID == "" {
		return "Messages"
	}
	return displayName(mt.conv)
}

func (mt *MessageThread) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "i", Action: "Compose"},
		{Key: "r", Action: "Retry failed"},
		{Key: "d", Action: "Details"},
		{Key: "/", Action: "Search here"},
		{Key: "Esc", Action: "Back"},
		{Key: "?", Action: "Help"},
	}
}

func (mt *MessageThread) FocusTarget() tview.Primitive { return mt.messages }

// Open resets the view for a newly selected conversation.
func (mt *MessageThread) Open(c rpc.Conversation) {
	mt.conv = c
	mt.messages.Clear()
	mt.renderChrome()
}

func (mt *MessageThread) Conversation() rpc.Conversation { return mt.conv }

func (mt *MessageThread) SetOnSend(fn func(text string)) { mt.onSend = fn }

// Update renders a snapshot, oldest first. Snapshots of another
// conversation are ignored.
func (mt *MessageThread) Update(evt *rpc.WatchEvent) {
	if evt == nil || evt.Conversation.ID != mt.conv.ID {
		return
	}
	mt.conv = evt.Conversation
	mt.renderChrome()
	mt.messages.Clear()
	mt.render(evt.Messages)
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) render(msgs []rpc.Message) {
	var prev *rpc.Message
	for i := range msgs {
		m := &msgs[i]
		at := time.UnixMilli(m.TimestampUnixMs)
		if prev == nil || !sameDay(at, time.UnixMilli(prev.TimestampUnixMs)) {
			_, _ = fmt.Fprintf(mt.messages, "[::d]-- %s --[-:-:-]\n", at.Format("Mon 02 Jan 2006"))
			prev = nil
		}
		if prev == nil || prev.Outgoing != m.Outgoing || prev.SenderID != m.SenderID ||
			at.Sub(time.UnixMilli(prev.TimestampUnixMs)) > groupGap {
			mt.header(m, at)
		}
		_, _ = fmt.Fprintf(mt.messages, "  %s%s\n", tview.Escape(sanitizeForTerminal(m.Body)), mt.stateMark(m.State))
		prev = m
	}
}

func (mt *MessageThread) header(m *rpc.Message, at time.Time) {
	sender, color := mt.conv.Name, mt.theme.IncomingColor
	if sender == "" {
		sender = m.SenderID
	}
	if m.Outgoing {
		sender, color = "You", mt.theme.OutgoingColor
	}
	_, _ = fmt.Fprintf(mt.messages, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n",
		colorHex(color), tview.Escape(sanitizeForTerminal(sender)), at.Format("15:04"))
}

func (mt *MessageThread) stateMark(state string) string {
	switch state {
	case "PENDING":
		return fmt.Sprintf(" [%s::d](sending)[-:-:-]", colorHex(mt.theme.PendingColor))
	case "FAILED":
		return fmt.Sprintf(" [%s::b](failed, r to retry)[-:-:-]", colorHex(mt.theme.FailedColor))
	}
	return ""
}

// renderChrome updates the title, the banner and the composer label from
// the link state. Sends are refused by the daemon while the link is down,
// so the composer says so.
func (mt *MessageThread) renderChrome() {
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(displayName(mt.conv))))
	mt.banner.Clear()
	down := colorHex(mt.theme.LinkDownColor)
	switch mt.conv.ConnectionState {
	case "OPEN", "":
		mt.composer.SetLabel(" > ")
		return
	case "CONNECTING":
		_, _ = fmt.Fprintf(mt.banner, " [%s]Connecting...[-]", down)
	case "RECONNECTING":
		_, _ = fmt.Fprintf(mt.banner, " [%s]Connection lost, reconnecting...[-]", down)
	default:
		msg := "Disconnected"
		if mt.conv.ConnectionError != "" {
			msg += ": " + mt.conv.ConnectionError
		}
		_, _ = fmt.Fprintf(mt.banner, " [%s]%s[-]", colorHex(mt.theme.FailedColor), tview.Escape(msg))
	}
	mt.composer.SetLabel(" (offline) > ")
}

// Messages returns the message pane, for focus management.
func (mt *MessageThread) Messages() *tview.TextView { return mt.messages }

// Composer returns the composer input, for focus management.
func (mt *MessageThread) Composer() *tview.InputField { return mt.composer }

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
