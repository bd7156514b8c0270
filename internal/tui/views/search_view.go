package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/precinct/internal/rpc"
	"github.com/matheus3301/precinct/internal/tui/ui"
	"github.com/rivo/tview"
)

// Match markers the archive puts around hits in a snippet.
const (
	markOpen  = "<<"
	markClose = ">>"
)

// SearchScope limits a query to the whole archive or one conversation.
type SearchScope int

const (
	ScopeAll SearchScope = iota
	ScopeActive
)

// SearchView queries the message archive. Tab toggles between searching
// every conversation and only the one open in the thread.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table

	scope   SearchScope
	active  string
	names   func(id string) string
	onQuery func(query string, scope SearchScope)
	hits    []rpc.SearchHit
}

func NewSearchView(theme *ui.Theme) *SearchView {
	input := themedInput(theme, "")
	results := themedTable(theme, " Results ")

	sv := &SearchView{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(input, 1, 0, true).
			AddItem(results, 0, 1, false),
		theme:   theme,
		input:   input,
		results: results,
		names:   func(id string) string { return id },
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			sv.submit()
		}
	})
	input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyTab {
			sv.ToggleScope()
			return nil
		}
		return ev
	})
	sv.relabel()
	sv.Update(nil)
	return sv
}

func (sv *SearchView) Title() string { return "Search" }

func (sv *SearchView) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "Enter", Action: "Search/Open"},
		{Key: "Tab", Action: "Scope"},
		{Key: "Esc", Action: "Back"},
	}
}

func (sv *SearchView) FocusTarget() tview.Primitive { return sv.input }

// SetOnQuery sets the callback for submitted queries.
func (sv *SearchView) SetOnQuery(fn func(query string, scope SearchScope)) {
	sv.onQuery = fn
}

// SetNames sets how conversation ids are shown in the results.
func (sv *SearchView) SetNames(fn func(id string) string) {
	sv.names = fn
}

// SetActive records the conversation ScopeActive searches. An empty id
// forces ScopeAll.
func (sv *SearchView) SetActive(id string) {
	sv.active = id
	if id == "" {
		sv.scope = ScopeAll
	}
	sv.relabel()
}

func (sv *SearchView) ToggleScope() {
	if sv.scope == ScopeAll && sv.active != "" {
		sv.scope = ScopeActive
	} else {
		sv.scope = ScopeAll
	}
	sv.relabel()
}

func (sv *SearchView) Scope() SearchScope { return sv.scope }

// ActiveID is the conversation a ScopeActive query is limited to.
func (sv *SearchView) ActiveID() string { return sv.active }

func (sv *SearchView) relabel() {
	if sv.scope == ScopeActive {
		sv.input.SetLabel(fmt.Sprintf(" Search %s: ", sv.names(sv.active)))
		return
	}
	sv.input.SetLabel(" Search all: ")
}

func (sv *SearchView) submit() {
	q := strings.TrimSpace(sv.input.GetText())
	if q == "" || sv.onQuery == nil {
		return
	}
	sv.onQuery(q, sv.scope)
}

// Update shows a result page. Hits arrive ranked; order is kept.
func (sv *SearchView) Update(hits []rpc.SearchHit) {
	sv.hits = hits
	sv.results.Clear()

	for col, h := range []string{" CONVERSATION", "", " MATCH", " TIME"} {
		cell := headerCell(sv.theme, h)
		if col == 2 {
			cell.SetExpansion(1)
		}
		sv.results.SetCell(0, col, cell)
	}

	for i, h := range hits {
		row := i + 1
		dir, dirColor := "<", sv.theme.IncomingColor
		if h.Message.Outgoing {
			dir, dirColor = ">", sv.theme.OutgoingColor
		}
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(sv.names(h.ConversationID)))).
			SetMaxWidth(24).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(dir).SetTextColor(dirColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+sv.highlight(h)).
			SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(h.Message.TimestampUnixMs)).
			SetTextColor(sv.theme.FgColor))
	}
	sv.results.SetTitle(fmt.Sprintf(" Results (%d) ", len(hits)))
}

// highlight colors the archive's match markers. Bodies without a snippet
// are shown plain.
func (sv *SearchView) highlight(h rpc.SearchHit) string {
	text := h.Snippet
	if text == "" {
		return tview.Escape(sanitizeForTerminal(h.Message.Body))
	}
	var b strings.Builder
	on := fmt.Sprintf("[%s::b]", colorHex(sv.theme.TitleColor))
	for {
		open := strings.Index(text, markOpen)
		if open < 0 {
			break
		}
		closing := strings.Index(text[open+len(markOpen):], markClose)
		if closing < 0 {
			break
		}
		match := text[open+len(markOpen) : open+len(markOpen)+closing]
		b.WriteString(tview.Escape(sanitizeForTerminal(text[:open])))
		b.WriteString(on + tview.Escape(sanitizeForTerminal(match)) + "[-:-:-]")
		text = text[open+len(markOpen)+closing+len(markClose):]
	}
	b.WriteString(tview.Escape(sanitizeForTerminal(text)))
	return b.String()
}

// SelectedConversation returns the conversation of the hit under the cursor.
func (sv *SearchView) SelectedConversation() string {
	row, _ := sv.results.GetSelection()
	if row < 1 || row > len(sv.hits) {
		return ""
	}
	return sv.hits[row-1].ConversationID
}

// SetQuery fills the input, for searches started from the command prompt.
func (sv *SearchView) SetQuery(q string) {
	sv.input.SetText(q)
}

func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
