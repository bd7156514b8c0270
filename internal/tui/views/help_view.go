package views

import (
	"fmt"

	"github.com/matheus3301/precinct/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	framed(tv.Box, theme, " Help ")
	tv.SetTextColor(theme.FgColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

func (hv *HelpView) Title() string { return "Help" }

func (hv *HelpView) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "Esc", Action: "Back"},
	}
}

func (hv *HelpView) FocusTarget() tview.Primitive { return hv.TextView }

func (hv *HelpView) render() {
	kc := colorHex(hv.theme.MenuKeyColor)

	help := fmt.Sprintf(`
  [::b]Global Keys[-:-:-]

  [%[1]s]:[-:-:-]      Command mode        [%[1]s]Esc[-:-:-]    Cancel / Go back
  [%[1]s]/[-:-:-]      Filter / search     [%[1]s]?[-:-:-]      Help
  [%[1]s]q[-:-:-]      Quit                [%[1]s]Ctrl-C[-:-:-] Quit immediately

  [::b]Conversation List[-:-:-]

  [%[1]s]Enter[-:-:-]  Open conversation   [%[1]s]0[-:-:-]      Clear filter
  [%[1]s]1-9[-:-:-]    Jump to Nth entry   [%[1]s]j/k[-:-:-]    Move down / up
  [%[1]s]s[-:-:-]      Search all messages

  [::b]Message Thread[-:-:-]

  [%[1]s]i[-:-:-]      Focus composer      [%[1]s]d[-:-:-]      Conversation details
  [%[1]s]r[-:-:-]      Retry last failed   [%[1]s]Enter[-:-:-]  Send (in composer)
  [%[1]s]/[-:-:-]      Search this thread  [%[1]s]Tab[-:-:-]    Toggle search scope

  [::b]Commands (: mode)[-:-:-]

  Commands may be abbreviated to any unique prefix; Up/Down recalls history.

  [%[1]s]:open <name|id>[-:-:-]     Open a conversation
  [%[1]s]:search <query>[-:-:-]     Search the archive
  [%[1]s]:retry[-:-:-]              Retry the last failed message
  [%[1]s]:close[-:-:-] / [%[1]s]:c[-:-:-]       Close the active conversation
  [%[1]s]:login <token>[-:-:-]      Log in with a portal token
  [%[1]s]:logout[-:-:-]             Forget the portal token
  [%[1]s]:help[-:-:-] / [%[1]s]:h[-:-:-]        Show this help
  [%[1]s]:quit[-:-:-] / [%[1]s]:q[-:-:-]        Quit application
`, kc)

	_, _ = fmt.Fprint(hv, help)
}
