package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/precinct/internal/tui/ui"
	"github.com/rivo/tview"
)

// AuthView asks for a portal token when the daemon has none.
type AuthView struct {
	*tview.Flex
	theme   *ui.Theme
	message *tview.TextView
	input   *tview.InputField
	onToken func(token string)
}

// NewAuthView creates a new auth view.
func NewAuthView(theme *ui.Theme) *AuthView {
	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	framed(message.Box, theme, " Authentication Required ")
	message.SetTextColor(theme.FgColor)

	input := themedInput(theme, " Token: ").SetMaskCharacter('*')
	framed(input.Box, theme, "")
	input.SetBorderColor(theme.PromptBorderColor)

	av := &AuthView{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(message, 0, 1, false).
			AddItem(input, 3, 0, true),
		theme:   theme,
		message: message,
		input:   input,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || av.onToken == nil {
			return
		}
		if token := strings.TrimSpace(input.GetText()); token != "" {
			input.SetText("")
			av.onToken(token)
		}
	})
	return av
}

func (av *AuthView) Title() string { return "Auth" }

func (av *AuthView) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "Enter", Action: "Log in"},
		{Key: "Esc", Action: "Back"},
	}
}

func (av *AuthView) FocusTarget() tview.Primitive { return av.input }

// SetOnToken sets the callback for a submitted token.
func (av *AuthView) SetOnToken(fn func(token string)) {
	av.onToken = fn
}

// ShowMessage displays a status message above the token field.
func (av *AuthView) ShowMessage(msg string) {
	av.message.Clear()
	_, _ = fmt.Fprintf(av.message, "\n\n%s\n\n[::d]Paste the portal API token and press Enter.[-:-:-]", tview.Escape(msg))
}
