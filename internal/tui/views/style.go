package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/precinct/internal/tui/ui"
	"github.com/rivo/tview"
)

// framed gives a widget the themed border and title.
func framed(b *tview.Box, theme *ui.Theme, title string) {
	b.SetBorder(true).
		SetBorderColor(theme.BorderColor).
		SetBackgroundColor(theme.BgColor).
		SetTitle(title).
		SetTitleColor(theme.TitleColor)
}

func themedInput(theme *ui.Theme, label string) *tview.InputField {
	in := tview.NewInputField().SetLabel(label).SetFieldWidth(0)
	in.SetBackgroundColor(theme.BgColor)
	in.SetFieldBackgroundColor(theme.BgColor)
	in.SetFieldTextColor(theme.FgColor)
	in.SetLabelColor(theme.MenuKeyColor)
	return in
}

func themedTable(theme *ui.Theme, title string) *tview.Table {
	t := tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	framed(t.Box, theme, title)
	t.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	return t
}

func headerCell(theme *ui.Theme, text string) *tview.TableCell {
	return tview.NewTableCell(text).
		SetSelectable(false).
		SetTextColor(theme.TableHeaderFg).
		SetBackgroundColor(theme.TableHeaderBg).
		SetAttributes(tcell.AttrBold)
}

func colorHex(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
